package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/keel/internal/ir"
	"github.com/roach88/keel/internal/store"
)

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "catalog",
		Short:         "Show the node's cached catalog",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			rt, err := OpenRuntime(rootOpts, cmd)
			if err != nil {
				return formatter.Fail(errorCode(err), err)
			}
			defer rt.Close()

			cat, err := rt.Store.RetrieveLatest(cmd.Context(), rt.Config.Node)
			if errors.Is(err, store.ErrNotFound) {
				return formatter.Fail(ErrCodeNoCached, fmt.Errorf("no cached catalog for %s", rt.Config.Node))
			}
			if err != nil {
				return formatter.Fail(ErrCodeStore, err)
			}

			if formatter.Format == "json" {
				return formatter.Success(cat)
			}
			printCatalog(formatter.Writer, cat)
			fmt.Fprintf(formatter.Writer, "Digest %s\n", cat.Digest)
			return nil
		},
	}
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "state",
		Short:         "List recorded resource states",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			rt, err := OpenRuntime(rootOpts, cmd)
			if err != nil {
				return formatter.Fail(errorCode(err), err)
			}
			defer rt.Close()

			states, err := rt.Store.ListStates(cmd.Context())
			if err != nil {
				return formatter.Fail(ErrCodeStore, err)
			}

			if formatter.Format == "json" {
				if states == nil {
					states = []ir.ResourceState{}
				}
				return formatter.Success(states)
			}
			if len(states) == 0 {
				fmt.Fprintln(formatter.Writer, "No resource state recorded.")
				return nil
			}
			for _, st := range states {
				fmt.Fprintf(formatter.Writer, "%s  %s  %s\n", st.Path, st.VersionToken, st.Fingerprint)
			}
			return nil
		},
	}
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "report",
		Short:         "Show the node's last run report",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			rt, err := OpenRuntime(rootOpts, cmd)
			if err != nil {
				return formatter.Fail(errorCode(err), err)
			}
			defer rt.Close()

			report, err := rt.Store.LatestReport(cmd.Context(), rt.Config.Node)
			if errors.Is(err, store.ErrNotFound) {
				return formatter.Fail(ErrCodeNotFound, fmt.Errorf("no run report for %s", rt.Config.Node))
			}
			if err != nil {
				return formatter.Fail(ErrCodeStore, err)
			}

			if formatter.Format == "json" {
				return formatter.Success(report)
			}
			printReport(formatter.Writer, report)
			return nil
		},
	}
}
