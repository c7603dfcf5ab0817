package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath  string
	Node        string // overrides the configured node
	Environment string // overrides the configured environment
	Verbose     bool
	Format      string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the keel CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "keel",
		Short: "keel - versioned file convergence",
		Long: `Compile CUE manifests into versioned catalogs and converge managed files.

A live run compiles the node's catalog, caches it and applies it. A cached
run applies the last cached catalog, using the content captured when it was
compiled. A local apply compiles in-process and caches nothing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	addGlobalFlags(cmd.PersistentFlags(), opts)

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewAgentCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewContentCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func addGlobalFlags(fs *pflag.FlagSet, opts *RootOptions) {
	fs.StringVar(&opts.ConfigPath, "config", "", "config file (default $KEEL_CONFIG)")
	fs.StringVar(&opts.Node, "node", "", "node name (overrides config)")
	fs.StringVar(&opts.Environment, "environment", "", "environment name (overrides config)")
	fs.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	fs.StringVar(&opts.Format, "format", "text", "output format (json|text)")
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
