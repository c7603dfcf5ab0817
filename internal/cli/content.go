package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/keel/internal/content"
	"github.com/roach88/keel/internal/ir"
	"github.com/roach88/keel/internal/store"
)

// NewContentCommand creates the content command group.
func NewContentCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Inspect and maintain the content store",
	}
	cmd.AddCommand(newContentListCommand(rootOpts))
	cmd.AddCommand(newContentEvictCommand(rootOpts))
	cmd.AddCommand(newContentPruneCommand(rootOpts))
	return cmd
}

func newContentListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored blobs",
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

			hashes, err := rt.Content.List()
			if err != nil {
				return formatter.Fail(ErrCodeStore, err)
			}
			uris := make([]string, len(hashes))
			for i, h := range hashes {
				uris[i] = h.URI()
			}

			if formatter.Format == "json" {
				return formatter.Success(uris)
			}
			for _, uri := range uris {
				fmt.Fprintln(formatter.Writer, uri)
			}
			return nil
		},
	}
}

func newContentEvictCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "evict <uri|hash>...",
		Short: "Evict blobs from the content store",
		Long: `Evict blobs from the content store.

Cached catalogs that reference an evicted blob fail the affected resources
with SOURCE_UNAVAILABLE until a live run binds the content again.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			hashes := make([]content.Hash, len(args))
			for i, arg := range args {
				h, err := parseBlobRef(arg)
				if err != nil {
					return formatter.Fail(ErrCodeGeneric, err)
				}
				hashes[i] = h
			}

			rt, err := OpenRuntime(rootOpts, cmd)
			if err != nil {
				return formatter.Fail(errorCode(err), err)
			}
			defer rt.Close()

			evicted := make([]string, 0, len(hashes))
			for _, h := range hashes {
				err := rt.Content.Evict(h)
				if errors.Is(err, content.ErrNotFound) {
					return formatter.Fail(ErrCodeNotFound, err)
				}
				if err != nil {
					return formatter.Fail(ErrCodeStore, err)
				}
				rt.Logger.Info("evicted blob", "uri", h.URI())
				evicted = append(evicted, h.URI())
			}

			if formatter.Format == "json" {
				return formatter.Success(evicted)
			}
			fmt.Fprintf(formatter.Writer, "Evicted %d blob(s)\n", len(evicted))
			return nil
		},
	}
}

func newContentPruneCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Evict blobs the node's cached catalog does not reference",
		Long: `Evict every blob the node's cached catalog does not reference.

Blobs bound only by other nodes' catalogs are evicted too; prune from a
state directory that serves a single node.`,
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
				return formatter.Fail(ErrCodeNoCached, fmt.Errorf("no cached catalog for %s; refusing to prune", rt.Config.Node))
			}
			if err != nil {
				return formatter.Fail(ErrCodeStore, err)
			}

			keep := referencedBlobs(cat)
			removed, err := rt.Content.Prune(keep)
			if err != nil {
				return formatter.Fail(ErrCodeStore, err)
			}
			rt.Logger.Info("pruned content", "removed", removed, "kept", len(keep))

			if formatter.Format == "json" {
				return formatter.Success(map[string]int{"removed": removed, "kept": len(keep)})
			}
			fmt.Fprintf(formatter.Writer, "Removed %d blob(s), kept %d\n", removed, len(keep))
			return nil
		},
	}
}

// referencedBlobs returns the blobs bound by cat.
func referencedBlobs(cat ir.Catalog) map[content.Hash]bool {
	keep := make(map[content.Hash]bool)
	for _, r := range cat.Resources {
		for _, m := range r.Metadata {
			if h, err := content.ParseURI(m.ContentURI); err == nil {
				keep[h] = true
			}
		}
	}
	return keep
}

// parseBlobRef accepts a content URI or a bare hex hash.
func parseBlobRef(s string) (content.Hash, error) {
	if content.IsURI(s) {
		return content.ParseURI(s)
	}
	return content.ParseHash(s)
}
