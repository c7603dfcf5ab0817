package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/keel/internal/compiler"
	"github.com/roach88/keel/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile the node's catalog",
		Long: `Compile the environment's manifests into the node's catalog.

Module sources are copied into the content store and bound to the catalog.
The catalog is printed, or written to --output, but not cached.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	rt, err := OpenRuntime(opts.RootOptions, cmd)
	if err != nil {
		return formatter.Fail(errorCode(err), err)
	}
	defer rt.Close()

	formatter.VerboseLog("Compiling %s for %s", rt.Config.ManifestDir(), rt.Config.Node)
	cat, err := rt.Compiler().Compile(cmd.Context(), rt.Config.Node)
	if err != nil {
		return outputCompileError(formatter, err)
	}

	if opts.Output != "" {
		if err := writeCatalogToFile(cat, opts.Output); err != nil {
			return formatter.Fail(ErrCodeWriteFailed, err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(cat)
	}
	printCatalog(formatter.Writer, cat)
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote catalog to %s\n", opts.Output)
	}
	return nil
}

// printCatalog writes a human-readable catalog listing.
func printCatalog(w io.Writer, cat ir.Catalog) {
	fmt.Fprintf(w, "Catalog %s for %s (%s): %d resource(s)\n",
		cat.VersionToken, cat.Node, cat.Environment, len(cat.Resources))
	for _, r := range cat.Resources {
		fmt.Fprintf(w, "  %s  ensure=%s checksum=%s", r.Path, r.Ensure, r.Checksum)
		if r.Mode != "" {
			fmt.Fprintf(w, " mode=%s", r.Mode)
		}
		if len(r.Metadata) > 0 {
			fmt.Fprintf(w, " entries=%d", len(r.Metadata))
		}
		fmt.Fprintln(w)
	}
}

// outputCompileError reports a compile failure with its source position.
func outputCompileError(formatter *OutputFormatter, err error) error {
	code := errorCode(err)

	var compileErr *compiler.CompileError
	if !errors.As(err, &compileErr) {
		return formatter.Fail(code, err)
	}

	var details map[string]any
	if compileErr.Pos.IsValid() {
		details = map[string]any{
			"file":   compileErr.Pos.Filename(),
			"line":   compileErr.Pos.Line(),
			"column": compileErr.Pos.Column(),
		}
	}
	if formatter.Format == "json" {
		_ = formatter.Error(code, compileErr.Message, withField(details, compileErr.Field))
		return WrapExitError(ExitFailure, "compilation failed", err)
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	if details != nil {
		fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", details["file"], details["line"], details["column"])
	}
	fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", code, compileErr.Field, compileErr.Message)
	return WrapExitError(ExitFailure, "compilation failed", err)
}

func withField(details map[string]any, field string) map[string]any {
	if details == nil {
		details = map[string]any{}
	}
	details["field"] = field
	return details
}

// writeCatalogToFile writes the catalog as indented JSON.
func writeCatalogToFile(cat ir.Catalog, filename string) error {
	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling catalog: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
