package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/roach88/keel/internal/agent"
	"github.com/roach88/keel/internal/compiler"
	"github.com/roach88/keel/internal/ir"
)

// CycleOptions holds flags shared by the agent and apply commands.
type CycleOptions struct {
	*RootOptions
	Workers int // resolution concurrency, 0 for the configured value
}

func addCycleFlags(fs *pflag.FlagSet, opts *CycleOptions) {
	fs.IntVar(&opts.Workers, "workers", 0, "concurrent content resolutions (default from config)")
}

// AgentOptions holds flags for the agent command.
type AgentOptions struct {
	CycleOptions
	UseCached bool
}

// NewAgentCommand creates the agent command.
func NewAgentCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AgentOptions{CycleOptions: CycleOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run one apply cycle for the node",
		Long: `Run one apply cycle for the node.

By default the catalog is compiled, cached and applied. With
--use-cached-catalog the last cached catalog is applied instead, restoring
the content bound when it was compiled.

Exit codes:
  0 - No changes
  1 - The cycle could not run (compile error, no cached catalog, ...)
  2 - Changes applied
  4 - Resource failures
  6 - Changes applied and resource failures`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := ir.ModeLive
			if opts.UseCached {
				mode = ir.ModeCached
			}
			return runAgent(opts, mode, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.UseCached, "use-cached-catalog", false, "apply the cached catalog instead of compiling")
	addCycleFlags(cmd.Flags(), &opts.CycleOptions)

	return cmd
}

func runAgent(opts *AgentOptions, mode ir.RunMode, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	rt, err := OpenRuntime(opts.RootOptions, cmd)
	if err != nil {
		return formatter.Fail(errorCode(err), err)
	}
	defer rt.Close()

	a := rt.Agent(rt.Compiler(), opts.Workers)
	res, err := a.Run(cmd.Context(), mode)
	return finishCycle(formatter, res, err)
}

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	CycleOptions
	Execute string // inline manifest source
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{CycleOptions: CycleOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "apply [manifest.cue]",
		Short: "Compile and apply manifests locally",
		Long: `Compile manifests in-process and apply them without caching.

Sources are read from the module path while applying, not bound at compile
time. With no argument the environment's manifests are used; -e applies an
inline manifest.

Examples:
  keel apply site.cue
  keel apply -e 'file: "/etc/motd": content: "hello\n"'

Exit codes are those of the agent command.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Execute, "execute", "e", "", "inline manifest source")
	addCycleFlags(cmd.Flags(), &opts.CycleOptions)

	return cmd
}

func runApply(opts *ApplyOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if opts.Execute != "" && len(args) > 0 {
		return formatter.Fail(ErrCodeGeneric, fmt.Errorf("give a manifest file or -e, not both"))
	}

	rt, err := OpenRuntime(opts.RootOptions, cmd)
	if err != nil {
		return formatter.Fail(errorCode(err), err)
	}
	defer rt.Close()

	cat, err := compileLocal(cmd.Context(), rt, opts.Execute, args)
	if err != nil {
		if _, ok := err.(*LoadError); ok {
			return formatter.Fail(errorCode(err), err)
		}
		return outputCompileError(formatter, err)
	}
	formatter.VerboseLog("Compiled local catalog %s: %d resource(s)", cat.VersionToken, len(cat.Resources))

	a := rt.Agent(nil, opts.Workers)
	res, err := a.ApplyCatalog(cmd.Context(), cat)
	return finishCycle(formatter, res, err)
}

// compileLocal compiles the manifest named by args, the inline source, or
// the environment's manifests, leaving sources unbound.
func compileLocal(ctx context.Context, rt *Runtime, inline string, args []string) (ir.Catalog, error) {
	c := rt.Compiler(compiler.WithLiveSources())
	switch {
	case inline != "":
		return c.CompileSource(ctx, rt.Config.Node, "<inline>", []byte(inline))
	case len(args) == 1:
		src, err := os.ReadFile(args[0])
		if os.IsNotExist(err) {
			return ir.Catalog{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest not found: %s", args[0])}
		}
		if err != nil {
			return ir.Catalog{}, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading manifest: %v", err)}
		}
		return c.CompileSource(ctx, rt.Config.Node, filepath.Base(args[0]), src)
	default:
		return c.Compile(ctx, rt.Config.Node)
	}
}

// finishCycle prints a cycle's outcome and maps it to an exit code.
func finishCycle(formatter *OutputFormatter, res *agent.Result, err error) error {
	if err != nil {
		if res == nil {
			if errorCode(err) == ErrCodeGeneric {
				return formatter.Fail(ErrCodeApplyFailed, err)
			}
			return outputCompileError(formatter, err)
		}
		// The cycle ran but its report could not be persisted.
		return formatter.Fail(ErrCodeStore, err)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(res.Summary); err != nil {
			return err
		}
	} else {
		printReport(formatter.Writer, res.Summary)
	}

	if code := DetailedExitCode(res.Summary); code != ExitSuccess {
		return NewExitError(code, string(res.Summary.Status))
	}
	return nil
}

// printReport writes a human-readable run report.
func printReport(w io.Writer, r ir.RunReport) {
	fmt.Fprintf(w, "%s run of %s for %s: %s\n", r.Mode, r.VersionToken, r.Node, r.Status)
	for _, c := range r.Changed {
		fmt.Fprintf(w, "  ✓ %s: %s\n", c.Path, c.Action)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  ✗ %s: %s: %s\n", f.Path, f.Code, f.Reason)
	}
	if r.FinishedAt != "" {
		fmt.Fprintf(w, "Finished at %s\n", r.FinishedAt)
	}
}
