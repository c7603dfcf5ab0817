package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/roach88/keel/internal/agent"
	"github.com/roach88/keel/internal/compiler"
	"github.com/roach88/keel/internal/content"
	"github.com/roach88/keel/internal/engine"
	"github.com/roach88/keel/internal/ir"
	"github.com/roach88/keel/internal/source"
	"github.com/roach88/keel/internal/store"
	"github.com/roach88/keel/internal/testutil"
)

// Harness holds one scenario's scratch environment.
type Harness struct {
	scenario  *Scenario
	dir       string
	target    string
	modules   string
	manifests string

	content  *content.Store
	store    *store.Store
	compiler *compiler.Compiler
	local    *compiler.Compiler
	agent    *agent.Agent

	// times hands out module file timestamps, one hour apart.
	times *testutil.DeterministicClock
}

// Run executes a scenario in a fresh scratch directory and returns the
// result. The directory is removed afterwards.
//
// The returned error is reserved for failures of the harness itself;
// unmet expectations are reported in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "keel-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)
	return RunInDir(ctx, scenario, dir)
}

// RunInDir executes a scenario using dir as its scratch directory.
//
// Execution flow:
// 1. Lay out modules, target and manifest below dir
// 2. Open a SQLite store and content store in dir
// 3. Execute steps, checking each cycle against its expect clause
// 4. Evaluate final assertions
func RunInDir(ctx context.Context, scenario *Scenario, dir string) (*Result, error) {
	h, err := setup(scenario, dir)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.prepare(step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		if step.Run == "" {
			continue
		}
		event, err := h.cycle(ctx, i, step)
		result.Trace = append(result.Trace, event)
		checkExpect(result, i, step.Expect, event, err)
	}

	for _, msg := range EvaluateAssertions(ctx, h, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func setup(s *Scenario, dir string) (*Harness, error) {
	h := &Harness{
		scenario:  s,
		dir:       dir,
		target:    filepath.Join(dir, "target"),
		modules:   filepath.Join(dir, "modules"),
		manifests: filepath.Join(dir, "manifests"),
		times:     testutil.NewDeterministicClock(testutil.DefaultEpoch, time.Hour),
	}
	for _, d := range []string{h.target, h.modules, h.manifests} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	var err error
	if h.content, err = content.NewStore(filepath.Join(dir, "content")); err != nil {
		return nil, fmt.Errorf("failed to create content store: %w", err)
	}
	if h.store, err = store.Open(filepath.Join(dir, "keel.db")); err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := h.writeModules(s.Modules); err != nil {
		h.store.Close()
		return nil, err
	}
	if err := h.writeTarget(s.Target); err != nil {
		h.store.Close()
		return nil, err
	}
	if err := h.writeManifest(s.Manifest); err != nil {
		h.store.Close()
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := source.NewResolver(h.content, []string{h.modules})
	checksumType := ir.DefaultChecksum
	if s.DefaultChecksum != "" {
		checksumType = ir.ChecksumType(s.DefaultChecksum)
	}
	tokens := compiler.NewFixedGenerator(s.Tokens...)
	h.compiler = compiler.New(h.manifests, "production", resolver,
		compiler.WithTokenGenerator(tokens),
		compiler.WithDefaultChecksum(checksumType),
		compiler.WithLogger(logger))
	h.local = compiler.New(h.manifests, "production", resolver,
		compiler.WithTokenGenerator(tokens),
		compiler.WithDefaultChecksum(checksumType),
		compiler.WithLiveSources(),
		compiler.WithLogger(logger))

	eng := engine.New(resolver, h.store, engine.WithWorkers(s.Workers), engine.WithLogger(logger))
	reportClock := testutil.NewDeterministicClock(testutil.DefaultEpoch, time.Second)
	h.agent = agent.New(s.Node, eng,
		agent.WithCompiler(h.compiler),
		agent.WithCache(h.store),
		agent.WithReports(h.store),
		agent.WithLockFile(filepath.Join(dir, "agent.lock")),
		agent.WithClock(reportClock.Now),
		agent.WithLogger(logger))
	return h, nil
}

// prepare performs the step's environment changes.
func (h *Harness) prepare(step Step) error {
	if step.Manifest != "" {
		if err := h.writeManifest(step.Manifest); err != nil {
			return err
		}
	}
	if err := h.writeModules(step.WriteModules); err != nil {
		return err
	}
	for _, rel := range step.TouchModules {
		ts := h.times.Now()
		if err := os.Chtimes(h.modulePath(rel), ts, ts); err != nil {
			return fmt.Errorf("failed to touch module %s: %w", rel, err)
		}
	}
	if err := h.writeTarget(step.WriteTarget); err != nil {
		return err
	}
	for _, rel := range step.RemoveTarget {
		if err := os.RemoveAll(h.targetPath(rel)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", rel, err)
		}
	}
	for _, data := range step.EvictContent {
		if err := h.content.Evict(content.HashBlob([]byte(data))); err != nil {
			return fmt.Errorf("failed to evict content %q: %w", data, err)
		}
	}
	return nil
}

// cycle runs one agent cycle and records it.
func (h *Harness) cycle(ctx context.Context, index int, step Step) (TraceEvent, error) {
	event := TraceEvent{Step: index, Mode: step.Run}

	var (
		res *agent.Result
		err error
	)
	if step.Run == RunCompile {
		cat, err := h.compiler.Compile(ctx, h.scenario.Node)
		if err != nil {
			event.Error = classifyError(err)
			return event, err
		}
		event.Version = cat.VersionToken
		return event, nil
	}
	if step.Run == string(ir.ModeLocal) {
		var cat ir.Catalog
		cat, err = h.local.Compile(ctx, h.scenario.Node)
		if err == nil {
			res, err = h.agent.ApplyCatalog(ctx, cat)
		}
	} else {
		res, err = h.agent.Run(ctx, ir.RunMode(step.Run))
	}
	if err != nil {
		event.Error = classifyError(err)
		return event, err
	}

	event.Version = res.Summary.VersionToken
	event.Status = string(res.Summary.Status)
	for _, c := range res.Summary.Changed {
		event.Changed = append(event.Changed, c.Action+" "+h.relative(c.Path))
	}
	for _, f := range res.Summary.Failed {
		event.Failed = append(event.Failed, f.Code+" "+h.relative(f.Path))
	}
	return event, nil
}

// classifyError names a cycle error without scratch paths.
func classifyError(err error) string {
	var ce *compiler.CompileError
	switch {
	case errors.Is(err, agent.ErrNoCachedCatalog):
		return "no cached catalog"
	case errors.Is(err, agent.ErrRunInProgress):
		return "run in progress"
	case errors.As(err, &ce):
		return "compile error: " + ce.Field
	default:
		return "error"
	}
}

// checkExpect compares a cycle against its expect clause.
func checkExpect(result *Result, index int, want *Expect, got TraceEvent, err error) {
	prefix := fmt.Sprintf("step %d (%s)", index, got.Mode)
	if want == nil {
		if err != nil {
			result.AddError(fmt.Sprintf("%s: unexpected error: %v", prefix, err))
		}
		return
	}

	if want.Error != "" {
		if err == nil {
			result.AddError(fmt.Sprintf("%s: expected error containing %q, cycle succeeded", prefix, want.Error))
		} else if !strings.Contains(err.Error(), want.Error) && !strings.Contains(got.Error, want.Error) {
			result.AddError(fmt.Sprintf("%s: expected error containing %q, got %v", prefix, want.Error, err))
		}
		return
	}
	if err != nil {
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", prefix, err))
		return
	}

	if want.Status != "" && want.Status != got.Status {
		result.AddError(fmt.Sprintf("%s: status: expected %q, got %q", prefix, want.Status, got.Status))
	}
	if want.Version != "" && want.Version != got.Version {
		result.AddError(fmt.Sprintf("%s: version: expected %q, got %q", prefix, want.Version, got.Version))
	}
	if want.Changed != nil && !slices.Equal(want.Changed, got.Changed) {
		result.AddError(fmt.Sprintf("%s: changed: expected %q, got %q", prefix, want.Changed, got.Changed))
	}
	if want.Failed != nil && !slices.Equal(want.Failed, got.Failed) {
		result.AddError(fmt.Sprintf("%s: failed: expected %q, got %q", prefix, want.Failed, got.Failed))
	}
}

func (h *Harness) writeManifest(src string) error {
	src = strings.ReplaceAll(src, "{{target}}", filepath.ToSlash(h.target))
	path := filepath.Join(h.manifests, "site.cue")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// writeModules writes module files in sorted order, stamping each with
// the next deterministic timestamp.
func (h *Harness) writeModules(files map[string]string) error {
	for _, rel := range testutil.SortedKeys(files) {
		path := h.modulePath(rel)
		if err := writeFile(path, files[rel]); err != nil {
			return fmt.Errorf("failed to write module %s: %w", rel, err)
		}
		ts := h.times.Now()
		if err := os.Chtimes(path, ts, ts); err != nil {
			return fmt.Errorf("failed to stamp module %s: %w", rel, err)
		}
	}
	return nil
}

func (h *Harness) writeTarget(files map[string]string) error {
	for _, rel := range testutil.SortedKeys(files) {
		if err := writeFile(h.targetPath(rel), files[rel]); err != nil {
			return fmt.Errorf("failed to write target %s: %w", rel, err)
		}
	}
	return nil
}

// modulePath maps <module>/<path> to its location on the module path.
func (h *Harness) modulePath(rel string) string {
	module, path, _ := strings.Cut(rel, "/")
	return filepath.Join(h.modules, module, "files", filepath.FromSlash(path))
}

func (h *Harness) targetPath(rel string) string {
	return filepath.Join(h.target, filepath.FromSlash(rel))
}

func (h *Harness) relative(path string) string {
	rel, err := filepath.Rel(h.target, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func writeFile(path, data string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(data), 0o644)
}
