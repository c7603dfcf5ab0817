package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/roach88/keel/internal/checksum"
	"github.com/roach88/keel/internal/ir"
	"github.com/roach88/keel/internal/source"
	"github.com/roach88/keel/internal/store"
)

// DefaultWorkers bounds concurrent resolution when no limit is configured.
const DefaultWorkers = 4

// Resolver turns declarations into locators and opens their content.
// Implemented by source.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, decl ir.ResourceDeclaration, versionToken string) ([]ir.ContentLocator, error)
	Open(ctx context.Context, loc ir.ContentLocator) (io.ReadCloser, error)
}

// StateStore records the last synchronized state of each path.
// Implemented by store.Store and store.Memory.
type StateStore interface {
	GetState(ctx context.Context, path string) (ir.ResourceState, error)
	PutState(ctx context.Context, st ir.ResourceState) error
	DeleteState(ctx context.Context, path string) error
}

// Engine converges the filesystem onto catalogs.
//
// Thread-safety: Apply may be called concurrently only for catalogs that
// manage disjoint paths. The agent serializes cycles per node.
type Engine struct {
	resolver Resolver
	states   StateStore
	meta     MetadataApplier
	workers  int
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets how many declarations are resolved concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithMetadataApplier replaces the default ModeApplier.
func WithMetadataApplier(m MetadataApplier) Option {
	return func(e *Engine) { e.meta = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine.
func New(resolver Resolver, states StateStore, opts ...Option) *Engine {
	e := &Engine{
		resolver: resolver,
		states:   states,
		meta:     ModeApplier{},
		workers:  DefaultWorkers,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// work is one locator scheduled for convergence.
type work struct {
	decl ir.ResourceDeclaration
	loc  ir.ContentLocator
	err  error // Resolution failure for the whole declaration
}

// path returns the target path the work item converges.
func (w work) path() string {
	if w.err != nil || w.decl.Ensure == ir.EnsureAbsent {
		return w.decl.Path
	}
	return w.loc.Path
}

// Apply converges every resource in cat. Per-resource failures are
// recorded in the report; the returned error is reserved for failures of
// the cycle itself, such as a canceled context.
func (e *Engine) Apply(ctx context.Context, cat ir.Catalog) (*Report, error) {
	items, err := e.resolveAll(ctx, cat)
	if err != nil {
		return nil, err
	}

	report := &Report{VersionToken: cat.VersionToken, Node: cat.Node}
	for _, w := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome := e.converge(ctx, w)
		report.Outcomes = append(report.Outcomes, outcome)
		e.logOutcome(outcome, cat.VersionToken)
	}
	return report, nil
}

// resolveAll resolves every declaration on the worker pool and returns the
// work in target path order. A recursed entry belongs to the nearest
// declared ancestor, so nested resources own their whole subtree.
func (e *Engine) resolveAll(ctx context.Context, cat ir.Catalog) ([]work, error) {
	type result struct {
		locs []ir.ContentLocator
		err  error
	}
	results := make([]result, len(cat.Resources))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.workers)
	for i, decl := range cat.Resources {
		wg.Add(1)
		go func(i int, decl ir.ResourceDeclaration) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i].err = ctx.Err()
				return
			}
			results[i].locs, results[i].err = e.resolver.Resolve(ctx, decl, cat.VersionToken)
		}(i, decl)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	explicit := make(map[string]bool, len(cat.Resources))
	for _, decl := range cat.Resources {
		explicit[decl.Path] = true
	}

	var items []work
	for i, decl := range cat.Resources {
		r := results[i]
		switch {
		case r.err != nil:
			items = append(items, work{decl: decl, err: r.err})
		case decl.Ensure == ir.EnsureAbsent:
			items = append(items, work{decl: decl})
		default:
			for _, loc := range r.locs {
				if loc.RelativePath != "" && ownedByNested(explicit, decl.Path, loc.Path) {
					continue
				}
				items = append(items, work{decl: decl, loc: loc})
			}
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].path() < items[j].path() })
	return items, nil
}

// ownedByNested reports whether a declared resource below root claims
// target, either as its own path or as one of its ancestors.
func ownedByNested(declared map[string]bool, root, target string) bool {
	for p := target; p != root; p = filepath.Dir(p) {
		if declared[p] {
			return true
		}
		if p == filepath.Dir(p) {
			break
		}
	}
	return false
}

// converge applies one work item and reports its outcome.
func (e *Engine) converge(ctx context.Context, w work) Outcome {
	outcome := Outcome{Resource: w.decl.Title, Path: w.path(), Status: StatusNoop}

	var (
		actions []string
		err     error
	)
	switch {
	case w.err != nil:
		err = classifyResolveError(w.decl.Path, w.err)
	case w.decl.Ensure == ir.EnsureAbsent:
		actions, err = e.remove(ctx, w.decl)
	case w.loc.Kind == ir.KindDirectory:
		actions, err = e.ensureDirectory(ctx, w.loc)
	default:
		actions, err = e.ensureFile(ctx, w.loc)
	}

	if err == nil && w.decl.Ensure != ir.EnsureAbsent {
		changed, merr := e.meta.Apply(ctx, w.decl, w.loc)
		if merr != nil {
			err = NewWriteError(w.loc.Path, "applying metadata", merr)
		} else if changed {
			actions = append(actions, ActionModeChanged)
		}
	}

	switch {
	case err != nil:
		outcome.Status = StatusFailed
		outcome.Err = err
	case len(actions) > 0:
		outcome.Status = StatusApplied
		outcome.Actions = actions
	}
	return outcome
}

// ensureFile brings a file target in sync with loc.
func (e *Engine) ensureFile(ctx context.Context, loc ir.ContentLocator) ([]string, error) {
	info, err := os.Lstat(loc.Path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, NewWriteError(loc.Path, "inspecting target", err)
	}
	if exists && info.IsDir() {
		return nil, NewWriteError(loc.Path, "target is a directory, not a file", nil)
	}

	state, hasState, err := e.lookupState(ctx, loc.Path)
	if err != nil {
		return nil, err
	}

	inSync, err := e.fileInSync(loc, exists, state, hasState)
	if err != nil {
		return nil, err
	}
	if inSync {
		return nil, e.refreshState(ctx, loc, state, hasState)
	}

	rc, err := e.resolver.Open(ctx, loc)
	if err != nil {
		return nil, classifyResolveError(loc.Path, err)
	}
	defer rc.Close()

	var existing fs.FileInfo
	if exists {
		existing = info
	}
	if err := writeAtomic(loc.Path, rc, existing); err != nil {
		if errors.Is(err, source.ErrSourceUnavailable) {
			return nil, NewSourceUnavailableError(loc.Path, err)
		}
		return nil, NewWriteError(loc.Path, "writing content", err)
	}

	if err := e.states.PutState(ctx, stateFor(loc, loc.Fingerprint)); err != nil {
		return nil, NewWriteError(loc.Path, "recording state", err)
	}

	if exists {
		return []string{ActionContentChanged}, nil
	}
	return []string{ActionCreated}, nil
}

// fileInSync decides whether the target already satisfies loc.
//
// Content hashes compare the target's current hash against the expected
// one. Time strategies trust the recorded state: the target is in sync
// when it exists and the fingerprint recorded at the last write is not
// older than the expected one. The none strategy only requires presence.
func (e *Engine) fileInSync(loc ir.ContentLocator, exists bool, state ir.ResourceState, hasState bool) (bool, error) {
	if !exists {
		return false, nil
	}
	switch t := loc.ChecksumType; {
	case t == ir.ChecksumNone:
		return true, nil
	case t.IsTimeBased():
		return hasState && checksum.InSync(t, loc.Fingerprint, state.Fingerprint), nil
	default:
		current, err := checksum.SumFile(t, loc.Path)
		if err != nil {
			return false, NewWriteError(loc.Path, "checksumming target", err)
		}
		return checksum.InSync(t, loc.Fingerprint, current), nil
	}
}

// ensureDirectory creates a directory target. Its parent must exist.
func (e *Engine) ensureDirectory(ctx context.Context, loc ir.ContentLocator) ([]string, error) {
	info, err := os.Lstat(loc.Path)
	switch {
	case err == nil && info.IsDir():
		state, hasState, err := e.lookupState(ctx, loc.Path)
		if err != nil {
			return nil, err
		}
		return nil, e.refreshState(ctx, loc, state, hasState)
	case err == nil:
		return nil, NewWriteError(loc.Path, "target exists and is not a directory", nil)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, NewWriteError(loc.Path, "inspecting target", err)
	}

	if err := os.Mkdir(loc.Path, defaultDirMode); err != nil {
		return nil, NewWriteError(loc.Path, "creating directory", err)
	}
	if err := e.states.PutState(ctx, stateFor(loc, loc.Fingerprint)); err != nil {
		return nil, NewWriteError(loc.Path, "recording state", err)
	}
	return []string{ActionDirectoryCreated}, nil
}

// remove deletes an ensure=absent target and forgets its state.
// Directories are only removed when the declaration recurses.
func (e *Engine) remove(ctx context.Context, decl ir.ResourceDeclaration) ([]string, error) {
	info, err := os.Lstat(decl.Path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := e.states.DeleteState(ctx, decl.Path); err != nil {
			return nil, NewWriteError(decl.Path, "forgetting state", err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, NewWriteError(decl.Path, "inspecting target", err)
	}

	if info.IsDir() {
		if !decl.Recurse {
			return nil, &ResourceError{
				Code:    ErrCodeInvalidResource,
				Path:    decl.Path,
				Message: "target is a directory; set recurse to remove it",
			}
		}
		err = os.RemoveAll(decl.Path)
	} else {
		err = os.Remove(decl.Path)
	}
	if err != nil {
		return nil, NewWriteError(decl.Path, "removing target", err)
	}
	if err := e.states.DeleteState(ctx, decl.Path); err != nil {
		return nil, NewWriteError(decl.Path, "forgetting state", err)
	}
	return []string{ActionRemoved}, nil
}

func (e *Engine) lookupState(ctx context.Context, path string) (ir.ResourceState, bool, error) {
	state, err := e.states.GetState(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		return ir.ResourceState{}, false, nil
	}
	if err != nil {
		return ir.ResourceState{}, false, NewWriteError(path, "reading state", err)
	}
	return state, true, nil
}

// refreshState records loc as synchronized without touching the target.
// Nothing is written when the recorded state is already current. Time
// strategies keep the recorded fingerprint, which is never older than the
// expected one when the target is in sync.
func (e *Engine) refreshState(ctx context.Context, loc ir.ContentLocator, state ir.ResourceState, hasState bool) error {
	fingerprint := loc.Fingerprint
	if hasState && loc.ChecksumType.IsTimeBased() {
		fingerprint = state.Fingerprint
	}
	want := stateFor(loc, fingerprint)
	if hasState && state == want {
		return nil
	}
	if err := e.states.PutState(ctx, want); err != nil {
		return NewWriteError(loc.Path, "recording state", err)
	}
	e.logger.Debug("state refreshed", "path", loc.Path, "version", loc.VersionToken)
	return nil
}

func stateFor(loc ir.ContentLocator, fingerprint string) ir.ResourceState {
	return ir.ResourceState{
		Path:         loc.Path,
		ChecksumType: loc.ChecksumType,
		Fingerprint:  fingerprint,
		VersionToken: loc.VersionToken,
	}
}

func classifyResolveError(path string, err error) error {
	if errors.Is(err, source.ErrSourceUnavailable) {
		return NewSourceUnavailableError(path, err)
	}
	return &ResourceError{
		Code:    ErrCodeInvalidResource,
		Path:    path,
		Message: "resolving content",
		Err:     err,
	}
}

func (e *Engine) logOutcome(o Outcome, version string) {
	switch o.Status {
	case StatusApplied:
		for _, action := range o.Actions {
			e.logger.Info(action, "path", o.Path, "version", version)
		}
	case StatusFailed:
		e.logger.Error("resource failed", "path", o.Path, "version", version, "error", o.Err)
	default:
		e.logger.Debug("in sync", "path", o.Path, "version", version)
	}
}

// String implements fmt.Stringer for log output.
func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s %s: %v", o.Status, o.Path, o.Err)
	}
	return fmt.Sprintf("%s %s %v", o.Status, o.Path, o.Actions)
}
