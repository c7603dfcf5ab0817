package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/keel/internal/engine"
	"github.com/roach88/keel/internal/ir"
	"github.com/roach88/keel/internal/store"
)

// Compiler produces a node's catalog. Implemented by compiler.Compiler.
type Compiler interface {
	Compile(ctx context.Context, node string) (ir.Catalog, error)
}

// Cache holds the most recent catalog per node. Implemented by store.Store
// and store.Memory.
type Cache interface {
	StoreCatalog(ctx context.Context, c ir.Catalog) error
	RetrieveLatest(ctx context.Context, node string) (ir.Catalog, error)
}

// ReportWriter persists run summaries.
type ReportWriter interface {
	WriteReport(ctx context.Context, r ir.RunReport) error
}

// Applier converges a catalog. Implemented by engine.Engine.
type Applier interface {
	Apply(ctx context.Context, cat ir.Catalog) (*engine.Report, error)
}

// Agent runs apply cycles for a single node.
type Agent struct {
	node     string
	applier  Applier
	compiler Compiler
	cache    Cache
	reports  ReportWriter
	lockPath string
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithCompiler enables live cycles.
func WithCompiler(c Compiler) Option {
	return func(a *Agent) { a.compiler = c }
}

// WithCache enables catalog caching and cached cycles.
func WithCache(c Cache) Option {
	return func(a *Agent) { a.cache = c }
}

// WithReports persists the summary of every finished cycle.
func WithReports(r ReportWriter) Option {
	return func(a *Agent) { a.reports = r }
}

// WithLockFile serializes cycles across processes through an exclusive
// lock on path.
func WithLockFile(path string) Option {
	return func(a *Agent) { a.lockPath = path }
}

// WithClock sets the clock that timestamps run reports.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New creates an agent for node that applies catalogs with applier.
func New(node string, applier Applier, opts ...Option) *Agent {
	a := &Agent{
		node:    node,
		applier: applier,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Node returns the node the agent converges.
func (a *Agent) Node() string {
	return a.node
}

// Result is the outcome of one cycle.
type Result struct {
	Mode    ir.RunMode
	Catalog ir.Catalog
	Report  *engine.Report
	Summary ir.RunReport
}

// Run executes one live or cached cycle.
func (a *Agent) Run(ctx context.Context, mode ir.RunMode) (*Result, error) {
	switch mode {
	case ir.ModeLive, ir.ModeCached:
	default:
		return nil, fmt.Errorf("run: unsupported mode %q", mode)
	}

	var res *Result
	err := a.locked(func() error {
		cat, err := a.selectCatalog(ctx, mode)
		if err != nil {
			return err
		}
		res, err = a.apply(ctx, mode, cat)
		return err
	})
	return res, err
}

// ApplyCatalog executes a local cycle over cat. The catalog is neither
// compiled nor cached.
func (a *Agent) ApplyCatalog(ctx context.Context, cat ir.Catalog) (*Result, error) {
	var res *Result
	err := a.locked(func() error {
		var err error
		res, err = a.apply(ctx, ir.ModeLocal, cat)
		return err
	})
	return res, err
}

// selectCatalog returns the catalog a live or cached cycle applies.
func (a *Agent) selectCatalog(ctx context.Context, mode ir.RunMode) (ir.Catalog, error) {
	if mode == ir.ModeCached {
		if a.cache == nil {
			return ir.Catalog{}, fmt.Errorf("cached run: %w", ErrNoCachedCatalog)
		}
		cat, err := a.cache.RetrieveLatest(ctx, a.node)
		if errors.Is(err, store.ErrNotFound) {
			return ir.Catalog{}, fmt.Errorf("cached run for %s: %w", a.node, ErrNoCachedCatalog)
		}
		if err != nil {
			return ir.Catalog{}, fmt.Errorf("cached run: %w", err)
		}
		a.logger.Info("using cached catalog", "node", a.node, "version", cat.VersionToken)
		return cat, nil
	}

	if a.compiler == nil {
		return ir.Catalog{}, errors.New("live run: no compiler configured")
	}
	cat, err := a.compiler.Compile(ctx, a.node)
	if err != nil {
		return ir.Catalog{}, fmt.Errorf("compile catalog for %s: %w", a.node, err)
	}
	a.logger.Info("compiled catalog", "node", a.node, "version", cat.VersionToken, "resources", len(cat.Resources))

	if a.cache != nil {
		if err := a.cache.StoreCatalog(ctx, cat); err != nil {
			return ir.Catalog{}, fmt.Errorf("cache catalog: %w", err)
		}
	}
	return cat, nil
}

func (a *Agent) apply(ctx context.Context, mode ir.RunMode, cat ir.Catalog) (*Result, error) {
	report, err := a.applier.Apply(ctx, cat)
	if err != nil {
		return nil, fmt.Errorf("apply catalog %s: %w", cat.VersionToken, err)
	}

	res := &Result{
		Mode:    mode,
		Catalog: cat,
		Report:  report,
		Summary: report.Summary(mode, a.now()),
	}
	if a.reports != nil {
		if err := a.reports.WriteReport(ctx, res.Summary); err != nil {
			return res, fmt.Errorf("write report: %w", err)
		}
	}

	a.logger.Info("applied catalog",
		"node", cat.Node,
		"version", cat.VersionToken,
		"mode", string(mode),
		"status", string(res.Summary.Status),
		"changed", len(report.Changed()),
		"failed", len(report.Failed()),
	)
	return res, nil
}

// locked runs fn while holding the run lock, if one is configured.
func (a *Agent) locked(fn func() error) (err error) {
	if a.lockPath == "" {
		return fn()
	}
	lock, err := acquireLock(a.lockPath)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lock.release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}
