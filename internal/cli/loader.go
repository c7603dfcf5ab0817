package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/keel/internal/agent"
	"github.com/roach88/keel/internal/compiler"
	"github.com/roach88/keel/internal/config"
	"github.com/roach88/keel/internal/content"
	"github.com/roach88/keel/internal/engine"
	"github.com/roach88/keel/internal/ir"
	"github.com/roach88/keel/internal/source"
	"github.com/roach88/keel/internal/store"
)

// Runtime is the configuration and open stores shared by commands.
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *store.Store
	Content  *content.Store
	Resolver *source.Resolver
}

// LoadConfig loads the configuration named by --config (or KEEL_CONFIG)
// and applies the global flag overrides.
func LoadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Node != "" || opts.Environment != "" {
		if opts.Node != "" {
			cfg.Node = opts.Node
		}
		if opts.Environment != "" {
			cfg.Environment = opts.Environment
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return cfg, nil
}

// OpenRuntime loads the configuration and opens the state database and
// content store. Logs go to the command's stderr.
func OpenRuntime(opts *RootOptions, cmd *cobra.Command) (*Runtime, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: err.Error()}
	}

	level := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: fmt.Sprintf("creating state directory: %v", err)}
	}
	blobs, err := content.NewStore(cfg.ContentDir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: fmt.Sprintf("opening content store: %v", err)}
	}
	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: fmt.Sprintf("opening state database: %v", err)}
	}

	logger.Debug("runtime opened",
		"node", cfg.Node,
		"environment", cfg.Environment,
		"state_dir", cfg.StateDir,
	)
	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Store:    db,
		Content:  blobs,
		Resolver: source.NewResolver(blobs, cfg.ModulePath),
	}, nil
}

// Close closes the state database.
func (r *Runtime) Close() error {
	return r.Store.Close()
}

// Compiler returns a compiler for the configured environment.
func (r *Runtime) Compiler(opts ...compiler.Option) *compiler.Compiler {
	opts = append([]compiler.Option{
		compiler.WithDefaultChecksum(ir.ChecksumType(r.Config.DefaultChecksum)),
		compiler.WithLogger(r.Logger),
	}, opts...)
	return compiler.New(r.Config.ManifestDir(), r.Config.Environment, r.Resolver, opts...)
}

// Agent returns an agent for the configured node. Live cycles use c.
func (r *Runtime) Agent(c agent.Compiler, workers int) *agent.Agent {
	if workers < 1 {
		workers = r.Config.Workers
	}
	eng := engine.New(r.Resolver, r.Store,
		engine.WithWorkers(workers),
		engine.WithLogger(r.Logger))
	opts := []agent.Option{
		agent.WithCache(r.Store),
		agent.WithReports(r.Store),
		agent.WithLockFile(r.Config.LockPath()),
		agent.WithLogger(r.Logger),
	}
	if c != nil {
		opts = append(opts, agent.WithCompiler(c))
	}
	return agent.New(r.Config.Node, eng, opts...)
}

// LoadError is a command setup failure with its error code.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeConfig        = "E002" // Invalid or unreadable configuration
	ErrCodeNoManifests   = "E003" // No manifests found
	ErrCodeReadFailed    = "E004" // Input file unreadable
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // CUE build failed
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeStore         = "E008" // State database or content store error
	ErrCodeNoCached      = "E009" // No cached catalog for the node
	ErrCodeRunInProgress = "E010" // Another cycle holds the run lock
	ErrCodeApplyFailed   = "E011" // Cycle aborted while applying

	// Declaration errors
	ErrCodeDeclaration = "E101" // Malformed or conflicting declaration
	ErrCodeSource      = "E102" // Source missing or unusable
	ErrCodeEnsure      = "E103" // Invalid ensure value
	ErrCodeChecksum    = "E104" // Invalid checksum strategy
	ErrCodeMode        = "E105" // Invalid mode
	ErrCodePath        = "E106" // Invalid or duplicate target path
	ErrCodeNode        = "E107" // Missing node name
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "cue":
		return ErrCodeBuildFailed
	case "manifest":
		return ErrCodeNoManifests
	case "node":
		return ErrCodeNode
	case "path":
		return ErrCodePath
	}
	if !strings.HasPrefix(field, "file.") && !strings.HasPrefix(field, "node.") {
		return ErrCodeGeneric
	}
	switch field[strings.LastIndex(field, ".")+1:] {
	case "source", "content":
		return ErrCodeSource
	case "ensure":
		return ErrCodeEnsure
	case "checksum":
		return ErrCodeChecksum
	case "mode":
		return ErrCodeMode
	case "path":
		return ErrCodePath
	default:
		return ErrCodeDeclaration
	}
}

// errorCode classifies an error returned by the compiler, the agent or
// command setup.
func errorCode(err error) string {
	var (
		loadErr    *LoadError
		compileErr *compiler.CompileError
	)
	switch {
	case errors.As(err, &loadErr):
		return loadErr.Code
	case errors.As(err, &compileErr):
		return MapFieldToErrorCode(compileErr.Field)
	case errors.Is(err, agent.ErrNoCachedCatalog):
		return ErrCodeNoCached
	case errors.Is(err, agent.ErrRunInProgress):
		return ErrCodeRunInProgress
	case errors.Is(err, store.ErrNotFound):
		return ErrCodeNotFound
	default:
		return ErrCodeGeneric
	}
}
