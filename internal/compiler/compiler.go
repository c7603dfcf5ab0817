package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/keel/internal/ir"
	"github.com/roach88/keel/internal/source"
)

// Compiler compiles an environment's manifests into catalogs.
type Compiler struct {
	manifestDir     string
	environment     string
	resolver        *source.Resolver
	tokens          VersionTokenGenerator
	defaultChecksum ir.ChecksumType
	bindContent     bool
	logger          *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithTokenGenerator overrides the version token source.
func WithTokenGenerator(g VersionTokenGenerator) Option {
	return func(c *Compiler) { c.tokens = g }
}

// WithDefaultChecksum sets the strategy for declarations that name none.
func WithDefaultChecksum(t ir.ChecksumType) Option {
	return func(c *Compiler) { c.defaultChecksum = t }
}

// WithLiveSources leaves sources unbound: declarations carry no metadata
// and resolve against the filesystem when applied.
func WithLiveSources() Option {
	return func(c *Compiler) { c.bindContent = false }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// New creates a compiler for the manifests in manifestDir. The resolver
// locates module sources and holds the content store compiled bytes are
// copied into.
func New(manifestDir, environment string, resolver *source.Resolver, opts ...Option) *Compiler {
	c := &Compiler{
		manifestDir:     manifestDir,
		environment:     environment,
		resolver:        resolver,
		tokens:          UUIDv7Generator{},
		defaultChecksum: ir.DefaultChecksum,
		bindContent:     true,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile compiles every manifest in the environment for node.
func (c *Compiler) Compile(ctx context.Context, node string) (ir.Catalog, error) {
	files, err := FindManifests(c.manifestDir)
	if err != nil {
		return ir.Catalog{}, err
	}

	cctx := cuecontext.New()
	value := cctx.CompileString("")
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return ir.Catalog{}, fmt.Errorf("read manifest: %w", err)
		}
		v := cctx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return ir.Catalog{}, formatCUEError(err)
		}
		value = value.Unify(v)
	}
	return c.CompileValue(ctx, node, value)
}

// CompileSource compiles a single in-memory manifest for node. name is
// used in error positions.
func (c *Compiler) CompileSource(ctx context.Context, node, name string, src []byte) (ir.Catalog, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return ir.Catalog{}, formatCUEError(err)
	}
	return c.CompileValue(ctx, node, v)
}

// CompileValue compiles an already-built CUE value for node.
func (c *Compiler) CompileValue(ctx context.Context, node string, v cue.Value) (ir.Catalog, error) {
	if node == "" {
		return ir.Catalog{}, &CompileError{Field: "node", Message: "node name is required"}
	}
	if err := v.Validate(); err != nil {
		return ir.Catalog{}, formatCUEError(err)
	}

	decls, err := selectDeclarations(v, node, c.defaultChecksum)
	if err != nil {
		return ir.Catalog{}, err
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Path < decls[j].Path })

	if c.bindContent {
		for i := range decls {
			if err := ctx.Err(); err != nil {
				return ir.Catalog{}, err
			}
			if decls[i].Metadata, err = c.bind(ctx, decls[i]); err != nil {
				return ir.Catalog{}, err
			}
		}
	}

	catalog := ir.Catalog{
		FormatVersion: ir.CatalogFormatVersion,
		VersionToken:  c.tokens.Generate(),
		Node:          node,
		Environment:   c.environment,
		Resources:     decls,
	}
	if catalog.Resources == nil {
		catalog.Resources = []ir.ResourceDeclaration{}
	}
	sealed, err := ir.Seal(catalog)
	if err != nil {
		return ir.Catalog{}, fmt.Errorf("seal catalog: %w", err)
	}

	c.logger.Debug("compiled catalog",
		"node", node,
		"version", sealed.VersionToken,
		"resources", len(sealed.Resources),
	)
	return sealed, nil
}

// FindManifests returns the .cue files directly inside dir, sorted.
func FindManifests(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &CompileError{Field: "manifest", Message: fmt.Sprintf("reading manifest directory: %v", err)}
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".cue") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, &CompileError{Field: "manifest", Message: fmt.Sprintf("no manifests found in %s", dir)}
	}
	return files, nil
}
