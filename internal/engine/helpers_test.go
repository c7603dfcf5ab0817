package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/keel/internal/checksum"
	"github.com/roach88/keel/internal/content"
	"github.com/roach88/keel/internal/ir"
	"github.com/roach88/keel/internal/source"
	"github.com/roach88/keel/internal/store"
)

// countingStore wraps the in-memory store and counts state writes.
type countingStore struct {
	*store.Memory
	mu   sync.Mutex
	puts int
}

func (s *countingStore) PutState(ctx context.Context, st ir.ResourceState) error {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return s.Memory.PutState(ctx, st)
}

func (s *countingStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

type harness struct {
	t       *testing.T
	root    string
	target  string
	content *content.Store
	states  *countingStore
	engine  *Engine
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	root := t.TempDir()
	cs, err := content.NewStore(filepath.Join(root, "content"))
	require.NoError(t, err)
	target := filepath.Join(root, "target")
	require.NoError(t, os.MkdirAll(target, 0o755))

	states := &countingStore{Memory: store.NewMemory()}
	resolver := source.NewResolver(cs, []string{filepath.Join(root, "modules")})
	return &harness{
		t:       t,
		root:    root,
		target:  target,
		content: cs,
		states:  states,
		engine:  New(resolver, states, opts...),
	}
}

// path returns an absolute path under the target directory.
func (h *harness) path(rel string) string {
	return filepath.Join(h.target, filepath.FromSlash(rel))
}

// fileDecl builds a declaration bound to data as a compile would.
func (h *harness) fileDecl(rel, data string, t ir.ChecksumType) ir.ResourceDeclaration {
	h.t.Helper()
	return ir.ResourceDeclaration{
		Title:    h.path(rel),
		Path:     h.path(rel),
		Ensure:   ir.EnsurePresent,
		Checksum: t,
		Metadata: []ir.FileMetadata{h.bind("", data, t)},
	}
}

// bind stores data and returns its metadata entry. Time strategies get
// a fixed timestamp; use withFingerprint to change it.
func (h *harness) bind(rel, data string, t ir.ChecksumType) ir.FileMetadata {
	h.t.Helper()
	hash, err := h.content.Put([]byte(data))
	require.NoError(h.t, err)

	var fp string
	if t.IsTimeBased() {
		fp = "{" + string(t) + "}2026-10-19T10:00:00Z"
	} else {
		fp, err = source.BlobFingerprint(t, []byte(data))
		require.NoError(h.t, err)
	}
	return ir.FileMetadata{
		RelativePath: rel,
		Kind:         ir.KindFile,
		ContentURI:   hash.URI(),
		Checksum:     fp,
		Size:         int64(len(data)),
	}
}

func (h *harness) catalog(token string, decls ...ir.ResourceDeclaration) ir.Catalog {
	h.t.Helper()
	cat, err := ir.Seal(ir.Catalog{
		FormatVersion: ir.CatalogFormatVersion,
		VersionToken:  token,
		Node:          "web01",
		Environment:   "production",
		Resources:     decls,
	})
	require.NoError(h.t, err)
	return cat
}

func (h *harness) apply(cat ir.Catalog) *Report {
	h.t.Helper()
	report, err := h.engine.Apply(context.Background(), cat)
	require.NoError(h.t, err)
	return report
}

func (h *harness) read(rel string) string {
	h.t.Helper()
	data, err := os.ReadFile(h.path(rel))
	require.NoError(h.t, err)
	return string(data)
}

func (h *harness) write(rel, data string) {
	h.t.Helper()
	require.NoError(h.t, os.WriteFile(h.path(rel), []byte(data), 0o644))
}

func withFingerprint(d ir.ResourceDeclaration, fp string) ir.ResourceDeclaration {
	md := make([]ir.FileMetadata, len(d.Metadata))
	copy(md, d.Metadata)
	md[0].Checksum = fp
	d.Metadata = md
	return d
}

func mustSum(t *testing.T, typ ir.ChecksumType, data string) string {
	t.Helper()
	fp, err := checksum.SumBytes(typ, []byte(data))
	require.NoError(t, err)
	return fp
}
