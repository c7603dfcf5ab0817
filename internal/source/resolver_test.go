package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/keel/internal/checksum"
	"github.com/roach88/keel/internal/content"
	"github.com/roach88/keel/internal/ir"
	"github.com/roach88/keel/internal/testutil"
)

type fixture struct {
	resolver *Resolver
	store    *content.Store
	modules  string
	target   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	store, err := content.NewStore(filepath.Join(root, "content"))
	require.NoError(t, err)
	modules := filepath.Join(root, "modules")
	require.NoError(t, os.MkdirAll(modules, 0o755))
	return fixture{
		resolver: NewResolver(store, []string{modules}),
		store:    store,
		modules:  modules,
		target:   filepath.Join(root, "target"),
	}
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func readAll(t *testing.T, r *Resolver, loc ir.ContentLocator) string {
	t.Helper()
	rc, err := r.Open(context.Background(), loc)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestResolve_Metadata(t *testing.T) {
	f := newFixture(t)

	h, err := f.store.Put([]byte("code_version_1"))
	require.NoError(t, err)
	fp, err := checksum.SumBytes(ir.ChecksumSHA256, []byte("code_version_1"))
	require.NoError(t, err)

	decl := ir.ResourceDeclaration{
		Path:     f.target,
		Source:   "keel:///modules/app/app.conf",
		Ensure:   ir.EnsurePresent,
		Checksum: ir.ChecksumSHA256,
		Metadata: []ir.FileMetadata{{Kind: ir.KindFile, ContentURI: h.URI(), Checksum: fp}},
	}

	// The module tree holds newer bytes; metadata wins.
	writeFile(t, filepath.Join(f.modules, "app", "files", "app.conf"), "code_version_2")

	locs, err := f.resolver.Resolve(context.Background(), decl, "token-1")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, ir.ContentLocator{
		Path:         f.target,
		Kind:         ir.KindFile,
		ContentURI:   h.URI(),
		ChecksumType: ir.ChecksumSHA256,
		Fingerprint:  fp,
		VersionToken: "token-1",
	}, locs[0])
	assert.Equal(t, "code_version_1", readAll(t, f.resolver, locs[0]))
}

func TestResolve_MetadataEvicted(t *testing.T) {
	f := newFixture(t)

	h, err := f.store.Put([]byte("gone soon"))
	require.NoError(t, err)
	require.NoError(t, f.store.Evict(h))

	decl := ir.ResourceDeclaration{
		Path:     f.target,
		Ensure:   ir.EnsurePresent,
		Checksum: ir.ChecksumSHA256,
		Metadata: []ir.FileMetadata{{Kind: ir.KindFile, ContentURI: h.URI(), Checksum: "{sha256}00"}},
	}

	_, err = f.resolver.Resolve(context.Background(), decl, "token-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))

	var ue *UnavailableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, h.URI(), ue.Source)
}

func TestResolve_MetadataDirectoryOrdered(t *testing.T) {
	f := newFixture(t)
	h, err := f.store.Put([]byte("leaf"))
	require.NoError(t, err)

	decl := ir.ResourceDeclaration{
		Path:     f.target,
		Ensure:   ir.EnsureDirectory,
		Checksum: ir.ChecksumMD5,
		Recurse:  true,
		Metadata: []ir.FileMetadata{
			{RelativePath: "sub/leaf", Kind: ir.KindFile, ContentURI: h.URI(), Checksum: "{md5}x"},
			{Kind: ir.KindDirectory},
			{RelativePath: "sub", Kind: ir.KindDirectory},
		},
	}

	locs, err := f.resolver.Resolve(context.Background(), decl, "t")
	require.NoError(t, err)
	require.Len(t, locs, 3)
	assert.Equal(t, f.target, locs[0].Path)
	assert.Equal(t, filepath.Join(f.target, "sub"), locs[1].Path)
	assert.Equal(t, filepath.Join(f.target, "sub", "leaf"), locs[2].Path)
	for _, loc := range locs {
		assert.Equal(t, ir.ChecksumMD5, loc.ChecksumType)
	}
}

func TestResolve_LiveModuleSource(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.modules, "app", "files", "app.conf"), "live bytes")

	decl := ir.ResourceDeclaration{
		Path:     f.target,
		Source:   "keel:///modules/app/app.conf",
		Ensure:   ir.EnsurePresent,
		Checksum: ir.ChecksumSHA1,
	}
	locs, err := f.resolver.Resolve(context.Background(), decl, "t")
	require.NoError(t, err)
	require.Len(t, locs, 1)

	want, err := checksum.SumBytes(ir.ChecksumSHA1, []byte("live bytes"))
	require.NoError(t, err)
	assert.Equal(t, want, locs[0].Fingerprint)
	assert.Equal(t, "live bytes", readAll(t, f.resolver, locs[0]))
}

func TestResolve_ModulePathOrder(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "first")
	second := filepath.Join(root, "second")
	writeFile(t, filepath.Join(second, "app", "files", "a"), "from second")
	store, err := content.NewStore(filepath.Join(root, "content"))
	require.NoError(t, err)
	r := NewResolver(store, []string{first, second})

	p, err := r.LocalPath(Ref{Kind: KindModule, Module: "app", Path: "a"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(second, "app", "files", "a"), p)

	writeFile(t, filepath.Join(first, "app", "files", "a"), "from first")
	p, err = r.LocalPath(Ref{Kind: KindModule, Module: "app", Path: "a"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(first, "app", "files", "a"), p)
}

func TestResolve_LiveMissing(t *testing.T) {
	f := newFixture(t)

	for _, src := range []string{
		"keel:///modules/app/missing.conf",
		"file://" + filepath.Join(f.modules, "nope"),
	} {
		t.Run(src, func(t *testing.T) {
			decl := ir.ResourceDeclaration{Path: f.target, Source: src, Ensure: ir.EnsurePresent, Checksum: ir.ChecksumSHA256}
			_, err := f.resolver.Resolve(context.Background(), decl, "t")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSourceUnavailable))
		})
	}
}

func TestResolve_LiveDirectoryRecurse(t *testing.T) {
	f := newFixture(t)
	src := filepath.Join(f.modules, "tree")
	testutil.WriteTree(t, src, map[string]string{
		"a.txt":        "a",
		"nested/b.txt": "b",
	})

	decl := ir.ResourceDeclaration{
		Path:     f.target,
		Source:   src,
		Ensure:   ir.EnsureDirectory,
		Checksum: ir.ChecksumNone,
		Recurse:  true,
	}
	locs, err := f.resolver.Resolve(context.Background(), decl, "t")
	require.NoError(t, err)

	var rels []string
	for _, loc := range locs {
		rels = append(rels, loc.RelativePath)
		assert.Equal(t, ir.ChecksumNone, loc.ChecksumType)
	}
	assert.Equal(t, []string{"", "a.txt", "nested", "nested/b.txt"}, rels)
	assert.Equal(t, ir.KindDirectory, locs[0].Kind)
	assert.Equal(t, filepath.Join(f.target, "nested", "b.txt"), locs[3].Path)
	assert.Equal(t, "{none}", locs[3].Fingerprint)

	// Without recurse only the directory itself is managed.
	decl.Recurse = false
	locs, err = f.resolver.Resolve(context.Background(), decl, "t")
	require.NoError(t, err)
	require.Len(t, locs, 1)
}

func TestResolve_LiveTimeFingerprint(t *testing.T) {
	f := newFixture(t)
	src := filepath.Join(f.modules, "timed")
	writeFile(t, src, "same bytes")

	decl := ir.ResourceDeclaration{Path: f.target, Source: src, Ensure: ir.EnsurePresent, Checksum: ir.ChecksumMtime}
	locs, err := f.resolver.Resolve(context.Background(), decl, "t")
	require.NoError(t, err)

	ts, err := checksum.Timestamp(ir.ChecksumMtime, src)
	require.NoError(t, err)
	assert.Equal(t, checksum.FormatTime(ir.ChecksumMtime, ts), locs[0].Fingerprint)
}

func TestResolve_Inline(t *testing.T) {
	f := newFixture(t)
	text := "inline text"

	decl := ir.ResourceDeclaration{Path: f.target, Content: &text, Ensure: ir.EnsurePresent, Checksum: ir.ChecksumBLAKE3}
	locs, err := f.resolver.Resolve(context.Background(), decl, "t")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.True(t, content.IsURI(locs[0].ContentURI))
	assert.Equal(t, text, readAll(t, f.resolver, locs[0]))

	decl.Checksum = ir.ChecksumCtime
	_, err = f.resolver.Resolve(context.Background(), decl, "t")
	assert.Error(t, err)
}

func TestResolve_AbsentAndBareDirectory(t *testing.T) {
	f := newFixture(t)

	locs, err := f.resolver.Resolve(context.Background(), ir.ResourceDeclaration{Path: f.target, Ensure: ir.EnsureAbsent}, "t")
	require.NoError(t, err)
	assert.Empty(t, locs)

	locs, err = f.resolver.Resolve(context.Background(), ir.ResourceDeclaration{Path: f.target, Ensure: ir.EnsureDirectory}, "t")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, ir.KindDirectory, locs[0].Kind)

	_, err = f.resolver.Resolve(context.Background(), ir.ResourceDeclaration{Path: f.target, Ensure: ir.EnsurePresent}, "t")
	assert.Error(t, err)
}

func TestOpen_EvictedAfterResolve(t *testing.T) {
	f := newFixture(t)
	h, err := f.store.Put([]byte("racy"))
	require.NoError(t, err)
	loc := ir.ContentLocator{Path: f.target, Kind: ir.KindFile, ContentURI: h.URI()}
	require.NoError(t, f.store.Evict(h))

	_, err = f.resolver.Open(context.Background(), loc)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestResolve_CanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.resolver.Resolve(ctx, ir.ResourceDeclaration{Path: f.target, Ensure: ir.EnsureDirectory}, "t")
	assert.True(t, errors.Is(err, context.Canceled))
}
