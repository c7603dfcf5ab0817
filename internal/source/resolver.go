package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/keel/internal/checksum"
	"github.com/roach88/keel/internal/content"
	"github.com/roach88/keel/internal/ir"
)

// Resolver turns declarations into content locators.
type Resolver struct {
	content    *content.Store
	modulePath []string
}

// NewResolver creates a resolver backed by store. modulePath lists the
// directories searched, in order, for module sources.
func NewResolver(store *content.Store, modulePath []string) *Resolver {
	return &Resolver{content: store, modulePath: modulePath}
}

// Content returns the backing content store.
func (r *Resolver) Content() *content.Store {
	return r.content
}

// Entry is one file or directory found under a source.
type Entry struct {
	RelativePath string // slash separated, "" for the source itself
	Kind         ir.EntryKind
	Path         string // absolute path on disk
}

// LocalPath returns the on-disk path a local or module reference names.
// Module references are searched in module path order; the first existing
// match wins.
func (r *Resolver) LocalPath(ref Ref) (string, error) {
	switch ref.Kind {
	case KindLocal:
		return ref.Path, nil
	case KindModule:
		rel := filepath.FromSlash(ref.Path)
		for _, dir := range r.modulePath {
			candidate := filepath.Join(dir, ref.Module, "files", rel)
			if _, err := os.Lstat(candidate); err == nil {
				return candidate, nil
			}
		}
		return "", fmt.Errorf("module %s has no file %s in %s: %w",
			ref.Module, ref.Path, strings.Join(r.modulePath, string(os.PathListSeparator)), fs.ErrNotExist)
	default:
		return "", fmt.Errorf("source kind %d has no local path", ref.Kind)
	}
}

// Walk lists root and, when recurse is set and root is a directory, every
// entry below it in lexical order.
func Walk(ctx context.Context, root string, recurse bool) ([]Entry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []Entry{{Kind: ir.KindFile, Path: root}}, nil
	}
	entries := []Entry{{Kind: ir.KindDirectory, Path: root}}
	if !recurse {
		return entries, nil
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		kind := ir.KindFile
		if d.IsDir() {
			kind = ir.KindDirectory
		}
		entries = append(entries, Entry{RelativePath: filepath.ToSlash(rel), Kind: kind, Path: p})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Resolve returns the locators for decl bound to versionToken, in relative
// path order so parents precede children.
//
// Content that cannot be found fails with an error matching
// ErrSourceUnavailable. Declarations with ensure=absent resolve to nothing.
func (r *Resolver) Resolve(ctx context.Context, decl ir.ResourceDeclaration, versionToken string) ([]ir.ContentLocator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		locators []ir.ContentLocator
		err      error
	)
	switch {
	case decl.Ensure == ir.EnsureAbsent:
		return nil, nil
	case len(decl.Metadata) > 0:
		locators, err = r.resolveMetadata(decl, versionToken)
	case decl.Content != nil:
		locators, err = r.resolveInline(decl, versionToken)
	case decl.Source != "":
		locators, err = r.resolveLive(ctx, decl, versionToken)
	case decl.Ensure == ir.EnsureDirectory:
		locators = []ir.ContentLocator{{
			Path:         decl.Path,
			Kind:         ir.KindDirectory,
			ChecksumType: decl.Checksum,
			VersionToken: versionToken,
		}}
	default:
		return nil, fmt.Errorf("resolve %s: declaration has no source or content", decl.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", decl.Path, err)
	}

	sort.SliceStable(locators, func(i, j int) bool {
		return locators[i].RelativePath < locators[j].RelativePath
	})
	return locators, nil
}

// resolveMetadata binds to the content captured at compile time.
func (r *Resolver) resolveMetadata(decl ir.ResourceDeclaration, versionToken string) ([]ir.ContentLocator, error) {
	locators := make([]ir.ContentLocator, 0, len(decl.Metadata))
	for _, m := range decl.Metadata {
		if m.Kind == ir.KindFile {
			h, err := content.ParseURI(m.ContentURI)
			if err != nil {
				return nil, fmt.Errorf("entry %q: %w", m.RelativePath, err)
			}
			if !r.content.Has(h) {
				return nil, unavailable(m.ContentURI, content.ErrNotFound)
			}
		}
		locators = append(locators, ir.ContentLocator{
			Path:         targetPath(decl.Path, m.RelativePath),
			RelativePath: m.RelativePath,
			Kind:         m.Kind,
			ContentURI:   m.ContentURI,
			ChecksumType: decl.Checksum,
			Fingerprint:  m.Checksum,
			VersionToken: versionToken,
		})
	}
	return locators, nil
}

// resolveInline stores inline content and binds to its blob.
func (r *Resolver) resolveInline(decl ir.ResourceDeclaration, versionToken string) ([]ir.ContentLocator, error) {
	data := []byte(*decl.Content)
	fp, err := BlobFingerprint(decl.Checksum, data)
	if err != nil {
		return nil, err
	}
	h, err := r.content.Put(data)
	if err != nil {
		return nil, err
	}
	return []ir.ContentLocator{{
		Path:         decl.Path,
		Kind:         ir.KindFile,
		ContentURI:   h.URI(),
		ChecksumType: decl.Checksum,
		Fingerprint:  fp,
		VersionToken: versionToken,
	}}, nil
}

// resolveLive reads the source as it exists right now.
func (r *Resolver) resolveLive(ctx context.Context, decl ir.ResourceDeclaration, versionToken string) ([]ir.ContentLocator, error) {
	ref, err := ParseRef(decl.Source)
	if err != nil {
		return nil, err
	}

	if ref.Kind == KindContent {
		data, err := r.content.Get(ref.Hash)
		if errors.Is(err, content.ErrNotFound) {
			return nil, unavailable(decl.Source, err)
		}
		if err != nil {
			return nil, err
		}
		fp, err := BlobFingerprint(decl.Checksum, data)
		if err != nil {
			return nil, err
		}
		return []ir.ContentLocator{{
			Path:         decl.Path,
			Kind:         ir.KindFile,
			ContentURI:   decl.Source,
			ChecksumType: decl.Checksum,
			Fingerprint:  fp,
			VersionToken: versionToken,
		}}, nil
	}

	root, err := r.LocalPath(ref)
	if err != nil {
		return nil, unavailable(decl.Source, err)
	}
	entries, err := Walk(ctx, root, decl.Recurse)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, unavailable(decl.Source, err)
	}
	if err != nil {
		return nil, err
	}

	locators := make([]ir.ContentLocator, 0, len(entries))
	for _, e := range entries {
		loc := ir.ContentLocator{
			Path:         targetPath(decl.Path, e.RelativePath),
			RelativePath: e.RelativePath,
			Kind:         e.Kind,
			ChecksumType: decl.Checksum,
			VersionToken: versionToken,
		}
		if e.Kind == ir.KindFile {
			fp, err := checksum.SumFile(decl.Checksum, e.Path)
			if errors.Is(err, fs.ErrNotExist) {
				return nil, unavailable(decl.Source, err)
			}
			if err != nil {
				return nil, err
			}
			loc.ContentURI = FileURI(e.Path)
			loc.Fingerprint = fp
		}
		locators = append(locators, loc)
	}
	return locators, nil
}

// Open returns a reader over the bytes loc names. Missing content fails
// with an error matching ErrSourceUnavailable.
func (r *Resolver) Open(ctx context.Context, loc ir.ContentLocator) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if loc.Kind != ir.KindFile {
		return nil, fmt.Errorf("open %s: %s has no content", loc.Path, loc.Kind)
	}

	if content.IsURI(loc.ContentURI) {
		h, err := content.ParseURI(loc.ContentURI)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", loc.Path, err)
		}
		rc, err := r.content.Open(h)
		if errors.Is(err, content.ErrNotFound) {
			return nil, unavailable(loc.ContentURI, err)
		}
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", loc.Path, err)
		}
		return rc, nil
	}

	ref, err := ParseRef(loc.ContentURI)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", loc.Path, err)
	}
	p, err := r.LocalPath(ref)
	if err != nil {
		return nil, unavailable(loc.ContentURI, err)
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, unavailable(loc.ContentURI, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", loc.Path, err)
	}
	return f, nil
}

// BlobFingerprint fingerprints bytes that have no filesystem timestamp.
// Time strategies are rejected.
func BlobFingerprint(t ir.ChecksumType, data []byte) (string, error) {
	switch {
	case t == ir.ChecksumNone:
		return checksum.Format(t, ""), nil
	case t.IsTimeBased():
		return "", fmt.Errorf("checksum %s needs a file source, not inline content", t)
	default:
		return checksum.SumBytes(t, data)
	}
}

func targetPath(base, rel string) string {
	if rel == "" {
		return base
	}
	return filepath.Join(base, filepath.FromSlash(path.Clean(rel)))
}
