package engine

import (
	"context"
	"io/fs"
	"os"
	"strconv"

	"github.com/roach88/keel/internal/ir"
)

// MetadataApplier enforces non-content attributes on a converged path.
// It runs after the path's content is in sync and reports whether it
// changed anything.
type MetadataApplier interface {
	Apply(ctx context.Context, decl ir.ResourceDeclaration, loc ir.ContentLocator) (bool, error)
}

// ModeApplier sets permission bits when a declaration names a mode.
// Directories get the search bit alongside every read bit, so a "0644"
// tree stays traversable.
type ModeApplier struct{}

// Apply implements MetadataApplier.
func (ModeApplier) Apply(_ context.Context, decl ir.ResourceDeclaration, loc ir.ContentLocator) (bool, error) {
	if decl.Mode == "" {
		return false, nil
	}
	parsed, err := strconv.ParseUint(decl.Mode, 8, 32)
	if err != nil {
		return false, err
	}
	want := fs.FileMode(parsed) & fs.ModePerm
	if loc.Kind == ir.KindDirectory {
		want = directoryMode(want)
	}

	info, err := os.Stat(loc.Path)
	if err != nil {
		return false, err
	}
	if info.Mode().Perm() == want {
		return false, nil
	}
	if err := os.Chmod(loc.Path, want); err != nil {
		return false, err
	}
	return true, nil
}

func directoryMode(m fs.FileMode) fs.FileMode {
	for _, read := range []fs.FileMode{0o400, 0o040, 0o004} {
		if m&read != 0 {
			m |= read >> 2
		}
	}
	return m
}
