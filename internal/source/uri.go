package source

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/roach88/keel/internal/content"
)

const (
	// ModuleURIPrefix addresses files shipped inside a module.
	ModuleURIPrefix = "keel:///modules/"

	fileURIPrefix = "file://"
)

// Kind classifies a source reference.
type Kind int

const (
	KindLocal Kind = iota
	KindModule
	KindContent
)

// Ref is a parsed source reference.
type Ref struct {
	Kind   Kind
	Path   string       // KindLocal: absolute path; KindModule: path below files/
	Module string       // KindModule only
	Hash   content.Hash // KindContent only
}

// ParseRef parses a declared source.
func ParseRef(source string) (Ref, error) {
	switch {
	case content.IsURI(source):
		h, err := content.ParseURI(source)
		if err != nil {
			return Ref{}, err
		}
		return Ref{Kind: KindContent, Hash: h}, nil

	case strings.HasPrefix(source, ModuleURIPrefix):
		rest := strings.TrimPrefix(source, ModuleURIPrefix)
		module, path, ok := strings.Cut(rest, "/")
		if !ok || module == "" || path == "" {
			return Ref{}, fmt.Errorf("invalid module source %q: want %s<module>/<path>", source, ModuleURIPrefix)
		}
		if hasDotDot(path) {
			return Ref{}, fmt.Errorf("invalid module source %q: path escapes module", source)
		}
		return Ref{Kind: KindModule, Module: module, Path: path}, nil

	case strings.HasPrefix(source, fileURIPrefix):
		path := strings.TrimPrefix(source, fileURIPrefix)
		if !filepath.IsAbs(path) {
			return Ref{}, fmt.Errorf("invalid file source %q: path must be absolute", source)
		}
		return Ref{Kind: KindLocal, Path: filepath.Clean(path)}, nil

	case filepath.IsAbs(source):
		return Ref{Kind: KindLocal, Path: filepath.Clean(source)}, nil

	default:
		return Ref{}, fmt.Errorf("unsupported source %q", source)
	}
}

// FileURI returns the file:// URI of an absolute path.
func FileURI(path string) string {
	return fileURIPrefix + filepath.ToSlash(path)
}

func hasDotDot(path string) bool {
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
