package compiler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/roach88/keel/internal/checksum"
	"github.com/roach88/keel/internal/content"
	"github.com/roach88/keel/internal/ir"
	"github.com/roach88/keel/internal/source"
)

// bind copies the bytes decl refers to into the content store and returns
// the metadata that pins them to this compile.
func (c *Compiler) bind(ctx context.Context, decl ir.ResourceDeclaration) ([]ir.FileMetadata, error) {
	switch {
	case decl.Ensure == ir.EnsureAbsent:
		return nil, nil
	case decl.Content != nil:
		return c.bindBytes(decl, []byte(*decl.Content))
	case decl.Source == "":
		if decl.Ensure == ir.EnsureDirectory {
			return []ir.FileMetadata{{Kind: ir.KindDirectory}}, nil
		}
		return nil, nil
	}

	field := fmt.Sprintf("file.%s.source", decl.Title)
	ref, err := source.ParseRef(decl.Source)
	if err != nil {
		return nil, &CompileError{Field: field, Message: err.Error()}
	}

	if ref.Kind == source.KindContent {
		data, err := c.resolver.Content().Get(ref.Hash)
		if errors.Is(err, content.ErrNotFound) {
			return nil, &CompileError{Field: field, Message: fmt.Sprintf("content %s not found", decl.Source)}
		}
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", decl.Title, err)
		}
		return c.bindBytes(decl, data)
	}

	root, err := c.resolver.LocalPath(ref)
	if err != nil {
		return nil, &CompileError{Field: field, Message: fmt.Sprintf("source %s not found", decl.Source)}
	}
	entries, err := source.Walk(ctx, root, decl.Recurse)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &CompileError{Field: field, Message: fmt.Sprintf("source %s not found", decl.Source)}
	}
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", decl.Title, err)
	}

	switch {
	case decl.Ensure == ir.EnsureDirectory && entries[0].Kind == ir.KindFile:
		return nil, &CompileError{Field: field, Message: fmt.Sprintf("source %s is a file but ensure is directory", decl.Source)}
	case decl.Ensure == ir.EnsurePresent && entries[0].Kind == ir.KindDirectory:
		return nil, &CompileError{Field: field, Message: fmt.Sprintf("source %s is a directory; use ensure: \"directory\"", decl.Source)}
	}

	metadata := make([]ir.FileMetadata, 0, len(entries))
	for _, e := range entries {
		if e.Kind == ir.KindDirectory {
			metadata = append(metadata, ir.FileMetadata{RelativePath: e.RelativePath, Kind: ir.KindDirectory})
			continue
		}
		m, err := c.bindFile(decl.Checksum, e)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", decl.Title, err)
		}
		metadata = append(metadata, m)
	}
	return metadata, nil
}

// bindFile stores one source file. Content strategies fingerprint the
// stored bytes; time strategies record the source's timestamp.
func (c *Compiler) bindFile(t ir.ChecksumType, e source.Entry) (ir.FileMetadata, error) {
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return ir.FileMetadata{}, err
	}
	h, err := c.resolver.Content().Put(data)
	if err != nil {
		return ir.FileMetadata{}, err
	}

	var fp string
	if t.IsTimeBased() {
		fp, err = checksum.SumFile(t, e.Path)
	} else {
		fp, err = source.BlobFingerprint(t, data)
	}
	if err != nil {
		return ir.FileMetadata{}, err
	}
	return ir.FileMetadata{
		RelativePath: e.RelativePath,
		Kind:         ir.KindFile,
		ContentURI:   h.URI(),
		Checksum:     fp,
		Size:         int64(len(data)),
	}, nil
}

func (c *Compiler) bindBytes(decl ir.ResourceDeclaration, data []byte) ([]ir.FileMetadata, error) {
	fp, err := source.BlobFingerprint(decl.Checksum, data)
	if err != nil {
		return nil, &CompileError{Field: fmt.Sprintf("file.%s.checksum", decl.Title), Message: err.Error()}
	}
	h, err := c.resolver.Content().Put(data)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", decl.Title, err)
	}
	return []ir.FileMetadata{{
		Kind:       ir.KindFile,
		ContentURI: h.URI(),
		Checksum:   fp,
		Size:       int64(len(data)),
	}}, nil
}
