package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/keel/internal/ir"
)

// createTestStore creates a new on-disk store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCatalog builds a sealed catalog with one file resource.
func createTestCatalog(t *testing.T, node, token, content string) ir.Catalog {
	t.Helper()
	c := ir.Catalog{
		FormatVersion: ir.CatalogFormatVersion,
		VersionToken:  token,
		Node:          node,
		Environment:   "production",
		Resources: []ir.ResourceDeclaration{{
			Title:    "/tmp/keel/app.conf",
			Path:     "/tmp/keel/app.conf",
			Source:   "keel:///modules/app/app.conf",
			Ensure:   ir.EnsurePresent,
			Checksum: ir.ChecksumSHA256,
			Metadata: []ir.FileMetadata{{
				Kind:       ir.KindFile,
				ContentURI: "keel:///content/" + content,
				Checksum:   "{sha256}" + content,
				Size:       14,
			}},
		}},
	}
	sealed, err := ir.Seal(c)
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}
	return sealed
}
