package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteAndReadTree(t *testing.T) {
	root := t.TempDir()
	WriteTree(t, root, map[string]string{
		"a.txt":         "a",
		"nested/b.txt":  "b",
		"nested/c/d.md": "d",
	})

	assert.Equal(t, "b", ReadFile(t, filepath.Join(root, "nested", "b.txt")))
	assert.Equal(t, map[string]string{
		"a.txt":         "a",
		"nested/":       "",
		"nested/b.txt":  "b",
		"nested/c/":     "",
		"nested/c/d.md": "d",
	}, ReadTree(t, root))
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 3, "a": 1, "b": 2}))
}
