package content

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// Directory names within the store root.
const (
	objectsDir = "objects"
	tmpDir     = "tmp"
)

var (
	// ErrNotFound is returned when a blob is not (or no longer) stored.
	ErrNotFound = errors.New("content not found")

	// ErrCorrupt is returned when a stored blob fails verification.
	ErrCorrupt = errors.New("content corrupt")
)

// Store is a content-addressed blob store rooted at a directory.
//
// Writes of the same content are idempotent and safe to repeat. Concurrent
// readers are safe; writers of the same blob race benignly because the
// final rename installs identical bytes.
type Store struct {
	root string
}

// NewStore creates a Store rooted at root, creating its directories.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, objectsDir), filepath.Join(root, tmpDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating content directory %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Put stores data and returns its address.
func (s *Store) Put(data []byte) (Hash, error) {
	h := HashBlob(data)
	final := s.objectPath(h)
	if _, err := os.Stat(final); err == nil {
		return h, nil
	}

	payload, tag, err := compress(data, SelectCompression(data))
	if err != nil {
		return Hash{}, fmt.Errorf("put %s: %w", h, err)
	}

	var header [1 + binary.MaxVarintLen64]byte
	header[0] = byte(tag)
	n := binary.PutUvarint(header[1:], uint64(len(data)))

	if err := s.writeAtomic(final, header[:1+n], payload); err != nil {
		return Hash{}, fmt.Errorf("put %s: %w", h, err)
	}
	return h, nil
}

// Get returns the bytes stored under h. Missing blobs yield ErrNotFound;
// blobs whose bytes no longer hash to h yield ErrCorrupt.
func (s *Store) Get(h Hash) ([]byte, error) {
	raw, err := os.ReadFile(s.objectPath(h))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("get %s: %w", h, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", h, err)
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("get %s: truncated header: %w", h, ErrCorrupt)
	}

	tag := CompressionTag(raw[0])
	size, n := binary.Uvarint(raw[1:])
	if n <= 0 || size > math.MaxInt {
		return nil, fmt.Errorf("get %s: bad size header: %w", h, ErrCorrupt)
	}

	data, err := decompress(raw[1+n:], tag, int(size))
	if err != nil {
		return nil, fmt.Errorf("get %s: %v: %w", h, err, ErrCorrupt)
	}
	if HashBlob(data) != h {
		return nil, fmt.Errorf("get %s: hash mismatch: %w", h, ErrCorrupt)
	}
	return data, nil
}

// Open returns a reader over the bytes stored under h.
func (s *Store) Open(h Hash) (io.ReadCloser, error) {
	data, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Has reports whether h is stored.
func (s *Store) Has(h Hash) bool {
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Evict removes the blob stored under h. Catalogs referencing it will fail
// to resolve it afterwards.
func (s *Store) Evict(h Hash) error {
	err := os.Remove(s.objectPath(h))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("evict %s: %w", h, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("evict %s: %w", h, err)
	}
	return nil
}

// List returns every stored hash in ascending order.
func (s *Store) List() ([]Hash, error) {
	var hashes []Hash
	err := filepath.WalkDir(filepath.Join(s.root, objectsDir), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		h, err := ParseHash(d.Name())
		if err != nil {
			// Not a blob; leave foreign files alone.
			return nil
		}
		hashes = append(hashes, h)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing content: %w", err)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return bytes.Compare(hashes[i][:], hashes[j][:]) < 0
	})
	return hashes, nil
}

// Prune evicts every blob not in keep and returns how many were removed.
func (s *Store) Prune(keep map[Hash]bool) (int, error) {
	hashes, err := s.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, h := range hashes {
		if keep[h] {
			continue
		}
		if err := s.Evict(h); err != nil && !errors.Is(err, ErrNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *Store) objectPath(h Hash) string {
	hex := h.String()
	return filepath.Join(s.root, objectsDir, hex[:2], hex)
}

// writeAtomic stages parts in tmp/ and renames the result into place.
func (s *Store) writeAtomic(final string, parts ...[]byte) error {
	tmp, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "blob-*")
	if err != nil {
		return fmt.Errorf("creating temp blob: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	for _, part := range parts {
		if _, err := tmp.Write(part); err != nil {
			tmp.Close()
			return fmt.Errorf("writing temp blob: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp blob: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("creating shard directory: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return fmt.Errorf("renaming blob into place: %w", err)
	}
	success = true
	return nil
}
