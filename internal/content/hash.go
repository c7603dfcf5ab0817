package content

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest identifying a blob.
type Hash [32]byte

// URIPrefix is the scheme and path prefix of content URIs.
const URIPrefix = "keel:///content/"

// blobDomainKey keys the BLAKE3 hash so blob addresses never collide with
// plain BLAKE3 digests of the same bytes (such as the blake3 checksum
// strategy). ASCII "keel.content.blob", zero padded to 32 bytes.
var blobDomainKey = [32]byte{
	'k', 'e', 'e', 'l', '.', 'c', 'o', 'n', 't', 'e', 'n', 't', '.', 'b', 'l', 'o', 'b',
}

// HashBlob computes the blob address of data.
func HashBlob(data []byte) Hash {
	hasher, err := blake3.NewKeyed(blobDomainKey[:])
	if err != nil {
		panic("content: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

// String returns the hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// URI returns the content URI referencing the blob.
func (h Hash) URI() string {
	return URIPrefix + h.String()
}

// ParseHash parses a 64-character hex hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parsing content hash: %w", err)
	}
	if len(decoded) != len(h) {
		return h, fmt.Errorf("content hash is %d bytes, want %d", len(decoded), len(h))
	}
	copy(h[:], decoded)
	return h, nil
}

// ParseURI extracts the blob hash from a content URI.
func ParseURI(uri string) (Hash, error) {
	rest, ok := strings.CutPrefix(uri, URIPrefix)
	if !ok {
		return Hash{}, fmt.Errorf("not a content URI: %q", uri)
	}
	return ParseHash(rest)
}

// IsURI reports whether uri is a content URI.
func IsURI(uri string) bool {
	return strings.HasPrefix(uri, URIPrefix)
}
