// Package content implements the versioned, content-addressed blob store
// that binds file resources to the bytes they had when a catalog was
// compiled.
//
// Blobs are addressed by a keyed BLAKE3 hash of their uncompressed bytes and
// referenced from catalogs by content URI:
//
//	keel:///content/<64 hex chars>
//
// Because the address is derived from the bytes, a catalog compiled against
// an older module tree keeps resolving to the older bytes after the tree
// changes. Blobs disappear only through explicit eviction.
//
// # On-disk layout
//
//	<root>/objects/<first 2 hex>/<hash hex>   blob files
//	<root>/tmp/                               staging for atomic writes
//
// Each blob file is a one-byte compression tag, the uncompressed size as a
// uvarint, then the (possibly compressed) payload. Text-like content is
// stored with zstd, other content with LZ4, and anything that does not
// shrink is stored raw.
package content
