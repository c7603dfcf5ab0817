package ir

import "fmt"

// Catalog is the compiled, versioned description of desired file state for
// one node.
type Catalog struct {
	FormatVersion string                `json:"format_version" cbor:"format_version"`
	VersionToken  string                `json:"version_token" cbor:"version_token"` // Code id, assigned by the compiler
	Node          string                `json:"node" cbor:"node"`
	Environment   string                `json:"environment" cbor:"environment"`
	Digest        string                `json:"digest" cbor:"digest"` // CatalogDigest over everything else
	Resources     []ResourceDeclaration `json:"resources" cbor:"resources"`
}

// Resource returns the declaration managing path, if any.
func (c *Catalog) Resource(path string) (ResourceDeclaration, bool) {
	for _, r := range c.Resources {
		if r.Path == path {
			return r, true
		}
	}
	return ResourceDeclaration{}, false
}

// ResourceDeclaration declares one managed file, directory or absence.
type ResourceDeclaration struct {
	Title    string       `json:"title" cbor:"title"`
	Path     string       `json:"path" cbor:"path"` // Target location, unique within a catalog
	Source   string       `json:"source,omitempty" cbor:"source,omitempty"`
	Content  *string      `json:"content,omitempty" cbor:"content,omitempty"` // Inline content
	Ensure   Ensure       `json:"ensure" cbor:"ensure"`
	Checksum ChecksumType `json:"checksum" cbor:"checksum"`
	Recurse  bool         `json:"recurse,omitempty" cbor:"recurse,omitempty"`
	Mode     string       `json:"mode,omitempty" cbor:"mode,omitempty"` // Octal, e.g. "0644"

	// Metadata is the static content binding captured at compile time. The
	// entry with an empty RelativePath describes the resource itself.
	Metadata []FileMetadata `json:"metadata,omitempty" cbor:"metadata,omitempty"`
}

// Ensure is the desired presence state of a file resource.
type Ensure string

const (
	EnsurePresent   Ensure = "present"
	EnsureAbsent    Ensure = "absent"
	EnsureDirectory Ensure = "directory"
)

// ParseEnsure normalizes a declared ensure value. "file" is accepted as an
// alias of present; the empty string defaults to present.
func ParseEnsure(s string) (Ensure, error) {
	switch s {
	case "", "present", "file":
		return EnsurePresent, nil
	case "absent":
		return EnsureAbsent, nil
	case "directory":
		return EnsureDirectory, nil
	default:
		return "", fmt.Errorf("invalid ensure value %q: must be present, file, absent or directory", s)
	}
}

// EntryKind distinguishes files from directories in metadata and locators.
type EntryKind string

const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
)

// FileMetadata binds one source entry to versioned content.
type FileMetadata struct {
	RelativePath string    `json:"relative_path" cbor:"relative_path"` // "" for the resource itself
	Kind         EntryKind `json:"kind" cbor:"kind"`
	ContentURI   string    `json:"content_uri,omitempty" cbor:"content_uri,omitempty"`
	Checksum     string    `json:"checksum,omitempty" cbor:"checksum,omitempty"` // Fingerprint, "{type}value"
	Size         int64     `json:"size,omitempty" cbor:"size,omitempty"`
}

// ContentLocator is a resolved, version-bound reference to the bytes one
// target path must contain.
type ContentLocator struct {
	Path         string       `json:"path"`          // Absolute target path
	RelativePath string       `json:"relative_path"` // Relative to the declaring resource
	Kind         EntryKind    `json:"kind"`
	ContentURI   string       `json:"content_uri,omitempty"`
	ChecksumType ChecksumType `json:"checksum_type"`
	Fingerprint  string       `json:"fingerprint,omitempty"` // Expected fingerprint
	VersionToken string       `json:"version_token"`
}

// ResourceState is the last synchronized state of one managed path.
type ResourceState struct {
	Path         string       `json:"path"`
	ChecksumType ChecksumType `json:"checksum_type"`
	Fingerprint  string       `json:"fingerprint"`
	VersionToken string       `json:"version_token"`
}
