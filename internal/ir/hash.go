package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainCatalog = "keel/catalog/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CatalogDigest computes the content-addressed digest of a catalog. The
// Digest field itself is excluded, so a catalog can carry its own digest.
//
// Two catalogs with the same version token, node, environment and resources
// always produce the same digest regardless of how they were serialized.
func CatalogDigest(c Catalog) (string, error) {
	canonical, err := MarshalCanonical(catalogObject(c))
	if err != nil {
		return "", fmt.Errorf("CatalogDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCatalog, canonical), nil
}

// Seal returns a copy of c with its Digest populated.
func Seal(c Catalog) (Catalog, error) {
	digest, err := CatalogDigest(c)
	if err != nil {
		return Catalog{}, err
	}
	c.Digest = digest
	return c, nil
}

// VerifyDigest checks that c.Digest matches its content.
func VerifyDigest(c Catalog) error {
	digest, err := CatalogDigest(c)
	if err != nil {
		return err
	}
	if digest != c.Digest {
		return fmt.Errorf("catalog %s digest mismatch: have %s, computed %s", c.VersionToken, c.Digest, digest)
	}
	return nil
}

func catalogObject(c Catalog) map[string]any {
	resources := make([]any, len(c.Resources))
	for i, r := range c.Resources {
		resources[i] = resourceObject(r)
	}
	return map[string]any{
		"format_version": c.FormatVersion,
		"version_token":  c.VersionToken,
		"node":           c.Node,
		"environment":    c.Environment,
		"resources":      resources,
	}
}

func resourceObject(r ResourceDeclaration) map[string]any {
	obj := map[string]any{
		"title":    r.Title,
		"path":     r.Path,
		"source":   r.Source,
		"ensure":   string(r.Ensure),
		"checksum": string(r.Checksum),
		"recurse":  r.Recurse,
		"mode":     r.Mode,
	}
	if r.Content != nil {
		obj["content"] = *r.Content
	}
	metadata := make([]any, len(r.Metadata))
	for i, m := range r.Metadata {
		metadata[i] = map[string]any{
			"relative_path": m.RelativePath,
			"kind":          string(m.Kind),
			"content_uri":   m.ContentURI,
			"checksum":      m.Checksum,
			"size":          m.Size,
		}
	}
	obj["metadata"] = metadata
	return obj
}
