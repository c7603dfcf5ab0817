package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/keel/internal/ir"
)

// StoreCatalog replaces the node's cached catalog with c.
//
// The catalog must be sealed: its digest is checked before writing so a
// catalog that would fail verification on read is never cached.
func (s *Store) StoreCatalog(ctx context.Context, c ir.Catalog) error {
	if c.Node == "" {
		return fmt.Errorf("store catalog: node is required")
	}
	if err := ir.VerifyDigest(c); err != nil {
		return fmt.Errorf("store catalog: %w", err)
	}

	body, err := marshalCatalog(c)
	if err != nil {
		return fmt.Errorf("store catalog: %w", err)
	}

	err = s.exec(ctx, `
		INSERT INTO catalog_cache (node, version_token, format_version, digest, catalog)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node) DO UPDATE SET
			version_token = excluded.version_token,
			format_version = excluded.format_version,
			digest = excluded.digest,
			catalog = excluded.catalog
	`, c.Node, c.VersionToken, c.FormatVersion, c.Digest, body)
	if err != nil {
		return fmt.Errorf("store catalog: %w", err)
	}
	return nil
}

// RetrieveLatest returns the node's cached catalog. It fails with
// ErrNotFound if the node has never cached one and ErrCorrupt if the
// stored body no longer matches its digest.
func (s *Store) RetrieveLatest(ctx context.Context, node string) (ir.Catalog, error) {
	var (
		digest string
		body   []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT digest, catalog FROM catalog_cache WHERE node = ?
	`, node).Scan(&digest, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Catalog{}, fmt.Errorf("retrieve catalog for %s: %w", node, ErrNotFound)
	}
	if err != nil {
		return ir.Catalog{}, fmt.Errorf("retrieve catalog for %s: %w", node, err)
	}

	c, err := unmarshalCatalog(body)
	if err != nil {
		return ir.Catalog{}, fmt.Errorf("retrieve catalog for %s: %v: %w", node, err, ErrCorrupt)
	}
	if c.Digest != digest {
		return ir.Catalog{}, fmt.Errorf("retrieve catalog for %s: digest column %s, body %s: %w", node, digest, c.Digest, ErrCorrupt)
	}
	if err := ir.VerifyDigest(c); err != nil {
		return ir.Catalog{}, fmt.Errorf("retrieve catalog for %s: %v: %w", node, err, ErrCorrupt)
	}
	return c, nil
}
