package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/keel/internal/ir"
)

// GetState returns the last synchronized state of path, or ErrNotFound.
func (s *Store) GetState(ctx context.Context, path string) (ir.ResourceState, error) {
	var st ir.ResourceState
	var checksumType string
	err := s.db.QueryRowContext(ctx, `
		SELECT path, checksum_type, fingerprint, version_token
		FROM resource_states WHERE path = ?
	`, path).Scan(&st.Path, &checksumType, &st.Fingerprint, &st.VersionToken)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.ResourceState{}, fmt.Errorf("get state %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return ir.ResourceState{}, fmt.Errorf("get state %s: %w", path, err)
	}
	st.ChecksumType = ir.ChecksumType(checksumType)
	return st, nil
}

// PutState records st, replacing any previous state for its path.
func (s *Store) PutState(ctx context.Context, st ir.ResourceState) error {
	if st.Path == "" {
		return fmt.Errorf("put state: path is required")
	}
	err := s.exec(ctx, `
		INSERT INTO resource_states (path, checksum_type, fingerprint, version_token)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum_type = excluded.checksum_type,
			fingerprint = excluded.fingerprint,
			version_token = excluded.version_token
	`, st.Path, string(st.ChecksumType), st.Fingerprint, st.VersionToken)
	if err != nil {
		return fmt.Errorf("put state %s: %w", st.Path, err)
	}
	return nil
}

// DeleteState forgets path. Deleting an unknown path is not an error.
func (s *Store) DeleteState(ctx context.Context, path string) error {
	if err := s.exec(ctx, `DELETE FROM resource_states WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete state %s: %w", path, err)
	}
	return nil
}

// ListStates returns every recorded state ordered by path.
//
// Returns an empty slice (not nil) if no states exist.
func (s *Store) ListStates(ctx context.Context) ([]ir.ResourceState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, checksum_type, fingerprint, version_token
		FROM resource_states
		ORDER BY path COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	states := []ir.ResourceState{}
	for rows.Next() {
		var st ir.ResourceState
		var checksumType string
		if err := rows.Scan(&st.Path, &checksumType, &st.Fingerprint, &st.VersionToken); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		st.ChecksumType = ir.ChecksumType(checksumType)
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate states: %w", err)
	}
	return states, nil
}
