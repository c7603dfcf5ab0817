package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/keel/internal/ir"
)

// WriteReport appends the summary of a finished apply cycle.
func (s *Store) WriteReport(ctx context.Context, r ir.RunReport) error {
	body, err := marshalReport(r)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	err = s.exec(ctx, `
		INSERT INTO run_reports (node, version_token, mode, status, report)
		VALUES (?, ?, ?, ?, ?)
	`, r.Node, r.VersionToken, string(r.Mode), string(r.Status), body)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// LatestReport returns the node's most recent run report, or ErrNotFound.
func (s *Store) LatestReport(ctx context.Context, node string) (ir.RunReport, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT report FROM run_reports
		WHERE node = ?
		ORDER BY seq DESC
		LIMIT 1
	`, node).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.RunReport{}, fmt.Errorf("latest report for %s: %w", node, ErrNotFound)
	}
	if err != nil {
		return ir.RunReport{}, fmt.Errorf("latest report for %s: %w", node, err)
	}
	r, err := unmarshalReport(body)
	if err != nil {
		return ir.RunReport{}, fmt.Errorf("latest report for %s: %w", node, err)
	}
	return r, nil
}
