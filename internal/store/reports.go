package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/sealbench/internal/audit"
	"github.com/roach88/sealbench/internal/ir"
)

// SaveReport stores an audit report. Report IDs are name-based over the
// world and threat model, so re-auditing a world replaces its earlier
// report of the same kind.
func (s *Store) SaveReport(ctx context.Context, r audit.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_reports
		(id, world_hash, threat_model, dataset_version, seed, track, config_fingerprint, leakage, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET leakage = excluded.leakage, body = excluded.body
	`,
		r.ID,
		r.WorldHash,
		string(r.ThreatModel),
		r.DatasetVersion,
		r.Seed,
		r.Track,
		r.ConfigFingerprint,
		r.Leakage(),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// ReadReport returns the report with the given ID.
func (s *Store) ReadReport(ctx context.Context, id string) (audit.Report, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM audit_reports WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Report{}, ir.Errorf(ir.KindNotFound, id, "no report stored")
	}
	if err != nil {
		return audit.Report{}, fmt.Errorf("read report: %w", err)
	}
	return decodeReport(body)
}

// ReportsForWorld returns every report over one sealed world, black-box
// first.
func (s *Store) ReportsForWorld(ctx context.Context, worldHash string) ([]audit.Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body
		FROM audit_reports
		WHERE world_hash = ?
		ORDER BY threat_model COLLATE BINARY ASC, id COLLATE BINARY ASC
	`, worldHash)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	return scanReports(rows)
}

// scanReports decodes every row's body and closes rows.
func scanReports(rows *sql.Rows) ([]audit.Report, error) {
	defer rows.Close()

	out := []audit.Report{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r, err := decodeReport(body)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}

func decodeReport(body string) (audit.Report, error) {
	var r audit.Report
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return audit.Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}
