package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/ir"
)

var _ codebook.Persister = (*Store)(nil)

// SaveCodebook inserts a codebook envelope. Unlike the other writes this is
// not idempotent: a second save for the same ID fails with
// ir.KindCodebookExists even when the envelope is identical.
func (s *Store) SaveCodebook(ctx context.Context, e codebook.Entry) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO codebooks
		(dataset_version, seed, track, config_fingerprint, key_fingerprint, envelope, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset_version, seed) DO NOTHING
	`,
		e.ID.DatasetVersion,
		e.ID.Seed,
		e.Track,
		e.ConfigFingerprint,
		e.KeyFingerprint,
		e.Envelope,
		ir.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("save codebook: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save codebook: %w", err)
	}
	if n == 0 {
		return ir.Errorf(ir.KindCodebookExists, e.ID.String(), "codebook already exists")
	}
	return nil
}

// LoadCodebook reads one envelope. A missing ID is ir.KindNotFound.
func (s *Store) LoadCodebook(ctx context.Context, id codebook.ID) (codebook.Entry, error) {
	e := codebook.Entry{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT track, config_fingerprint, key_fingerprint, envelope
		FROM codebooks
		WHERE dataset_version = ? AND seed = ?
	`, id.DatasetVersion, id.Seed).Scan(&e.Track, &e.ConfigFingerprint, &e.KeyFingerprint, &e.Envelope)
	if errors.Is(err, sql.ErrNoRows) {
		return codebook.Entry{}, ir.Errorf(ir.KindNotFound, id.String(), "no codebook stored")
	}
	if err != nil {
		return codebook.Entry{}, fmt.Errorf("load codebook: %w", err)
	}
	return e, nil
}

// CodebookIDs lists stored codebook IDs for one dataset version, in seed
// order. An empty datasetVersion lists every codebook.
func (s *Store) CodebookIDs(ctx context.Context, datasetVersion string) ([]codebook.ID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dataset_version, seed
		FROM codebooks
		WHERE ? = '' OR dataset_version = ?
		ORDER BY dataset_version COLLATE BINARY ASC, seed COLLATE BINARY ASC
	`, datasetVersion, datasetVersion)
	if err != nil {
		return nil, fmt.Errorf("query codebooks: %w", err)
	}
	defer rows.Close()

	ids := []codebook.ID{}
	for rows.Next() {
		var id codebook.ID
		if err := rows.Scan(&id.DatasetVersion, &id.Seed); err != nil {
			return nil, fmt.Errorf("scan codebook: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate codebooks: %w", err)
	}
	return ids, nil
}
