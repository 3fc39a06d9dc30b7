package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/sealbench/internal/export"
	"github.com/roach88/sealbench/internal/ir"
)

// WriteManifest records a published world manifest.
// Uses ON CONFLICT(world_id) DO NOTHING: world IDs are content-derived, so a
// duplicate describes the same bytes.
func (s *Store) WriteManifest(ctx context.Context, m export.Manifest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO world_manifests
		(world_id, sha256, cid, bytes, seed, dataset_version, track, format_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(world_id) DO NOTHING
	`,
		m.WorldID,
		m.SHA256,
		m.CID,
		m.Bytes,
		m.Seed,
		m.DatasetVersion,
		m.Track,
		m.FormatVersion,
	)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest returns the manifest with the given world ID.
func (s *Store) ReadManifest(ctx context.Context, worldID string) (export.Manifest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT world_id, sha256, cid, bytes, seed, dataset_version, track, format_version
		FROM world_manifests
		WHERE world_id = ?
	`, worldID)
	m, err := scanManifest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return export.Manifest{}, ir.Errorf(ir.KindNotFound, worldID, "no manifest stored")
	}
	return m, err
}

// ManifestsForRelease returns every manifest of (datasetVersion, seed),
// ordered by world ID.
func (s *Store) ManifestsForRelease(ctx context.Context, datasetVersion, seed string) ([]export.Manifest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT world_id, sha256, cid, bytes, seed, dataset_version, track, format_version
		FROM world_manifests
		WHERE dataset_version = ? AND seed = ?
		ORDER BY world_id COLLATE BINARY ASC
	`, datasetVersion, seed)
	if err != nil {
		return nil, fmt.Errorf("query manifests: %w", err)
	}
	defer rows.Close()

	out := []export.Manifest{}
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manifests: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanManifest(row scanner) (export.Manifest, error) {
	var m export.Manifest
	err := row.Scan(&m.WorldID, &m.SHA256, &m.CID, &m.Bytes, &m.Seed, &m.DatasetVersion, &m.Track, &m.FormatVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return export.Manifest{}, err
	}
	if err != nil {
		return export.Manifest{}, fmt.Errorf("scan manifest: %w", err)
	}
	return m, nil
}
