package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/coinstats/internal/domain"
)

// ArchiveLogStore implements domain.ArchiveLog using PostgreSQL.
type ArchiveLogStore struct {
	pool *pgxpool.Pool
}

// NewArchiveLogStore creates a new ArchiveLogStore backed by the given connection pool.
func NewArchiveLogStore(pool *pgxpool.Pool) *ArchiveLogStore {
	return &ArchiveLogStore{pool: pool}
}

// Record appends an export entry.
func (s *ArchiveLogStore) Record(ctx context.Context, rec domain.ArchiveRecord) error {
	const query = `INSERT INTO archive_log (asset, path, row_count, before_ts) VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, query, string(rec.Asset), rec.Path, rec.RowCount, rec.Before.UTC()); err != nil {
		return fmt.Errorf("postgres: record archive %s: %w: %w", rec.Asset, domain.ErrStorageUnavailable, err)
	}
	return nil
}

// LastCutoff returns the most recent export cutoff for asset.
func (s *ArchiveLogStore) LastCutoff(ctx context.Context, asset domain.Asset) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(before_ts) FROM archive_log WHERE asset = $1", string(asset),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: last archive cutoff %s: %w: %w", asset, domain.ErrStorageUnavailable, err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return ts.UTC(), nil
}

// Compile-time interface check.
var _ domain.ArchiveLog = (*ArchiveLogStore)(nil)
