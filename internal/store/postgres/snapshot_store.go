package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/coinstats/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore with one table per asset.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotSelectCols = `id, current_price, market_cap, price_change_24h, timestamp`

// table resolves the sanitized table identifier for asset. Table names only
// ever come from the closed asset mapping.
func table(asset domain.Asset) (string, error) {
	if !asset.Valid() {
		return "", fmt.Errorf("postgres: %w: %q", domain.ErrUnknownAsset, string(asset))
	}
	return pgx.Identifier{asset.Table()}.Sanitize(), nil
}

func scanSnapshotRows(asset domain.Asset, rows pgx.Rows) ([]domain.Snapshot, error) {
	var snaps []domain.Snapshot
	for rows.Next() {
		s := domain.Snapshot{Asset: asset}
		if err := rows.Scan(&s.ID, &s.CurrentPrice, &s.MarketCap, &s.PriceChange24h, &s.Timestamp); err != nil {
			return nil, err
		}
		s.Timestamp = s.Timestamp.UTC()
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func unavailable(op string, asset domain.Asset, err error) error {
	return fmt.Errorf("postgres: %s %s: %w: %w", op, asset, domain.ErrStorageUnavailable, err)
}

// Write appends snap to the asset's table. The database assigns the ID, and the
// timestamp too when snap.Timestamp is zero.
func (s *SnapshotStore) Write(ctx context.Context, asset domain.Asset, snap domain.Snapshot) (domain.Snapshot, error) {
	tbl, err := table(asset)
	if err != nil {
		return domain.Snapshot{}, err
	}

	var ts any
	if !snap.Timestamp.IsZero() {
		ts = snap.Timestamp.UTC()
	}

	query := `INSERT INTO ` + tbl + ` (current_price, market_cap, price_change_24h, timestamp)
		VALUES ($1, $2, $3, COALESCE($4::timestamptz, NOW()))
		RETURNING id, timestamp`

	out := snap
	out.Asset = asset
	if err := s.pool.QueryRow(ctx, query,
		snap.CurrentPrice, snap.MarketCap, snap.PriceChange24h, ts,
	).Scan(&out.ID, &out.Timestamp); err != nil {
		return domain.Snapshot{}, unavailable("write snapshot", asset, err)
	}
	out.Timestamp = out.Timestamp.UTC()
	return out, nil
}

// Latest returns the newest snapshot for asset.
func (s *SnapshotStore) Latest(ctx context.Context, asset domain.Asset) (domain.Snapshot, error) {
	tbl, err := table(asset)
	if err != nil {
		return domain.Snapshot{}, err
	}

	query := `SELECT ` + snapshotSelectCols + ` FROM ` + tbl + ` ORDER BY timestamp DESC, id DESC LIMIT 1`

	out := domain.Snapshot{Asset: asset}
	err = s.pool.QueryRow(ctx, query).Scan(
		&out.ID, &out.CurrentPrice, &out.MarketCap, &out.PriceChange24h, &out.Timestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Snapshot{}, fmt.Errorf("postgres: latest %s: %w", asset, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Snapshot{}, unavailable("latest", asset, err)
	}
	out.Timestamp = out.Timestamp.UTC()
	return out, nil
}

// Recent returns up to limit snapshots, newest first. A non-positive limit
// falls back to domain.DefaultSampleLimit.
func (s *SnapshotStore) Recent(ctx context.Context, asset domain.Asset, limit int) ([]domain.Snapshot, error) {
	tbl, err := table(asset)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = domain.DefaultSampleLimit
	}

	query := `SELECT ` + snapshotSelectCols + ` FROM ` + tbl + ` ORDER BY timestamp DESC, id DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, unavailable("recent", asset, err)
	}
	defer rows.Close()

	snaps, err := scanSnapshotRows(asset, rows)
	if err != nil {
		return nil, unavailable("scan recent", asset, err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("postgres: recent %s: %w", asset, domain.ErrNotFound)
	}
	return snaps, nil
}

// ListRange returns snapshots with from <= timestamp < to, oldest first.
func (s *SnapshotStore) ListRange(ctx context.Context, asset domain.Asset, from, to time.Time) ([]domain.Snapshot, error) {
	tbl, err := table(asset)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + snapshotSelectCols + ` FROM ` + tbl + `
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, unavailable("list range", asset, err)
	}
	defer rows.Close()

	snaps, err := scanSnapshotRows(asset, rows)
	if err != nil {
		return nil, unavailable("scan range", asset, err)
	}
	return snaps, nil
}

// Count returns the number of stored snapshots for asset.
func (s *SnapshotStore) Count(ctx context.Context, asset domain.Asset) (int64, error) {
	tbl, err := table(asset)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+tbl).Scan(&n); err != nil {
		return 0, unavailable("count", asset, err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
