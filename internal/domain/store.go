package domain

import (
	"context"
	"time"
)

// SnapshotStore persists per-asset snapshot series. Every method rejects an
// asset outside the tracked set with ErrUnknownAsset before touching storage.
type SnapshotStore interface {
	// Write appends snap to the asset's series. A zero Timestamp is replaced
	// with the write time. The stored snapshot (with its ID) is returned.
	Write(ctx context.Context, asset Asset, snap Snapshot) (Snapshot, error)
	// Latest returns the snapshot with the greatest timestamp, or ErrNotFound.
	Latest(ctx context.Context, asset Asset) (Snapshot, error)
	// Recent returns up to limit snapshots, newest first, or ErrNotFound when
	// the series is empty.
	Recent(ctx context.Context, asset Asset, limit int) ([]Snapshot, error)
	// ListRange returns snapshots with from <= timestamp < to, oldest first.
	ListRange(ctx context.Context, asset Asset, from, to time.Time) ([]Snapshot, error)
	// Count returns the number of stored snapshots for asset.
	Count(ctx context.Context, asset Asset) (int64, error)
}
