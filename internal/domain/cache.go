package domain

import (
	"context"
	"time"
)

// LatestCache keeps the most recent snapshot per asset for fast reads.
type LatestCache interface {
	Set(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, asset Asset) (Snapshot, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub between the poller and live subscribers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// SnapshotChannel is the bus channel carrying newly written snapshots.
const SnapshotChannel = "snapshots"
