package redis

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/coinstats/internal/domain"
)

//go:embed scripts/set_latest.lua
var setLatestLua string

// SnapshotCache implements domain.LatestCache with one hash per asset at
// "latest:{asset}". Entries expire after ttl so a stalled poller does not
// serve stale data forever; a zero ttl keeps them indefinitely.
type SnapshotCache struct {
	c         *Client
	ttl       time.Duration
	setLatest *redis.Script
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{c: c, ttl: ttl, setLatest: redis.NewScript(setLatestLua)}
}

func (sc *SnapshotCache) latestKey(asset domain.Asset) string {
	return sc.c.key("latest", string(asset))
}

// Set stores snap as the latest value for its asset unless the cached entry
// has a newer timestamp. The check and the write run atomically in Lua.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.Snapshot) error {
	if !snap.Asset.Valid() {
		return fmt.Errorf("redis: set latest: %w: %q", domain.ErrUnknownAsset, string(snap.Asset))
	}

	fields := encodeSnapshot(snap)
	args := make([]any, 0, 2+2*len(fields))
	args = append(args, fields["ts"], sc.ttl.Milliseconds())
	for k, v := range fields {
		args = append(args, k, v)
	}

	key := sc.latestKey(snap.Asset)
	if err := sc.setLatest.Run(ctx, sc.c.rdb, []string{key}, args...).Err(); err != nil {
		return fmt.Errorf("redis: set latest %s: %w", snap.Asset, err)
	}
	return nil
}

// Get returns the cached snapshot for asset, or domain.ErrNotFound on a miss.
func (sc *SnapshotCache) Get(ctx context.Context, asset domain.Asset) (domain.Snapshot, error) {
	if !asset.Valid() {
		return domain.Snapshot{}, fmt.Errorf("redis: get latest: %w: %q", domain.ErrUnknownAsset, string(asset))
	}
	vals, err := sc.c.rdb.HGetAll(ctx, sc.latestKey(asset)).Result()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: get latest %s: %w", asset, err)
	}
	if len(vals) == 0 {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	snap, err := decodeSnapshot(asset, vals)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: decode latest %s: %w", asset, err)
	}
	return snap, nil
}

func encodeSnapshot(s domain.Snapshot) map[string]string {
	return map[string]string{
		"id":         strconv.FormatInt(s.ID, 10),
		"price":      strconv.FormatFloat(s.CurrentPrice, 'f', -1, 64),
		"market_cap": strconv.FormatFloat(s.MarketCap, 'f', -1, 64),
		"change_24h": strconv.FormatFloat(s.PriceChange24h, 'f', -1, 64),
		"ts":         strconv.FormatInt(s.Timestamp.UnixNano(), 10),
	}
}

func decodeSnapshot(asset domain.Asset, vals map[string]string) (domain.Snapshot, error) {
	snap := domain.Snapshot{Asset: asset}
	var err error

	if snap.ID, err = strconv.ParseInt(vals["id"], 10, 64); err != nil {
		return domain.Snapshot{}, fmt.Errorf("id: %w", err)
	}
	if snap.CurrentPrice, err = strconv.ParseFloat(vals["price"], 64); err != nil {
		return domain.Snapshot{}, fmt.Errorf("price: %w", err)
	}
	if snap.MarketCap, err = strconv.ParseFloat(vals["market_cap"], 64); err != nil {
		return domain.Snapshot{}, fmt.Errorf("market_cap: %w", err)
	}
	if snap.PriceChange24h, err = strconv.ParseFloat(vals["change_24h"], 64); err != nil {
		return domain.Snapshot{}, fmt.Errorf("change_24h: %w", err)
	}
	ns, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("ts: %w", err)
	}
	snap.Timestamp = time.Unix(0, ns).UTC()
	return snap, nil
}

// Compile-time interface check.
var _ domain.LatestCache = (*SnapshotCache)(nil)
