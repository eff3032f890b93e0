package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/coinstats/internal/domain"
)

func TestEncodeDecodeSnapshot(t *testing.T) {
	ts := time.Date(2024, 3, 9, 12, 0, 0, 123, time.UTC)
	in := domain.Snapshot{
		ID: 42, Asset: domain.AssetBitcoin,
		CurrentPrice: 67000.5, MarketCap: 1.3e12, PriceChange24h: -120.25,
		Timestamp: ts,
	}

	out, err := decodeSnapshot(domain.AssetBitcoin, encodeSnapshot(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	_, err := decodeSnapshot(domain.AssetMatic, map[string]string{"id": "x"})
	assert.Error(t, err)
}

func TestNewFromRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	c := NewFromRedis(rdb, "coinstats:")
	assert.Same(t, rdb, c.Underlying())
	assert.Equal(t, "coinstats:lock:poller:tick", c.key("lock", "poller:tick"))
}

func TestKeyPrefix(t *testing.T) {
	c := &Client{prefix: "coinstats:"}
	assert.Equal(t, "coinstats:latest:bitcoin", c.key("latest", "bitcoin"))
	assert.Equal(t, "lock:poller:tick", (&Client{}).key("lock", "poller:tick"))
}

// newTestClient connects to COINSTATS_TEST_REDIS_ADDR, skipping when unset.
// Each test gets its own key prefix.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("COINSTATS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("COINSTATS_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{
		Addr:      addr,
		KeyPrefix: "coinstats-test-" + uuid.NewString() + ":",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSnapshotCacheIntegration(t *testing.T) {
	c := newTestClient(t)
	cache := NewSnapshotCache(c, time.Minute)
	ctx := context.Background()

	_, err := cache.Get(ctx, domain.AssetEthereum)
	require.ErrorIs(t, err, domain.ErrNotFound)

	snap := domain.Snapshot{ID: 7, Asset: domain.AssetEthereum, CurrentPrice: 3100, Timestamp: time.Now().UTC()}
	require.NoError(t, cache.Set(ctx, snap))

	got, err := cache.Get(ctx, domain.AssetEthereum)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, snap.CurrentPrice, got.CurrentPrice)

	_, err = cache.Get(ctx, domain.Asset("nope"))
	assert.ErrorIs(t, err, domain.ErrUnknownAsset)
}

func TestSnapshotCacheKeepsNewer(t *testing.T) {
	c := newTestClient(t)
	cache := NewSnapshotCache(c, time.Minute)
	ctx := context.Background()

	now := time.Now().UTC()
	newer := domain.Snapshot{ID: 2, Asset: domain.AssetBitcoin, CurrentPrice: 200, Timestamp: now}
	older := domain.Snapshot{ID: 1, Asset: domain.AssetBitcoin, CurrentPrice: 100, Timestamp: now.Add(-time.Nanosecond)}

	require.NoError(t, cache.Set(ctx, newer))
	require.NoError(t, cache.Set(ctx, older))

	got, err := cache.Get(ctx, domain.AssetBitcoin)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
	assert.Equal(t, 200.0, got.CurrentPrice)

	ttl, err := c.Underlying().PTTL(ctx, cache.latestKey(domain.AssetBitcoin)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	// Equal timestamps overwrite, so a re-poll of the same capture still lands.
	same := newer
	same.CurrentPrice = 201
	require.NoError(t, cache.Set(ctx, same))
	got, err = cache.Get(ctx, domain.AssetBitcoin)
	require.NoError(t, err)
	assert.Equal(t, 201.0, got.CurrentPrice)
}

func TestLockManagerIntegration(t *testing.T) {
	c := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "poller:tick", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "poller:tick", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	again, err := lm.Acquire(ctx, "poller:tick", time.Minute)
	require.NoError(t, err)
	again()
}

func TestRateLimiterIntegration(t *testing.T) {
	c := newTestClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()

	for i := range 3 {
		ok, err := rl.Allow(ctx, "10.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "10.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "10.0.0.2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignalBusIntegration(t *testing.T) {
	c := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := bus.Subscribe(ctx, domain.SnapshotChannel)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, domain.SnapshotChannel, []byte(`{"asset":"bitcoin"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"asset":"bitcoin"}`, string(msg))
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}
