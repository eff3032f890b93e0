package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/coinstats/internal/domain"
	"github.com/alanyoungcy/coinstats/internal/metrics"
	"github.com/alanyoungcy/coinstats/internal/notify"
	"github.com/alanyoungcy/coinstats/internal/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProvider struct {
	quotes  map[domain.Asset]domain.Quote
	err     error
	entered chan struct{}
	release chan struct{}
	calls   int
}

func (f *fakeProvider) FetchQuotes(ctx context.Context, _ []domain.Asset) (map[domain.Asset]domain.Quote, error) {
	f.calls++
	if f.entered != nil {
		close(f.entered)
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.quotes, f.err
}

func allQuotes() map[domain.Asset]domain.Quote {
	return map[domain.Asset]domain.Quote{
		domain.AssetBitcoin:  {Asset: domain.AssetBitcoin, CurrentPrice: 67000, MarketCap: 1.3e12, PriceChange24h: -20},
		domain.AssetMatic:    {Asset: domain.AssetMatic, CurrentPrice: 0.7, MarketCap: 7e9, PriceChange24h: 0.01},
		domain.AssetEthereum: {Asset: domain.AssetEthereum, CurrentPrice: 3100, MarketCap: 3.7e11, PriceChange24h: 4},
	}
}

// failingStore fails writes for one asset and delegates everything else.
type failingStore struct {
	*memory.SnapshotStore
	failOn domain.Asset
}

func (s *failingStore) Write(ctx context.Context, asset domain.Asset, snap domain.Snapshot) (domain.Snapshot, error) {
	if asset == s.failOn {
		return domain.Snapshot{}, domain.ErrStorageUnavailable
	}
	return s.SnapshotStore.Write(ctx, asset, snap)
}

type recordingCache struct {
	mu   sync.Mutex
	sets []domain.Snapshot
	err  error
}

func (c *recordingCache) Set(_ context.Context, snap domain.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets = append(c.sets, snap)
	return c.err
}

func (c *recordingCache) Get(context.Context, domain.Asset) (domain.Snapshot, error) {
	return domain.Snapshot{}, domain.ErrNotFound
}

type recordingBus struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if channel != domain.SnapshotChannel {
		return errors.New("unexpected channel")
	}
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type countingLock struct {
	acquired, released int
}

func (l *countingLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	l.acquired++
	return func() { l.released++ }, nil
}

type recordingSender struct {
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return nil
}

func (r *recordingSender) Name() string { return "rec" }

func newPoller(p domain.QuoteProvider, s domain.SnapshotStore, deps PollerDeps) *SnapshotPoller {
	return NewSnapshotPoller(p, s, deps, PollerConfig{TickTimeout: 5 * time.Second}, quietLogger())
}

func TestTickWritesOneSnapshotPerAsset(t *testing.T) {
	store := memory.NewSnapshotStore()
	cache := &recordingCache{}
	bus := &recordingBus{}
	lock := &countingLock{}
	p := newPoller(&fakeProvider{quotes: allQuotes()}, store, PollerDeps{
		Cache: cache, Bus: bus, Locks: lock, Metrics: metrics.New(),
	})

	res, err := p.Tick(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.TickID)
	require.Len(t, res.Written, 3)
	assert.Empty(t, res.Missing)

	// Written in AllAssets order.
	for i, a := range domain.AllAssets() {
		assert.Equal(t, a, res.Written[i].Asset)
		n, err := store.Count(context.Background(), a)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	}

	assert.Len(t, cache.sets, 3)
	require.Len(t, bus.payloads, 3)
	var evt domain.Snapshot
	require.NoError(t, json.Unmarshal(bus.payloads[0], &evt))
	assert.Equal(t, domain.AssetBitcoin, evt.Asset)
	assert.Equal(t, 67000.0, evt.CurrentPrice)

	assert.Equal(t, 1, lock.acquired)
	assert.Equal(t, 1, lock.released)
}

func TestTickSkipsAbsentAssets(t *testing.T) {
	quotes := allQuotes()
	delete(quotes, domain.AssetMatic)
	store := memory.NewSnapshotStore()
	p := newPoller(&fakeProvider{quotes: quotes}, store, PollerDeps{})

	res, err := p.Tick(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Written, 2)
	assert.Equal(t, []domain.Asset{domain.AssetMatic}, res.Missing)

	_, err = store.Latest(context.Background(), domain.AssetMatic)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTickFetchFailureWritesNothing(t *testing.T) {
	store := memory.NewSnapshotStore()
	sender := &recordingSender{}
	n := notify.NewNotifier([]notify.Sender{sender}, nil, quietLogger())
	p := newPoller(&fakeProvider{err: domain.ErrProviderFetch}, store, PollerDeps{Notifier: n})

	res, err := p.Tick(context.Background())
	require.ErrorIs(t, err, domain.ErrProviderFetch)
	assert.Empty(t, res.Written)

	for _, a := range domain.AllAssets() {
		c, err := store.Count(context.Background(), a)
		require.NoError(t, err)
		assert.Zero(t, c)
	}
	assert.Equal(t, []string{"Snapshot poll failed"}, sender.titles)
}

func TestTickWriteFailureKeepsEarlierWrites(t *testing.T) {
	store := &failingStore{SnapshotStore: memory.NewSnapshotStore(), failOn: domain.AssetMatic}
	p := newPoller(&fakeProvider{quotes: allQuotes()}, store, PollerDeps{})

	res, err := p.Tick(context.Background())
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	require.Len(t, res.Written, 1)
	assert.Equal(t, domain.AssetBitcoin, res.Written[0].Asset)

	ctx := context.Background()
	btc, err := store.Count(ctx, domain.AssetBitcoin)
	require.NoError(t, err)
	assert.EqualValues(t, 1, btc)

	eth, err := store.Count(ctx, domain.AssetEthereum)
	require.NoError(t, err)
	assert.Zero(t, eth, "tick aborts after the failed write")
}

func TestTickCacheFailureDoesNotFailTick(t *testing.T) {
	store := memory.NewSnapshotStore()
	p := newPoller(&fakeProvider{quotes: allQuotes()}, store, PollerDeps{
		Cache: &recordingCache{err: errors.New("redis down")},
	})

	res, err := p.Tick(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Written, 3)
}

func TestTickOverlapIsRejected(t *testing.T) {
	prov := &fakeProvider{
		quotes:  allQuotes(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	p := newPoller(prov, memory.NewSnapshotStore(), PollerDeps{})

	done := make(chan error, 1)
	go func() {
		_, err := p.Tick(context.Background())
		done <- err
	}()

	<-prov.entered
	_, err := p.Tick(context.Background())
	require.ErrorIs(t, err, domain.ErrTickInProgress)

	close(prov.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, prov.calls)
}

func TestTickSkipsWhenLockHeldElsewhere(t *testing.T) {
	prov := &fakeProvider{quotes: allQuotes()}
	p := newPoller(prov, memory.NewSnapshotStore(), PollerDeps{Locks: heldLock{}})

	_, err := p.Tick(context.Background())
	require.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Zero(t, prov.calls)
}

func TestRunTicksOnStartAndStops(t *testing.T) {
	store := memory.NewSnapshotStore()
	p := NewSnapshotPoller(&fakeProvider{quotes: allQuotes()}, store, PollerDeps{},
		PollerConfig{Schedule: "@every 1h", RunOnStart: true, TickTimeout: time.Second}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		n, _ := store.Count(context.Background(), domain.AssetBitcoin)
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestRunRejectsBadSchedule(t *testing.T) {
	p := NewSnapshotPoller(&fakeProvider{}, memory.NewSnapshotStore(), PollerDeps{},
		PollerConfig{Schedule: "not a schedule"}, quietLogger())
	err := p.Run(context.Background())
	require.Error(t, err)
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("@every 2h"))
	assert.NoError(t, ValidateSchedule("0 */2 * * *"))
	assert.Error(t, ValidateSchedule("* * *"))
}
