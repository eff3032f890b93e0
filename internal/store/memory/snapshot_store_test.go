package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/coinstats/internal/domain"
)

func TestSnapshotStore_EmptySeries(t *testing.T) {
	s := NewSnapshotStore()
	ctx := context.Background()

	_, err := s.Latest(ctx, domain.AssetBitcoin)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.Recent(ctx, domain.AssetBitcoin, 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := s.Count(ctx, domain.AssetBitcoin)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSnapshotStore_UnknownAsset(t *testing.T) {
	s := NewSnapshotStore()
	ctx := context.Background()
	bad := domain.Asset("dogecoin")

	_, err := s.Write(ctx, bad, domain.Snapshot{CurrentPrice: 1})
	assert.ErrorIs(t, err, domain.ErrUnknownAsset)
	_, err = s.Latest(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrUnknownAsset)
	_, err = s.Recent(ctx, bad, 1)
	assert.ErrorIs(t, err, domain.ErrUnknownAsset)
	_, err = s.ListRange(ctx, bad, time.Time{}, time.Now())
	assert.ErrorIs(t, err, domain.ErrUnknownAsset)
	_, err = s.Count(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrUnknownAsset)
}

func TestSnapshotStore_ReadYourWrites(t *testing.T) {
	s := NewSnapshotStore()
	ctx := context.Background()

	w, err := s.Write(ctx, domain.AssetEthereum, domain.Snapshot{CurrentPrice: 3000, MarketCap: 1e11})
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.ID)
	assert.Equal(t, domain.AssetEthereum, w.Asset)
	assert.False(t, w.Timestamp.IsZero())

	got, err := s.Latest(ctx, domain.AssetEthereum)
	require.NoError(t, err)
	assert.Equal(t, w, got)

	_, err = s.Latest(ctx, domain.AssetBitcoin)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSnapshotStore_RecentCapAndOrder(t *testing.T) {
	s := NewSnapshotStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := range 150 {
		_, err := s.Write(ctx, domain.AssetBitcoin, domain.Snapshot{
			CurrentPrice: float64(i),
			Timestamp:    base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	recent, err := s.Recent(ctx, domain.AssetBitcoin, 0)
	require.NoError(t, err)
	require.Len(t, recent, domain.DefaultSampleLimit)
	assert.Equal(t, 149.0, recent[0].CurrentPrice)
	assert.Equal(t, 50.0, recent[99].CurrentPrice)

	few, err := s.Recent(ctx, domain.AssetBitcoin, 3)
	require.NoError(t, err)
	assert.Len(t, few, 3)
}

func TestSnapshotStore_OutOfOrderTimestamps(t *testing.T) {
	s := NewSnapshotStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.Write(ctx, domain.AssetMatic, domain.Snapshot{CurrentPrice: 2, Timestamp: base.Add(time.Hour)})
	require.NoError(t, err)
	_, err = s.Write(ctx, domain.AssetMatic, domain.Snapshot{CurrentPrice: 1, Timestamp: base})
	require.NoError(t, err)

	latest, err := s.Latest(ctx, domain.AssetMatic)
	require.NoError(t, err)
	assert.Equal(t, 2.0, latest.CurrentPrice)

	ranged, err := s.ListRange(ctx, domain.AssetMatic, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, 1.0, ranged[0].CurrentPrice)
}

func TestSnapshotStore_ConcurrentWrites(t *testing.T) {
	s := NewSnapshotStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, a := range domain.AllAssets() {
				_, err := s.Write(ctx, a, domain.Snapshot{CurrentPrice: 1})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for _, a := range domain.AllAssets() {
		n, err := s.Count(ctx, a)
		require.NoError(t, err)
		assert.EqualValues(t, 20, n)
	}
}

func TestArchiveLog_LastCutoff(t *testing.T) {
	l := NewArchiveLog()
	ctx := context.Background()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	cut, err := l.LastCutoff(ctx, domain.AssetBitcoin)
	require.NoError(t, err)
	assert.True(t, cut.IsZero())

	require.NoError(t, l.Record(ctx, domain.ArchiveRecord{Asset: domain.AssetBitcoin, Before: t2}))
	require.NoError(t, l.Record(ctx, domain.ArchiveRecord{Asset: domain.AssetBitcoin, Before: t1}))
	require.NoError(t, l.Record(ctx, domain.ArchiveRecord{Asset: domain.AssetMatic, Before: t2.Add(time.Hour)}))

	cut, err = l.LastCutoff(ctx, domain.AssetBitcoin)
	require.NoError(t, err)
	assert.Equal(t, t2, cut)
	assert.Len(t, l.Records(), 3)
}
