// Package service holds the read-side use cases served over HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/coinstats/internal/domain"
	"github.com/alanyoungcy/coinstats/internal/stats"
)

const (
	msgPartialSample = "Calculated with available records (less than 100)"
	msgFullSample    = "Calculated with last 100 records"
)

// SnapshotService answers latest-snapshot and rolling deviation queries. It
// holds no mutable state and is safe for concurrent use.
type SnapshotService struct {
	store  domain.SnapshotStore
	cache  domain.LatestCache
	logger *slog.Logger
}

// NewSnapshotService creates a SnapshotService. cache may be nil.
func NewSnapshotService(store domain.SnapshotStore, cache domain.LatestCache, logger *slog.Logger) *SnapshotService {
	return &SnapshotService{
		store:  store,
		cache:  cache,
		logger: logger.With(slog.String("component", "snapshot_service")),
	}
}

// GetLatest returns the newest snapshot for rawID. The cache is consulted
// first; on a miss the store answers and the cache is refilled.
func (s *SnapshotService) GetLatest(ctx context.Context, rawID string) (domain.Snapshot, error) {
	asset, err := domain.ParseAsset(rawID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	if s.cache != nil {
		snap, err := s.cache.Get(ctx, asset)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "latest cache read failed",
				slog.String("asset", asset.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	snap, err := s.store.Latest(ctx, asset)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot_service: latest %s: %w", asset, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "latest cache refill failed",
				slog.String("asset", asset.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return snap, nil
}

// GetDeviation returns the population standard deviation of the most recent
// domain.DefaultSampleLimit prices for rawID.
func (s *SnapshotService) GetDeviation(ctx context.Context, rawID string) (domain.Deviation, error) {
	asset, err := domain.ParseAsset(rawID)
	if err != nil {
		return domain.Deviation{}, err
	}

	snaps, err := s.store.Recent(ctx, asset, domain.DefaultSampleLimit)
	if err != nil {
		return domain.Deviation{}, fmt.Errorf("snapshot_service: recent %s: %w", asset, err)
	}
	if len(snaps) == 0 {
		return domain.Deviation{}, fmt.Errorf("snapshot_service: recent %s: %w", asset, domain.ErrNotFound)
	}

	res := stats.PopulationStdDev(stats.Prices(snaps))

	msg := msgFullSample
	if res.Count < domain.DefaultSampleLimit {
		msg = msgPartialSample
	}
	return domain.Deviation{
		Coin:              asset,
		StandardDeviation: res.StdDev,
		DataPoints:        res.Count,
		Message:           msg,
	}, nil
}

// AssetCount is one row of StoreSummary.
type AssetCount struct {
	Asset domain.Asset `json:"asset"`
	Count int64        `json:"count"`
}

// StoreSummary reports how many snapshots each asset has, for the health
// endpoint.
func (s *SnapshotService) StoreSummary(ctx context.Context) ([]AssetCount, error) {
	assets := domain.AllAssets()
	out := make([]AssetCount, 0, len(assets))
	for _, a := range assets {
		n, err := s.store.Count(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("snapshot_service: count %s: %w", a, err)
		}
		out = append(out, AssetCount{Asset: a, Count: n})
	}
	return out, nil
}
