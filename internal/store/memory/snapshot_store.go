// Package memory provides an in-process domain.SnapshotStore used in local
// mode and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/coinstats/internal/domain"
)

// SnapshotStore keeps every series in memory, ordered by insertion.
type SnapshotStore struct {
	mu     sync.RWMutex
	series map[domain.Asset][]domain.Snapshot
	nextID int64
	now    func() time.Time
}

// NewSnapshotStore returns an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		series: make(map[domain.Asset][]domain.Snapshot),
		now:    time.Now,
	}
}

func check(asset domain.Asset) error {
	if !asset.Valid() {
		return fmt.Errorf("memory: %w: %q", domain.ErrUnknownAsset, string(asset))
	}
	return nil
}

// Write appends snap and returns it with its assigned ID and timestamp.
func (s *SnapshotStore) Write(_ context.Context, asset domain.Asset, snap domain.Snapshot) (domain.Snapshot, error) {
	if err := check(asset); err != nil {
		return domain.Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	snap.ID = s.nextID
	snap.Asset = asset
	if snap.Timestamp.IsZero() {
		snap.Timestamp = s.now()
	}
	snap.Timestamp = snap.Timestamp.UTC()

	// Keep the series sorted by timestamp; equal timestamps stay in write order.
	list := s.series[asset]
	i := sort.Search(len(list), func(i int) bool { return list[i].Timestamp.After(snap.Timestamp) })
	list = append(list, domain.Snapshot{})
	copy(list[i+1:], list[i:])
	list[i] = snap
	s.series[asset] = list

	return snap, nil
}

// Latest returns the newest snapshot for asset.
func (s *SnapshotStore) Latest(_ context.Context, asset domain.Asset) (domain.Snapshot, error) {
	if err := check(asset); err != nil {
		return domain.Snapshot{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.series[asset]
	if len(list) == 0 {
		return domain.Snapshot{}, fmt.Errorf("memory: latest %s: %w", asset, domain.ErrNotFound)
	}
	return list[len(list)-1], nil
}

// Recent returns up to limit snapshots, newest first.
func (s *SnapshotStore) Recent(_ context.Context, asset domain.Asset, limit int) ([]domain.Snapshot, error) {
	if err := check(asset); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = domain.DefaultSampleLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.series[asset]
	if len(list) == 0 {
		return nil, fmt.Errorf("memory: recent %s: %w", asset, domain.ErrNotFound)
	}
	n := min(limit, len(list))
	out := make([]domain.Snapshot, 0, n)
	for i := len(list) - 1; i >= len(list)-n; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

// ListRange returns snapshots with from <= timestamp < to, oldest first.
func (s *SnapshotStore) ListRange(_ context.Context, asset domain.Asset, from, to time.Time) ([]domain.Snapshot, error) {
	if err := check(asset); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Snapshot
	for _, snap := range s.series[asset] {
		if !snap.Timestamp.Before(from) && snap.Timestamp.Before(to) {
			out = append(out, snap)
		}
	}
	return out, nil
}

// Count returns the number of stored snapshots for asset.
func (s *SnapshotStore) Count(_ context.Context, asset domain.Asset) (int64, error) {
	if err := check(asset); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.series[asset])), nil
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)
