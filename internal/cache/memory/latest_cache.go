package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/coinstats/internal/domain"
)

// LatestCache is an in-process domain.LatestCache.
type LatestCache struct {
	mu   sync.RWMutex
	snap map[domain.Asset]domain.Snapshot
}

func NewLatestCache() *LatestCache {
	return &LatestCache{snap: make(map[domain.Asset]domain.Snapshot)}
}

// Set keeps snap unless a newer snapshot is already cached.
func (c *LatestCache) Set(_ context.Context, snap domain.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.snap[snap.Asset]; ok && cur.Timestamp.After(snap.Timestamp) {
		return nil
	}
	c.snap[snap.Asset] = snap
	return nil
}

func (c *LatestCache) Get(_ context.Context, asset domain.Asset) (domain.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.snap[asset]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return s, nil
}

var _ domain.LatestCache = (*LatestCache)(nil)
