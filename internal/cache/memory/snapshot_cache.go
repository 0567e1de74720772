// Package memory implements the snapshot cache in process memory. It backs
// analyze mode, where no Redis is available, and the test suites.
package memory

import (
	"context"
	"sync"

	"github.com/mevshield/mevwatch/internal/domain"
)

// SnapshotCache keeps the latest snapshot per pool under a single lock.
type SnapshotCache struct {
	mu    sync.RWMutex
	snaps map[string]domain.MarketSnapshot
}

// NewSnapshotCache creates an empty SnapshotCache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{snaps: make(map[string]domain.MarketSnapshot)}
}

// Set stores the snapshot, superseding any previous one for the same pool.
func (c *SnapshotCache) Set(_ context.Context, snap domain.MarketSnapshot) error {
	c.mu.Lock()
	c.snaps[snap.PoolID] = snap
	c.mu.Unlock()
	return nil
}

// Get returns the latest snapshot for the pool, or domain.ErrNotFound.
func (c *SnapshotCache) Get(_ context.Context, poolID string) (domain.MarketSnapshot, error) {
	c.mu.RLock()
	snap, ok := c.snaps[poolID]
	c.mu.RUnlock()
	if !ok {
		return domain.MarketSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
