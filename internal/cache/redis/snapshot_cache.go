package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mevshield/mevwatch/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SnapshotCache implements domain.SnapshotCache with one JSON-serialized
// snapshot per pool. Cached entries serve as fallback when the live data
// source is unavailable, so the TTL bounds how old a fallback may get.
//
// Key schema:
//
//	snapshot:{poolID} - string value containing JSON
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
// A zero ttl keeps entries until overwritten.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying(), ttl: ttl}
}

func snapshotKey(poolID string) string { return "snapshot:" + poolID }

// Set stores the snapshot, superseding any previous one for the same pool.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.MarketSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.PoolID, err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey(snap.PoolID), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.PoolID, err)
	}
	return nil
}

// Get retrieves the latest snapshot for the pool.
// It returns domain.ErrNotFound when no entry exists or the TTL has expired.
func (sc *SnapshotCache) Get(ctx context.Context, poolID string) (domain.MarketSnapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(poolID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketSnapshot{}, domain.ErrNotFound
		}
		return domain.MarketSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", poolID, err)
	}

	var snap domain.MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", poolID, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
