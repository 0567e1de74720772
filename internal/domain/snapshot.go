package domain

import (
	"context"
	"time"
)

// MarketSnapshot holds the per-pool market metrics observed in one analysis
// cycle. Snapshots are immutable; a newer snapshot for the same pool
// supersedes the previous one.
type MarketSnapshot struct {
	PoolID      string    `json:"pool_id"`
	Token0Price float64   `json:"token0_price"`
	Token1Price float64   `json:"token1_price"`
	Volume24h   float64   `json:"volume_24h"`
	Liquidity   float64   `json:"liquidity"`
	PriceImpact float64   `json:"price_impact"`
	Volatility  float64   `json:"volatility"`
	ObservedAt  time.Time `json:"observed_at"`

	// Stale is set when the snapshot was served from the cache because a
	// fresh fetch failed, so downstream consumers can discount it.
	Stale bool `json:"stale,omitempty"`
}

// SnapshotCache stores the latest snapshot per pool. It is the fallback data
// source when a fresh fetch fails.
type SnapshotCache interface {
	Set(ctx context.Context, snap MarketSnapshot) error
	// Get returns ErrNotFound when no snapshot has been cached for the pool.
	Get(ctx context.Context, poolID string) (MarketSnapshot, error)
}

// SnapshotSource fetches fresh market snapshots for a set of pools together
// with the chain block number they were observed at. A partial result is
// allowed: pools missing from the map are treated per-pool as fetch failures.
type SnapshotSource interface {
	Fetch(ctx context.Context, poolIDs []string) (map[string]MarketSnapshot, uint64, error)
}
