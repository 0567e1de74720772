// Package feed assembles market snapshots for the analysis engine from the
// pool-metrics API, stamped with the chain head from an Ethereum RPC node.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mevshield/mevwatch/internal/domain"
	"github.com/mevshield/mevwatch/internal/platform/dexmetrics"
)

// SnapshotSource implements domain.SnapshotSource. The metrics API is the
// authoritative source; the RPC node only contributes the block reference,
// so an unreachable node degrades to block 0 rather than failing the fetch.
type SnapshotSource struct {
	metrics *dexmetrics.Client
	eth     *ethclient.Client
	logger  *slog.Logger
}

// NewSnapshotSource creates a SnapshotSource. eth may be nil when no RPC
// endpoint is configured; snapshots then carry no block reference.
func NewSnapshotSource(metrics *dexmetrics.Client, eth *ethclient.Client, logger *slog.Logger) *SnapshotSource {
	return &SnapshotSource{
		metrics: metrics,
		eth:     eth,
		logger:  logger.With(slog.String("component", "snapshot_source")),
	}
}

// Fetch retrieves current snapshots for the given pools. Pools the metrics
// API does not know are absent from the result; the caller decides whether
// to fall back to cached data for them.
func (s *SnapshotSource) Fetch(ctx context.Context, poolIDs []string) (map[string]domain.MarketSnapshot, uint64, error) {
	if len(poolIDs) == 0 {
		return nil, 0, nil
	}

	metrics, err := s.metrics.FetchPoolMetrics(ctx, poolIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("feed: %w", err)
	}

	var block uint64
	if s.eth != nil {
		block, err = s.eth.BlockNumber(ctx)
		if err != nil {
			s.logger.Warn("block number fetch failed",
				slog.String("error", err.Error()),
			)
			block = 0
		}
	}

	now := time.Now().UTC()
	snaps := make(map[string]domain.MarketSnapshot, len(metrics))
	for _, m := range metrics {
		observed := m.UpdatedAt
		if observed.IsZero() {
			observed = now
		}
		snaps[m.PoolID] = domain.MarketSnapshot{
			PoolID:      m.PoolID,
			Token0Price: m.Token0Price,
			Token1Price: m.Token1Price,
			Volume24h:   m.Volume24h,
			Liquidity:   m.Liquidity,
			PriceImpact: m.PriceImpact,
			Volatility:  m.Volatility,
			ObservedAt:  observed,
		}
	}

	return snaps, block, nil
}

// Compile-time interface check.
var _ domain.SnapshotSource = (*SnapshotSource)(nil)
