// Package ledger implements the bounded, time-ordered store of accepted
// opportunities. It is the source of truth for correlation lookups and for
// the statistics query.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mevshield/mevwatch/internal/domain"
)

// Ledger is an append-only, capacity-bounded sequence of opportunities with
// FIFO eviction. One mutex guards every mutation and read: cycle appends,
// externally sourced inserts, correlation lookups, and stats queries all
// serialize on it.
//
// When a persistence store is attached, every accepted entry is also written
// through. Persistence is best-effort: a store failure is logged and the
// in-memory append stands, so correlation state never silently diverges
// from what the cycle produced.
type Ledger struct {
	mu       sync.Mutex
	entries  []domain.Opportunity
	capacity int

	store  domain.OpportunityStore // optional write-through
	logger *slog.Logger
}

// New creates a Ledger bounded to the given capacity. store may be nil for
// purely in-memory operation.
func New(capacity int, store domain.OpportunityStore, logger *slog.Logger) (*Ledger, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: ledger capacity must be >= 1, got %d", domain.ErrConfiguration, capacity)
	}
	return &Ledger{
		entries:  make([]domain.Opportunity, 0, capacity),
		capacity: capacity,
		store:    store,
		logger:   logger.With(slog.String("component", "ledger")),
	}, nil
}

// Append seals an opportunity into the ledger, evicting the oldest entry
// once the capacity bound is exceeded. The opportunity must satisfy its
// invariants; entries are never mutated after insertion.
func (l *Ledger) Append(ctx context.Context, opp domain.Opportunity) error {
	if err := opp.Validate(); err != nil {
		return fmt.Errorf("ledger: reject append: %w", err)
	}

	l.mu.Lock()
	l.entries = append(l.entries, opp)
	if len(l.entries) > l.capacity {
		// FIFO eviction, not time-based.
		over := len(l.entries) - l.capacity
		l.entries = append(l.entries[:0], l.entries[over:]...)
	}
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Insert(ctx, opp); err != nil {
			l.logger.Warn("write-through persist failed",
				slog.String("opportunity", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// History returns the ledger entries for a pool with detection time strictly
// after since, oldest first. The result is a copy; callers may not reach the
// underlying entries.
func (l *Ledger) History(poolID string, since time.Time) []domain.Opportunity {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.Opportunity
	for _, e := range l.entries {
		if e.PoolID == poolID && e.DetectedAt.After(since) {
			out = append(out, e)
		}
	}
	return out
}

// Recent returns up to limit of the most recent entries, newest first.
// limit <= 0 returns everything.
func (l *Ledger) Recent(limit int) []domain.Opportunity {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Opportunity, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// Size returns the current number of retained entries.
func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
