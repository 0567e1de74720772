// Package detector implements the MEV pattern classifiers. Each detector is
// a pure function over one pool's market snapshot; the Set runs every
// detector over every pool and returns a deterministically ordered result.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mevshield/mevwatch/internal/domain"
)

// Params is the tunable policy surface of the detector set: firing
// thresholds and per-kind value caps. All values must be validated at
// startup; detectors assume they are sane.
type Params struct {
	ReferenceRatio      float64
	MinDeviation        float64
	ArbValueCap         float64
	SandwichValueCap    float64
	LiquidationValueCap float64
	ImpactThreshold     float64
	LiquidityThreshold  float64
	LiquidityNorm       float64
	VolatilityThreshold float64
}

// Fixed per-kind detection confidences, assigned before any correlation
// adjustment.
const (
	arbitrageConfidence   = 0.85
	sandwichConfidence    = 0.75
	liquidationConfidence = 0.65
)

// maxParallelPools bounds the per-pool detection fan-out within a cycle.
const maxParallelPools = 8

// Detector classifies one pool snapshot against a single MEV pattern.
// Implementations are stateless and order-independent with respect to the
// other detectors for the same pool.
type Detector interface {
	Kind() domain.Kind
	// Detect returns the candidate opportunity and true when the pattern
	// fires, or false when the snapshot shows no signal.
	Detect(poolID string, snap domain.MarketSnapshot, block uint64) (domain.Opportunity, bool)
}

// Set runs all registered detectors over a cycle's snapshots. Per-pool
// evaluation is parallel; a failure in one pool never aborts detection for
// the others.
type Set struct {
	detectors []Detector
	logger    *slog.Logger
}

// NewSet creates a Set with the three standard detectors configured from
// params.
func NewSet(params Params, logger *slog.Logger) *Set {
	return &Set{
		detectors: []Detector{
			NewArbitrage(params),
			NewSandwich(params),
			NewLiquidation(params),
		},
		logger: logger.With(slog.String("component", "detector_set")),
	}
}

// Run evaluates every detector against every pool snapshot and returns the
// detected opportunities ordered by pool ID then kind. The ordering is
// deterministic so correlation lookups depend only on ledger content from
// prior cycles, never on scheduling within this one.
func (s *Set) Run(ctx context.Context, snaps map[string]domain.MarketSnapshot, block uint64) []domain.Opportunity {
	var (
		mu   sync.Mutex
		opps []domain.Opportunity
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPools)

	for poolID, snap := range snaps {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found := s.detectPool(poolID, snap, block)
			if len(found) == 0 {
				return nil
			}
			mu.Lock()
			opps = append(opps, found...)
			mu.Unlock()
			return nil
		})
	}

	// The only error an evaluation goroutine can return is ctx.Err(); the
	// partial result is still valid for the pools that completed.
	if err := g.Wait(); err != nil {
		s.logger.Warn("detection pass interrupted", slog.String("error", err.Error()))
	}

	sort.Slice(opps, func(i, j int) bool {
		if opps[i].PoolID != opps[j].PoolID {
			return opps[i].PoolID < opps[j].PoolID
		}
		return opps[i].Kind < opps[j].Kind
	})
	return opps
}

// detectPool runs all detectors against a single pool. A panicking detector
// is contained here so the remaining pools still get classified.
func (s *Set) detectPool(poolID string, snap domain.MarketSnapshot, block uint64) (found []domain.Opportunity) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("detector panic isolated",
				slog.String("pool", poolID),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	for _, d := range s.detectors {
		if opp, ok := d.Detect(poolID, snap, block); ok {
			found = append(found, opp)
		}
	}
	return found
}

// newOpportunity assembles the common fields every detector fills in.
func newOpportunity(poolID string, kind domain.Kind, block uint64) domain.Opportunity {
	return domain.Opportunity{
		ID:          uuid.NewString(),
		PoolID:      poolID,
		Kind:        kind,
		DetectedAt:  time.Now().UTC(),
		BlockNumber: block,
	}
}

// capValue clamps an estimated value to its kind-specific cap. Capping is
// total: it holds for arbitrarily large inputs.
func capValue(v, cap float64) float64 {
	if v > cap {
		return cap
	}
	return v
}

// clampScore bounds a score to [0, 1].
func clampScore(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
