package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mevshield/mevwatch/internal/cache/memory"
	"github.com/mevshield/mevwatch/internal/detector"
	"github.com/mevshield/mevwatch/internal/domain"
	"github.com/mevshield/mevwatch/internal/enhance"
	"github.com/mevshield/mevwatch/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testParams() detector.Params {
	return detector.Params{
		ReferenceRatio:      2000,
		MinDeviation:        0.01,
		ArbValueCap:         10,
		SandwichValueCap:    5,
		LiquidationValueCap: 3,
		ImpactThreshold:     0.3,
		LiquidityThreshold:  1_000_000,
		LiquidityNorm:       10_000_000,
		VolatilityThreshold: 0.6,
	}
}

// arbSnapshot fires only the arbitrage detector: deviation 15% against the
// reference ratio, but calm impact, deep liquidity, and low volatility.
func arbSnapshot(poolID string) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		PoolID:      poolID,
		Token0Price: 2300,
		Token1Price: 1,
		Volume24h:   500_000,
		Liquidity:   2_000_000,
		PriceImpact: 0.1,
		Volatility:  0.2,
		ObservedAt:  time.Now().UTC(),
	}
}

// quietSnapshot fires no detector.
func quietSnapshot(poolID string) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		PoolID:      poolID,
		Token0Price: 2000,
		Token1Price: 1,
		Volume24h:   500_000,
		Liquidity:   2_000_000,
		PriceImpact: 0.1,
		Volatility:  0.2,
		ObservedAt:  time.Now().UTC(),
	}
}

type fakeSource struct {
	mu    sync.Mutex
	snaps map[string]domain.MarketSnapshot
	block uint64
	err   error
	calls int
}

func (f *fakeSource) Fetch(_ context.Context, _ []string) (map[string]domain.MarketSnapshot, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, 0, f.err
	}
	out := make(map[string]domain.MarketSnapshot, len(f.snaps))
	for k, v := range f.snaps {
		out[k] = v
	}
	return out, f.block, nil
}

func (f *fakeSource) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEnhancer struct {
	err  error
	mutx func(domain.Opportunity) domain.Opportunity
}

func (f *fakeEnhancer) Enhance(_ context.Context, opp domain.Opportunity, _ []domain.Opportunity) (domain.Opportunity, error) {
	if f.err != nil {
		return domain.Opportunity{}, f.err
	}
	if f.mutx != nil {
		return f.mutx(opp), nil
	}
	return opp, nil
}

type fakeSink struct {
	mu   sync.Mutex
	sent []domain.Opportunity
	err  error
}

func (f *fakeSink) SendAlert(_ context.Context, opp domain.Opportunity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, opp)
	return nil
}

func (f *fakeSink) alerts() []domain.Opportunity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Opportunity(nil), f.sent...)
}

type harness struct {
	engine *Engine
	source *fakeSource
	cache  *memory.SnapshotCache
	sink   *fakeSink
	ledger *ledger.Ledger
	stats  *Stats
}

func newHarness(t *testing.T, pools []string, src *fakeSource, enh domain.ScoreEnhancer) *harness {
	t.Helper()

	ldg, err := ledger.New(100, nil, testLogger())
	require.NoError(t, err)

	cache := memory.NewSnapshotCache()
	sink := &fakeSink{}
	stats := NewStats()

	cfg := Config{
		Pools:             pools,
		Interval:          time.Hour,
		AlertThreshold:    0.7,
		CorrelationWindow: 5 * time.Minute,
		FetchTimeout:      time.Second,
		DispatchTimeout:   time.Second,
		ValueCaps: map[domain.Kind]float64{
			domain.KindArbitrage:   10,
			domain.KindSandwich:    5,
			domain.KindLiquidation: 3,
		},
	}

	eng := New(cfg, src, cache, detector.NewSet(testParams(), testLogger()), enh, ldg, sink, stats, testLogger())
	return &harness{engine: eng, source: src, cache: cache, sink: sink, ledger: ldg, stats: stats}
}

func TestTick_AtMostOnceWithinInterval(t *testing.T) {
	src := &fakeSource{snaps: map[string]domain.MarketSnapshot{"pool-a": quietSnapshot("pool-a")}, block: 10}
	h := newHarness(t, []string{"pool-a"}, src, &fakeEnhancer{})

	ran, err := h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	// Second tick inside the interval stays Idle without touching the source.
	ran, err = h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1, src.fetchCalls())
}

func TestTick_FailedCycleDoesNotAdvanceGuard(t *testing.T) {
	src := &fakeSource{snaps: map[string]domain.MarketSnapshot{"pool-a": arbSnapshot("pool-a")}, block: 10}
	// An enhancer that corrupts the risk score makes the ledger reject the
	// entry, which abandons the cycle.
	broken := &fakeEnhancer{mutx: func(o domain.Opportunity) domain.Opportunity {
		o.RiskScore = 2.0
		return o
	}}
	h := newHarness(t, []string{"pool-a"}, src, broken)

	ran, err := h.engine.Tick(context.Background())
	require.Error(t, err)
	assert.False(t, ran)

	// The guard did not advance, so a retry is allowed immediately.
	h.engine.enhancer = &fakeEnhancer{}
	ran, err = h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, h.ledger.Size())
}

// volatileSnapshot fires all three detectors at once: 15% ratio deviation,
// high impact on thin liquidity, and volatility above the threshold.
func volatileSnapshot(poolID string) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		PoolID:      poolID,
		Token0Price: 2300,
		Token1Price: 1,
		Volume24h:   500_000,
		Liquidity:   500_000,
		PriceImpact: 0.4,
		Volatility:  0.7,
		ObservedAt:  time.Now().UTC(),
	}
}

func TestTick_CorrelationSeesPriorCyclesOnly(t *testing.T) {
	src := &fakeSource{snaps: map[string]domain.MarketSnapshot{"pool-a": volatileSnapshot("pool-a")}, block: 10}
	h := newHarness(t, []string{"pool-a"}, src, enhance.NewCorrelation(2, testLogger()))

	// One entry from an earlier cycle, inside the correlation window.
	prior := domain.Opportunity{
		ID:         "prior",
		PoolID:     "pool-a",
		Kind:       domain.KindArbitrage,
		RiskScore:  0.5,
		Confidence: 0.85,
		DetectedAt: time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, h.ledger.Append(context.Background(), prior))

	ran, err := h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	var sandwich domain.Opportunity
	found := false
	for _, opp := range h.ledger.Recent(10) {
		if opp.Kind == domain.KindSandwich {
			sandwich, found = opp, true
		}
	}
	require.True(t, found)

	// The cycle produced three detections for pool-a, but only the single
	// prior-cycle entry may count toward the clustering trigger. One entry
	// does not exceed trigger count 2, so the sandwich risk stays at the
	// detector's (0.4 + (1 - 500_000/10_000_000)) / 2.
	assert.InDelta(t, 0.675, sandwich.RiskScore, 1e-9)
}

func TestTick_FetchFailureFallsBackToCache(t *testing.T) {
	src := &fakeSource{err: errors.New("upstream down")}
	h := newHarness(t, []string{"pool-a", "pool-b"}, src, &fakeEnhancer{})

	// Only pool-a has a cached snapshot; pool-b must be skipped silently.
	require.NoError(t, h.cache.Set(context.Background(), arbSnapshot("pool-a")))

	ran, err := h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	recent := h.ledger.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, "pool-a", recent[0].PoolID)
	assert.Equal(t, domain.KindArbitrage, recent[0].Kind)
}

func TestTick_FreshSnapshotsWrittenBack(t *testing.T) {
	src := &fakeSource{snaps: map[string]domain.MarketSnapshot{"pool-a": quietSnapshot("pool-a")}, block: 42}
	h := newHarness(t, []string{"pool-a"}, src, &fakeEnhancer{})

	_, err := h.engine.Tick(context.Background())
	require.NoError(t, err)

	cached, err := h.cache.Get(context.Background(), "pool-a")
	require.NoError(t, err)
	assert.False(t, cached.Stale)
	assert.Equal(t, "pool-a", cached.PoolID)
}

func TestTick_EnhancementFailurePassesThrough(t *testing.T) {
	src := &fakeSource{snaps: map[string]domain.MarketSnapshot{"pool-a": arbSnapshot("pool-a")}, block: 10}
	h := newHarness(t, []string{"pool-a"}, src, &fakeEnhancer{err: errors.New("model offline")})

	ran, err := h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	recent := h.ledger.Recent(10)
	require.Len(t, recent, 1)
	// Detector output survives unmodified.
	assert.InDelta(t, 0.85, recent[0].Confidence, 1e-9)
}

func TestDispatch_ThresholdAndCounting(t *testing.T) {
	// pool-a fires arbitrage at risk 1.0 (15% deviation), pool-b stays quiet.
	src := &fakeSource{snaps: map[string]domain.MarketSnapshot{
		"pool-a": arbSnapshot("pool-a"),
		"pool-b": quietSnapshot("pool-b"),
	}, block: 10}
	h := newHarness(t, []string{"pool-a", "pool-b"}, src, &fakeEnhancer{})

	_, err := h.engine.Tick(context.Background())
	require.NoError(t, err)

	alerts := h.sink.alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "pool-a", alerts[0].PoolID)
	assert.GreaterOrEqual(t, alerts[0].RiskScore, 0.7)
	assert.Equal(t, int64(1), h.stats.AlertsSent())
	assert.Equal(t, int64(1), h.stats.Detected())
}

func TestDispatch_FailureDoesNotFailCycle(t *testing.T) {
	src := &fakeSource{snaps: map[string]domain.MarketSnapshot{"pool-a": arbSnapshot("pool-a")}, block: 10}
	h := newHarness(t, []string{"pool-a"}, src, &fakeEnhancer{})
	h.sink.err = errors.New("webhook 500")

	ran, err := h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	// The opportunity is recorded even though delivery failed, and the miss
	// is not counted as sent.
	assert.Equal(t, 1, h.ledger.Size())
	assert.Equal(t, int64(0), h.stats.AlertsSent())
}

func TestIngestExternal(t *testing.T) {
	src := &fakeSource{}
	h := newHarness(t, nil, src, &fakeEnhancer{})

	got, err := h.engine.IngestExternal(context.Background(), domain.ExternalAlert{
		PoolID:         "pool-x",
		Kind:           domain.KindSandwich,
		EstimatedValue: 99, // above the sandwich cap
		RiskScore:      0.9,
		BlockNumber:    7,
		TxHash:         "0xabc",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	assert.Equal(t, 5.0, got.EstimatedValue, "value clamped to the per-kind cap")
	assert.Equal(t, 1, h.ledger.Size())

	alerts := h.sink.alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, got.ID, alerts[0].ID)
	assert.Equal(t, int64(1), h.stats.AlertsSent())
}

func TestIngestExternal_RejectsInvalid(t *testing.T) {
	src := &fakeSource{}
	h := newHarness(t, nil, src, &fakeEnhancer{})

	_, err := h.engine.IngestExternal(context.Background(), domain.ExternalAlert{
		PoolID:    "pool-x",
		Kind:      domain.KindArbitrage,
		RiskScore: 1.5,
	})
	require.Error(t, err)
	assert.Equal(t, 0, h.ledger.Size())
}

func TestStatsReport(t *testing.T) {
	src := &fakeSource{snaps: map[string]domain.MarketSnapshot{"pool-a": arbSnapshot("pool-a")}, block: 10}
	h := newHarness(t, []string{"pool-a"}, src, &fakeEnhancer{})

	_, err := h.engine.Tick(context.Background())
	require.NoError(t, err)

	report := h.engine.StatsReport()
	assert.Equal(t, int64(1), report.OpportunitiesDetected)
	assert.Equal(t, int64(1), report.AlertsSent)
	assert.Equal(t, 1, report.ActiveOpportunities)
	assert.Equal(t, 3600.0, report.AnalysisIntervalSec)
	assert.GreaterOrEqual(t, report.UptimeHours, 0.0)
}
