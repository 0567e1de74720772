// Package engine drives the periodic MEV analysis cycle: snapshot fetch
// with cache fallback, pattern detection, correlation enhancement, ledger
// append, and alert dispatch.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mevshield/mevwatch/internal/detector"
	"github.com/mevshield/mevwatch/internal/domain"
	"github.com/mevshield/mevwatch/internal/ledger"
)

// externalConfidence is assigned to opportunities ingested from peer alerts,
// which carry no confidence of their own.
const externalConfidence = 0.8

// Event channels for downstream websocket and stream consumers.
const (
	channelOpportunities = "opportunities"
	streamOpportunities  = "stream:opportunities"
)

// Config holds the engine's cycle parameters. It is assumed to be validated
// at startup.
type Config struct {
	// Pools is the set of pool IDs analyzed every cycle.
	Pools []string
	// Interval is the minimum spacing between cycle starts. Ticks arriving
	// sooner are no-ops.
	Interval time.Duration
	// AlertThreshold is the minimum risk score that triggers dispatch.
	AlertThreshold float64
	// CorrelationWindow is the trailing lookback for enhancement history.
	CorrelationWindow time.Duration
	// FetchTimeout bounds the snapshot fetch per cycle.
	FetchTimeout time.Duration
	// DispatchTimeout bounds each alert delivery.
	DispatchTimeout time.Duration
	// ValueCaps maps each opportunity kind to its estimated-value cap,
	// applied to externally ingested alerts the same way detectors apply
	// it at creation.
	ValueCaps map[domain.Kind]float64
}

// Engine owns the analysis cycle state machine. A cycle is either Idle or
// Running; the running flag plus the lastCycleStart guard enforce at most
// one active cycle and at most one cycle per interval, regardless of how
// eagerly the outer timer ticks.
type Engine struct {
	cfg       Config
	source    domain.SnapshotSource
	cache     domain.SnapshotCache
	detectors *detector.Set
	enhancer  domain.ScoreEnhancer
	ledger    *ledger.Ledger
	sink      domain.AlertSink
	stats     *Stats
	bus       domain.SignalBus
	logger    *slog.Logger

	mu             sync.Mutex
	running        bool
	lastCycleStart time.Time
	lastBlock      uint64
}

// New creates an Engine. sink may be nil when no alert channel is
// configured; qualifying opportunities are then only recorded.
func New(
	cfg Config,
	source domain.SnapshotSource,
	cache domain.SnapshotCache,
	detectors *detector.Set,
	enhancer domain.ScoreEnhancer,
	ldg *ledger.Ledger,
	sink domain.AlertSink,
	stats *Stats,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		source:    source,
		cache:     cache,
		detectors: detectors,
		enhancer:  enhancer,
		ledger:    ldg,
		sink:      sink,
		stats:     stats,
		logger:    logger.With(slog.String("component", "engine")),
	}
}

// Run drives the cycle on a fixed ticker until ctx is cancelled. Cycle
// failures are reported and the next tick proceeds unaffected. Run returns
// only after any in-flight cycle has completed, so shutdown never leaves a
// cycle half-applied without the caller knowing.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started",
		slog.Duration("interval", e.cfg.Interval),
		slog.Int("pools", len(e.cfg.Pools)),
		slog.Float64("alert_threshold", e.cfg.AlertThreshold),
	)
	defer e.logger.Info("engine stopped")

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	// First cycle runs immediately; the interval guard spaces the rest.
	if _, err := e.Tick(ctx); err != nil {
		e.logger.Error("cycle failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.Tick(ctx); err != nil {
				e.logger.Error("cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick attempts to run one analysis cycle. It returns false without error
// when the engine stays Idle: either a cycle is already in flight or the
// previous cycle started less than one interval ago. This guard is the
// authoritative at-most-once-per-interval gate; the outer timer's accuracy
// is not relied upon.
func (e *Engine) Tick(ctx context.Context) (bool, error) {
	e.mu.Lock()
	now := time.Now()
	if e.running || now.Sub(e.lastCycleStart) < e.cfg.Interval {
		e.mu.Unlock()
		return false, nil
	}
	e.running = true
	e.mu.Unlock()

	err := e.runCycle(ctx, now)

	e.mu.Lock()
	e.running = false
	if err == nil {
		// A failed cycle is abandoned without advancing the guard, so the
		// next tick may retry immediately.
		e.lastCycleStart = now
	}
	e.mu.Unlock()

	return err == nil, err
}

// runCycle executes one full pass: fetch → detect → enhance → append →
// dispatch. Any error returned here abandons the cycle; whatever was
// appended before the failure point stands.
func (e *Engine) runCycle(ctx context.Context, start time.Time) error {
	snaps, block, err := e.fetchSnapshots(ctx)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		e.logger.Debug("no snapshots available, skipping cycle")
		return nil
	}

	opps := e.detectors.Run(ctx, snaps, block)
	if len(opps) == 0 {
		return nil
	}

	// The whole batch is enhanced before anything is appended, so every
	// correlation lookup sees ledger content from prior cycles only.
	accepted := make([]domain.Opportunity, 0, len(opps))
	for _, opp := range opps {
		accepted = append(accepted, e.enhance(ctx, opp))
	}
	for _, opp := range accepted {
		if err := e.ledger.Append(ctx, opp); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
	}
	e.stats.AddDetected(len(accepted))
	e.publishOpportunities(ctx, accepted)

	e.dispatch(ctx, accepted)

	e.logger.Info("cycle completed",
		slog.Int("pools", len(snaps)),
		slog.Int("opportunities", len(accepted)),
		slog.Uint64("block", block),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// fetchSnapshots gets fresh snapshots for the configured pools, falling
// back to the cache per pool when the fresh fetch fails or leaves a pool
// out. Pools with neither fresh nor cached data are skipped for the cycle.
// Fresh snapshots are written back to the cache for future fallback.
func (e *Engine) fetchSnapshots(ctx context.Context) (map[string]domain.MarketSnapshot, uint64, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	fresh, block, err := e.source.Fetch(fetchCtx, e.cfg.Pools)
	if err != nil {
		e.logger.Warn("snapshot fetch failed, falling back to cache",
			slog.String("error", errors.Join(domain.ErrDataSource, err).Error()),
		)
		fresh = nil
	}

	e.mu.Lock()
	if block > e.lastBlock {
		e.lastBlock = block
	}
	block = e.lastBlock
	e.mu.Unlock()

	snaps := make(map[string]domain.MarketSnapshot, len(e.cfg.Pools))
	for _, poolID := range e.cfg.Pools {
		if snap, ok := fresh[poolID]; ok {
			snaps[poolID] = snap
			if cacheErr := e.cache.Set(ctx, snap); cacheErr != nil {
				e.logger.Warn("snapshot cache write failed",
					slog.String("pool", poolID),
					slog.String("error", cacheErr.Error()),
				)
			}
			continue
		}

		cached, cacheErr := e.cache.Get(ctx, poolID)
		if cacheErr != nil {
			if !errors.Is(cacheErr, domain.ErrNotFound) {
				e.logger.Warn("snapshot cache read failed",
					slog.String("pool", poolID),
					slog.String("error", cacheErr.Error()),
				)
			}
			// No fresh and no cached data: skip the pool this cycle.
			continue
		}
		cached.Stale = true
		snaps[poolID] = cached
	}

	return snaps, block, nil
}

// enhance runs the score enhancer over one candidate. Enhancement failures
// are recoverable: the unmodified detector output passes through.
func (e *Engine) enhance(ctx context.Context, opp domain.Opportunity) domain.Opportunity {
	since := opp.DetectedAt.Add(-e.cfg.CorrelationWindow)
	history := e.ledger.History(opp.PoolID, since)

	enhanced, err := e.enhancer.Enhance(ctx, opp, history)
	if err != nil {
		e.logger.Warn("enhancement failed, passing through detector output",
			slog.String("opportunity", opp.ID),
			slog.String("error", errors.Join(domain.ErrEnhancement, err).Error()),
		)
		return opp
	}
	return enhanced
}

// SetEventBus attaches a signal bus; every accepted opportunity is then
// published for websocket and stream consumers. Publishing is best effort
// and never fails a cycle.
func (e *Engine) SetEventBus(bus domain.SignalBus) {
	e.bus = bus
}

func (e *Engine) publishOpportunities(ctx context.Context, opps []domain.Opportunity) {
	if e.bus == nil {
		return
	}
	for _, opp := range opps {
		payload, err := json.Marshal(opp)
		if err != nil {
			continue
		}
		if err := e.bus.Publish(ctx, channelOpportunities, payload); err != nil {
			e.logger.Warn("opportunity publish failed",
				slog.String("opportunity", opp.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := e.bus.StreamAppend(ctx, streamOpportunities, payload); err != nil {
			e.logger.Warn("opportunity stream append failed",
				slog.String("opportunity", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// dispatch forwards qualifying opportunities to the alert sink. Dispatch
// failures are logged and counted as misses, never retried within the
// cycle, and never fail the cycle itself.
func (e *Engine) dispatch(ctx context.Context, opps []domain.Opportunity) {
	if e.sink == nil {
		return
	}
	for _, opp := range opps {
		if opp.RiskScore < e.cfg.AlertThreshold {
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, e.cfg.DispatchTimeout)
		err := e.sink.SendAlert(sendCtx, opp)
		cancel()
		if err != nil {
			e.logger.Error("alert dispatch failed",
				slog.String("opportunity", opp.ID),
				slog.String("pool", opp.PoolID),
				slog.String("error", errors.Join(domain.ErrDispatch, err).Error()),
			)
			continue
		}
		e.stats.AddAlertSent()
	}
}

// IngestExternal synthesizes an opportunity from a peer alert and runs it
// through the same enhancement, ledger, and dispatch path as internally
// detected ones. External alerts carry the default external confidence.
func (e *Engine) IngestExternal(ctx context.Context, alert domain.ExternalAlert) (domain.Opportunity, error) {
	opp := domain.Opportunity{
		ID:             uuid.NewString(),
		PoolID:         alert.PoolID,
		Kind:           alert.Kind,
		EstimatedValue: alert.EstimatedValue,
		RiskScore:      alert.RiskScore,
		Confidence:     externalConfidence,
		DetectedAt:     time.Now().UTC(),
		BlockNumber:    alert.BlockNumber,
		TxHash:         alert.TxHash,
	}
	if capVal, ok := e.cfg.ValueCaps[opp.Kind]; ok && opp.EstimatedValue > capVal {
		opp.EstimatedValue = capVal
	}
	if err := opp.Validate(); err != nil {
		return domain.Opportunity{}, fmt.Errorf("engine: reject external alert: %w", err)
	}

	enhanced := e.enhance(ctx, opp)
	if err := e.ledger.Append(ctx, enhanced); err != nil {
		return domain.Opportunity{}, fmt.Errorf("engine: %w", err)
	}
	e.stats.AddDetected(1)
	e.publishOpportunities(ctx, []domain.Opportunity{enhanced})

	e.dispatch(ctx, []domain.Opportunity{enhanced})
	return enhanced, nil
}

// StatsReport assembles the statistics-query response from the process-wide
// counters and the current ledger size.
func (e *Engine) StatsReport() domain.StatsReport {
	return domain.StatsReport{
		OpportunitiesDetected: e.stats.Detected(),
		AlertsSent:            e.stats.AlertsSent(),
		UptimeHours:           e.stats.UptimeHours(),
		ActiveOpportunities:   e.ledger.Size(),
		AnalysisIntervalSec:   e.cfg.Interval.Seconds(),
	}
}
