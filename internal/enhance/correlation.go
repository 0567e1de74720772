// Package enhance implements the score-enhancement stage. The default
// in-process implementation applies correlation rules over same-pool ledger
// history; a remote reasoning service can be substituted through the same
// domain.ScoreEnhancer interface.
package enhance

import (
	"context"
	"log/slog"

	"github.com/mevshield/mevwatch/internal/domain"
)

// Rule constants for the in-process correlation model.
const (
	// Rule 1: a low-risk arbitrage with meaningful value is a pattern the
	// detectors repeatedly confirm, so confidence gets a small bump.
	arbValueFloor  = 2.0
	arbRiskCeil    = 0.5
	confidenceBump = 0.1

	// Rule 2: clustering of opportunities on one pool inside the window
	// raises risk.
	riskBump = 0.2
)

// Correlation applies the default correlation rules. It is stateless; the
// caller supplies the same-pool history for the trailing window, exclusive
// of the candidate itself.
type Correlation struct {
	triggerCount int
	logger       *slog.Logger
}

// NewCorrelation creates the in-process enhancer. triggerCount is the
// same-pool entry count that must be exceeded before the clustering risk
// bump applies.
func NewCorrelation(triggerCount int, logger *slog.Logger) *Correlation {
	return &Correlation{
		triggerCount: triggerCount,
		logger:       logger.With(slog.String("component", "correlation")),
	}
}

// Enhance applies rule 1 then rule 2. The rules are independent and
// additive; both may apply to the same candidate. The returned opportunity
// keeps every other field untouched.
func (c *Correlation) Enhance(ctx context.Context, opp domain.Opportunity, history []domain.Opportunity) (domain.Opportunity, error) {
	_ = ctx

	// Rule 1: confirmed arbitrage pattern.
	if opp.Kind == domain.KindArbitrage && opp.EstimatedValue > arbValueFloor && opp.RiskScore < arbRiskCeil {
		opp.Confidence = clamp(opp.Confidence + confidenceBump)
	}

	// Rule 2: same-pool clustering inside the window.
	if len(history) > c.triggerCount {
		opp.RiskScore = clamp(opp.RiskScore + riskBump)
		c.logger.Debug("clustering risk bump applied",
			slog.String("pool", opp.PoolID),
			slog.Int("window_entries", len(history)),
			slog.Float64("risk_score", opp.RiskScore),
		)
	}

	return opp, nil
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

// Compile-time interface check.
var _ domain.ScoreEnhancer = (*Correlation)(nil)
