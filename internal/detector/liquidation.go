package detector

import (
	"github.com/mevshield/mevwatch/internal/domain"
)

// Liquidation uses recent volatility as a proxy for positions drifting
// toward their liquidation thresholds.
type Liquidation struct {
	params Params
}

// NewLiquidation creates the liquidation detector.
func NewLiquidation(params Params) *Liquidation {
	return &Liquidation{params: params}
}

// Kind returns the opportunity kind this detector produces.
func (l *Liquidation) Kind() domain.Kind { return domain.KindLiquidation }

// Detect fires when volatility exceeds the configured threshold.
func (l *Liquidation) Detect(poolID string, snap domain.MarketSnapshot, block uint64) (domain.Opportunity, bool) {
	if snap.Volatility <= l.params.VolatilityThreshold {
		return domain.Opportunity{}, false
	}

	opp := newOpportunity(poolID, domain.KindLiquidation, block)
	opp.EstimatedValue = capValue(snap.Volatility*2.0, l.params.LiquidationValueCap)
	opp.RiskScore = clampScore(snap.Volatility)
	opp.Confidence = liquidationConfidence
	return opp, true
}
