package detector

import (
	"math"

	"github.com/mevshield/mevwatch/internal/domain"
)

// Arbitrage fires when the pool's token0/token1 price ratio deviates from
// the configured reference ratio by strictly more than the minimum
// deviation. Estimated value scales with pool liquidity and the size of the
// deviation.
type Arbitrage struct {
	params Params
}

// NewArbitrage creates the arbitrage detector.
func NewArbitrage(params Params) *Arbitrage {
	return &Arbitrage{params: params}
}

// Kind returns the opportunity kind this detector produces.
func (a *Arbitrage) Kind() domain.Kind { return domain.KindArbitrage }

// Detect evaluates the price-ratio deviation. A zero token1 price means the
// ratio is undefined and is treated as no signal.
func (a *Arbitrage) Detect(poolID string, snap domain.MarketSnapshot, block uint64) (domain.Opportunity, bool) {
	if snap.Token1Price == 0 {
		return domain.Opportunity{}, false
	}

	ratio := snap.Token0Price / snap.Token1Price
	deviation := math.Abs(ratio-a.params.ReferenceRatio) / a.params.ReferenceRatio

	// Strictly exclusive boundary: a deviation of exactly MinDeviation
	// does not fire.
	if deviation <= a.params.MinDeviation {
		return domain.Opportunity{}, false
	}

	opp := newOpportunity(poolID, domain.KindArbitrage, block)
	opp.EstimatedValue = capValue(snap.Liquidity*deviation*0.1, a.params.ArbValueCap)
	opp.RiskScore = clampScore(deviation * 10)
	opp.Confidence = arbitrageConfidence
	return opp, true
}
