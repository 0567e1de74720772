package detector

import (
	"github.com/mevshield/mevwatch/internal/domain"
)

// Sandwich fires when high price impact coincides with low liquidity — the
// conditions that make front-run/back-run bracketing of a victim trade
// profitable. Both gates must hold simultaneously.
type Sandwich struct {
	params Params
}

// NewSandwich creates the sandwich detector.
func NewSandwich(params Params) *Sandwich {
	return &Sandwich{params: params}
}

// Kind returns the opportunity kind this detector produces.
func (s *Sandwich) Kind() domain.Kind { return domain.KindSandwich }

// Detect evaluates the impact/liquidity gates. The impact boundary is
// strictly exclusive: impact equal to the threshold does not fire.
func (s *Sandwich) Detect(poolID string, snap domain.MarketSnapshot, block uint64) (domain.Opportunity, bool) {
	if snap.PriceImpact <= s.params.ImpactThreshold {
		return domain.Opportunity{}, false
	}
	if snap.Liquidity >= s.params.LiquidityThreshold {
		return domain.Opportunity{}, false
	}

	opp := newOpportunity(poolID, domain.KindSandwich, block)
	opp.EstimatedValue = capValue(snap.Volume24h*0.001*snap.PriceImpact, s.params.SandwichValueCap)
	opp.RiskScore = clampScore((snap.PriceImpact + (1 - snap.Liquidity/s.params.LiquidityNorm)) / 2)
	opp.Confidence = sandwichConfidence
	return opp, true
}
