package detector

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mevshield/mevwatch/internal/domain"
)

func testParams() Params {
	return Params{
		ReferenceRatio:      2000.0,
		MinDeviation:        0.01,
		ArbValueCap:         10.0,
		SandwichValueCap:    5.0,
		LiquidationValueCap: 3.0,
		ImpactThreshold:     0.3,
		LiquidityThreshold:  1_000_000,
		LiquidityNorm:       10_000_000,
		VolatilityThreshold: 0.6,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestArbitrage_ZeroToken1Price(t *testing.T) {
	d := NewArbitrage(testParams())

	_, ok := d.Detect("pool-a", domain.MarketSnapshot{
		Token0Price: 2100,
		Token1Price: 0,
	}, 100)

	assert.False(t, ok, "undefined ratio must be treated as no signal")
}

func TestArbitrage_BoundaryExclusive(t *testing.T) {
	d := NewArbitrage(testParams())

	// ratio 2020/1.0 = 2020 against reference 2000 is a deviation of
	// exactly 0.01 and must not fire.
	_, ok := d.Detect("pool-a", domain.MarketSnapshot{
		Token0Price: 2020,
		Token1Price: 1.0,
		Liquidity:   6_000_000,
	}, 100)
	assert.False(t, ok, "deviation of exactly min_deviation must not fire")

	// Just past the boundary it fires.
	opp, ok := d.Detect("pool-a", domain.MarketSnapshot{
		Token0Price: 2021,
		Token1Price: 1.0,
		Liquidity:   6_000_000,
	}, 100)
	require.True(t, ok)
	assert.Equal(t, domain.KindArbitrage, opp.Kind)
	assert.Equal(t, 0.85, opp.Confidence)
	assert.Equal(t, uint64(100), opp.BlockNumber)
	require.NoError(t, opp.Validate())
}

func TestArbitrage_ValueAndRisk(t *testing.T) {
	d := NewArbitrage(testParams())

	// deviation = |2100/1 - 2000| / 2000 = 0.05
	opp, ok := d.Detect("pool-a", domain.MarketSnapshot{
		Token0Price: 2100,
		Token1Price: 1.0,
		Liquidity:   1000,
	}, 7)
	require.True(t, ok)
	assert.InDelta(t, 1000*0.05*0.1, opp.EstimatedValue, 1e-9)
	assert.InDelta(t, 0.5, opp.RiskScore, 1e-9)
}

func TestArbitrage_CapIsTotal(t *testing.T) {
	d := NewArbitrage(testParams())

	opp, ok := d.Detect("pool-a", domain.MarketSnapshot{
		Token0Price: 1e12,
		Token1Price: 1.0,
		Liquidity:   1e18,
	}, 7)
	require.True(t, ok)
	assert.Equal(t, 10.0, opp.EstimatedValue)
	assert.Equal(t, 1.0, opp.RiskScore)
	require.NoError(t, opp.Validate())
}

func TestSandwich_RequiresBothConditions(t *testing.T) {
	d := NewSandwich(testParams())

	// Both gates hold.
	opp, ok := d.Detect("pool-b", domain.MarketSnapshot{
		PriceImpact: 0.31,
		Liquidity:   999_999,
		Volume24h:   500_000,
	}, 9)
	require.True(t, ok)
	assert.Equal(t, domain.KindSandwich, opp.Kind)
	assert.Equal(t, 0.75, opp.Confidence)

	// Impact boundary is strictly exclusive.
	_, ok = d.Detect("pool-b", domain.MarketSnapshot{
		PriceImpact: 0.3,
		Liquidity:   999_999,
		Volume24h:   500_000,
	}, 9)
	assert.False(t, ok)

	// High impact but deep liquidity does not fire.
	_, ok = d.Detect("pool-b", domain.MarketSnapshot{
		PriceImpact: 0.9,
		Liquidity:   1_000_000,
		Volume24h:   500_000,
	}, 9)
	assert.False(t, ok)
}

func TestSandwich_ValueCapIsTotal(t *testing.T) {
	d := NewSandwich(testParams())

	opp, ok := d.Detect("pool-b", domain.MarketSnapshot{
		PriceImpact: 0.99,
		Liquidity:   1,
		Volume24h:   1e15,
	}, 9)
	require.True(t, ok)
	assert.Equal(t, 5.0, opp.EstimatedValue)
	assert.LessOrEqual(t, opp.RiskScore, 1.0)
	require.NoError(t, opp.Validate())
}

func TestSandwich_RiskFormula(t *testing.T) {
	d := NewSandwich(testParams())

	opp, ok := d.Detect("pool-b", domain.MarketSnapshot{
		PriceImpact: 0.4,
		Liquidity:   500_000,
		Volume24h:   10_000,
	}, 9)
	require.True(t, ok)
	// (0.4 + (1 - 500_000/10_000_000)) / 2 = (0.4 + 0.95) / 2
	assert.InDelta(t, 0.675, opp.RiskScore, 1e-9)
	// 10_000 * 0.001 * 0.4 = 4.0, under the cap so it passes through.
	assert.InDelta(t, 4.0, opp.EstimatedValue, 1e-9)
}

func TestLiquidation_Threshold(t *testing.T) {
	d := NewLiquidation(testParams())

	_, ok := d.Detect("pool-c", domain.MarketSnapshot{Volatility: 0.6}, 3)
	assert.False(t, ok, "volatility at the threshold must not fire")

	opp, ok := d.Detect("pool-c", domain.MarketSnapshot{Volatility: 0.7}, 3)
	require.True(t, ok)
	assert.Equal(t, domain.KindLiquidation, opp.Kind)
	assert.Equal(t, 0.65, opp.Confidence)
	assert.InDelta(t, 1.4, opp.EstimatedValue, 1e-9)
	assert.InDelta(t, 0.7, opp.RiskScore, 1e-9)
}

func TestLiquidation_ValueCapIsTotal(t *testing.T) {
	d := NewLiquidation(testParams())

	// Volatility is a fraction in practice, but capping must hold for any
	// input magnitude.
	opp, ok := d.Detect("pool-c", domain.MarketSnapshot{Volatility: 42}, 3)
	require.True(t, ok)
	assert.Equal(t, 3.0, opp.EstimatedValue)
	assert.Equal(t, 1.0, opp.RiskScore)
}

func TestSet_BoundarySnapshotYieldsNothing(t *testing.T) {
	set := NewSet(testParams(), testLogger())

	// End-to-end boundary case: deviation exactly 0.01, impact and
	// volatility below their gates.
	snaps := map[string]domain.MarketSnapshot{
		"pool-a": {
			Token0Price: 2020,
			Token1Price: 1.0,
			Liquidity:   6_000_000,
			Volume24h:   1_200_000,
			PriceImpact: 0.05,
			Volatility:  0.1,
		},
	}

	opps := set.Run(context.Background(), snaps, 100)
	assert.Empty(t, opps)
}

func TestSet_DeterministicOrdering(t *testing.T) {
	set := NewSet(testParams(), testLogger())

	// pool-x triggers arbitrage + liquidation, pool-a triggers sandwich.
	snaps := map[string]domain.MarketSnapshot{
		"pool-x": {
			Token0Price: 2500,
			Token1Price: 1.0,
			Liquidity:   2_000_000,
			Volatility:  0.8,
		},
		"pool-a": {
			Token0Price: 2000,
			Token1Price: 1.0,
			PriceImpact: 0.5,
			Liquidity:   100_000,
			Volume24h:   1_000_000,
		},
	}

	for range 5 {
		opps := set.Run(context.Background(), snaps, 11)
		require.Len(t, opps, 3)
		assert.Equal(t, "pool-a", opps[0].PoolID)
		assert.Equal(t, domain.KindSandwich, opps[0].Kind)
		assert.Equal(t, "pool-x", opps[1].PoolID)
		assert.Equal(t, domain.KindArbitrage, opps[1].Kind)
		assert.Equal(t, "pool-x", opps[2].PoolID)
		assert.Equal(t, domain.KindLiquidation, opps[2].Kind)
	}
}
