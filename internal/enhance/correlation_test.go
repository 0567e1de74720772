package enhance

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mevshield/mevwatch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func candidate(kind domain.Kind, value, risk, conf float64) domain.Opportunity {
	return domain.Opportunity{
		ID:             "cand",
		PoolID:         "pool-a",
		Kind:           kind,
		EstimatedValue: value,
		RiskScore:      risk,
		Confidence:     conf,
		DetectedAt:     time.Now().UTC(),
	}
}

func priors(n int) []domain.Opportunity {
	out := make([]domain.Opportunity, n)
	for i := range out {
		out[i] = candidate(domain.KindSandwich, 1, 0.4, 0.75)
	}
	return out
}

func TestEnhance_Rule1_ConfidenceBump(t *testing.T) {
	c := NewCorrelation(2, testLogger())

	got, err := c.Enhance(context.Background(), candidate(domain.KindArbitrage, 3.0, 0.4, 0.85), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)
	assert.InDelta(t, 0.4, got.RiskScore, 1e-9, "rule 1 must not touch risk")
}

func TestEnhance_Rule1_NotForHighRisk(t *testing.T) {
	c := NewCorrelation(2, testLogger())

	got, err := c.Enhance(context.Background(), candidate(domain.KindArbitrage, 3.0, 0.5, 0.85), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, got.Confidence, 1e-9)
}

func TestEnhance_Rule1_ConfidenceClamped(t *testing.T) {
	c := NewCorrelation(2, testLogger())

	got, err := c.Enhance(context.Background(), candidate(domain.KindArbitrage, 3.0, 0.1, 0.95), nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestEnhance_Rule2_RiskBump(t *testing.T) {
	c := NewCorrelation(2, testLogger())

	// Exactly at the trigger count: no bump.
	got, err := c.Enhance(context.Background(), candidate(domain.KindSandwich, 1, 0.5, 0.75), priors(2))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.RiskScore, 1e-9)

	// Strictly above: +0.2.
	got, err = c.Enhance(context.Background(), candidate(domain.KindSandwich, 1, 0.5, 0.75), priors(3))
	require.NoError(t, err)
	assert.InDelta(t, 0.7, got.RiskScore, 1e-9)
}

func TestEnhance_Rule2_RiskClamped(t *testing.T) {
	c := NewCorrelation(2, testLogger())

	got, err := c.Enhance(context.Background(), candidate(domain.KindLiquidation, 1, 0.95, 0.65), priors(5))
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.RiskScore)
}

func TestEnhance_BothRulesApply(t *testing.T) {
	c := NewCorrelation(2, testLogger())

	got, err := c.Enhance(context.Background(), candidate(domain.KindArbitrage, 2.5, 0.3, 0.85), priors(3))
	require.NoError(t, err)
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)
	assert.InDelta(t, 0.5, got.RiskScore, 1e-9)
}

func TestEnhance_OtherFieldsUntouched(t *testing.T) {
	c := NewCorrelation(2, testLogger())

	in := candidate(domain.KindArbitrage, 2.5, 0.3, 0.85)
	got, err := c.Enhance(context.Background(), in, priors(3))
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, in.PoolID, got.PoolID)
	assert.Equal(t, in.Kind, got.Kind)
	assert.Equal(t, in.EstimatedValue, got.EstimatedValue)
	assert.Equal(t, in.DetectedAt, got.DetectedAt)
}
