package domain

import (
	"fmt"
	"time"
)

// Kind classifies a detected MEV opportunity.
type Kind string

const (
	KindArbitrage   Kind = "arbitrage"
	KindSandwich    Kind = "sandwich"
	KindLiquidation Kind = "liquidation"
)

// Valid reports whether k is one of the known opportunity kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindArbitrage, KindSandwich, KindLiquidation:
		return true
	}
	return false
}

// Opportunity represents a detected MEV opportunity for a single pool.
// It is created by a detector (or synthesized from an external alert),
// adjusted by the score enhancer, and immutable once appended to the ledger.
type Opportunity struct {
	ID             string    `json:"id"`
	PoolID         string    `json:"pool_id"`
	Kind           Kind      `json:"kind"`
	EstimatedValue float64   `json:"estimated_value"`
	RiskScore      float64   `json:"risk_score"`
	Confidence     float64   `json:"confidence"`
	DetectedAt     time.Time `json:"detected_at"`
	BlockNumber    uint64    `json:"block_number"`
	TxHash         string    `json:"tx_hash,omitempty"`
}

// Validate checks the opportunity invariants: scores bounded to [0, 1],
// a non-negative estimated value, a known kind, and a non-empty pool.
func (o Opportunity) Validate() error {
	if o.PoolID == "" {
		return fmt.Errorf("%w %s: empty pool id", ErrInvalidOpportunity, o.ID)
	}
	if !o.Kind.Valid() {
		return fmt.Errorf("%w %s: unknown kind %q", ErrInvalidOpportunity, o.ID, o.Kind)
	}
	if o.RiskScore < 0 || o.RiskScore > 1 {
		return fmt.Errorf("%w %s: risk score %f out of [0,1]", ErrInvalidOpportunity, o.ID, o.RiskScore)
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("%w %s: confidence %f out of [0,1]", ErrInvalidOpportunity, o.ID, o.Confidence)
	}
	if o.EstimatedValue < 0 {
		return fmt.Errorf("%w %s: negative estimated value %f", ErrInvalidOpportunity, o.ID, o.EstimatedValue)
	}
	return nil
}

// ExternalAlert is the inbound shape for opportunities reported by peer
// analyzers. Confidence is not carried on the wire; ingestion assigns the
// default external confidence.
type ExternalAlert struct {
	PoolID         string  `json:"pool_id"`
	Kind           Kind    `json:"kind"`
	EstimatedValue float64 `json:"estimated_value"`
	RiskScore      float64 `json:"risk_score"`
	BlockNumber    uint64  `json:"block_number"`
	TxHash         string  `json:"tx_hash,omitempty"`
}

// StatsReport is the response shape for the statistics query.
type StatsReport struct {
	OpportunitiesDetected int64   `json:"opportunities_detected"`
	AlertsSent            int64   `json:"alerts_sent"`
	UptimeHours           float64 `json:"uptime_hours"`
	ActiveOpportunities   int     `json:"active_opportunities"`
	AnalysisIntervalSec   float64 `json:"analysis_interval_seconds"`
}
