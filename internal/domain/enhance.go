package domain

import "context"

// ScoreEnhancer adjusts the risk score and confidence of a freshly detected
// opportunity using the ledger history for the same pool. Implementations
// must not mutate history entries. The default implementation applies
// in-process correlation rules; a remote reasoning service can be swapped in
// without touching the engine.
type ScoreEnhancer interface {
	Enhance(ctx context.Context, opp Opportunity, history []Opportunity) (Opportunity, error)
}

// AlertSink receives opportunities whose risk score crosses the alert
// threshold. Dispatch failures are recoverable: they are logged and counted
// but never interrupt the analysis cycle.
type AlertSink interface {
	SendAlert(ctx context.Context, opp Opportunity) error
}
