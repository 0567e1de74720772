package handler

import (
	"log/slog"
	"net/http"

	"github.com/mevshield/mevwatch/internal/domain"
)

// RecentLedger is the slice of the in-memory ledger the handler needs.
type RecentLedger interface {
	Recent(limit int) []domain.Opportunity
}

// OpportunitiesHandler serves the recent-opportunities endpoint. The live
// ledger answers by default; when a persistent store is configured, clients
// can page through the full history with source=db.
type OpportunitiesHandler struct {
	ledger RecentLedger
	store  domain.OpportunityStore
	logger *slog.Logger
}

// NewOpportunitiesHandler creates an OpportunitiesHandler. store may be nil
// when no database is configured.
func NewOpportunitiesHandler(ledger RecentLedger, store domain.OpportunityStore, logger *slog.Logger) *OpportunitiesHandler {
	return &OpportunitiesHandler{ledger: ledger, store: store, logger: logger}
}

// listOpportunitiesResponse wraps the list endpoint output with metadata.
type listOpportunitiesResponse struct {
	Opportunities []domain.Opportunity `json:"opportunities"`
	Limit         int                  `json:"limit"`
	Offset        int                  `json:"offset"`
	Source        string               `json:"source"`
}

// ListRecent returns opportunities newest-first.
// GET /api/opportunities/recent?limit=50&offset=0&source=db
func (h *OpportunitiesHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	fromStore := h.store != nil && (r.URL.Query().Get("source") == "db" || opts.Offset > 0)
	if fromStore {
		opps, err := h.store.ListRecent(r.Context(), opts)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to list opportunities")
			return
		}
		writeJSON(w, http.StatusOK, listOpportunitiesResponse{
			Opportunities: opps,
			Limit:         opts.Limit,
			Offset:        opts.Offset,
			Source:        "db",
		})
		return
	}

	writeJSON(w, http.StatusOK, listOpportunitiesResponse{
		Opportunities: h.ledger.Recent(opts.Limit),
		Limit:         opts.Limit,
		Offset:        0,
		Source:        "ledger",
	})
}
