package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mevshield/mevwatch/internal/domain"
)

// AlertIngester is the slice of the engine the alerts handler needs.
type AlertIngester interface {
	IngestExternal(ctx context.Context, alert domain.ExternalAlert) (domain.Opportunity, error)
}

// AlertsHandler serves the peer alert-ingestion endpoint.
type AlertsHandler struct {
	ingester AlertIngester
	logger   *slog.Logger
}

// NewAlertsHandler creates an AlertsHandler.
func NewAlertsHandler(ingester AlertIngester, logger *slog.Logger) *AlertsHandler {
	return &AlertsHandler{ingester: ingester, logger: logger}
}

// IngestAlert accepts an external alert from a peer analyzer and runs it
// through the standard enhancement and dispatch path.
// POST /api/alerts
func (h *AlertsHandler) IngestAlert(w http.ResponseWriter, r *http.Request) {
	var alert domain.ExternalAlert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert payload")
		return
	}
	if alert.PoolID == "" {
		writeError(w, http.StatusBadRequest, "missing pool_id")
		return
	}

	opp, err := h.ingester.IngestExternal(r.Context(), alert)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOpportunity) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: ingest alert failed",
			slog.String("pool", alert.PoolID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to ingest alert")
		return
	}

	writeJSON(w, http.StatusAccepted, opp)
}
