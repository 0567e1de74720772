package handler

import (
	"log/slog"
	"net/http"

	"github.com/mevshield/mevwatch/internal/domain"
)

// StatsProvider is the slice of the engine the stats handler needs.
type StatsProvider interface {
	StatsReport() domain.StatsReport
}

// StatsHandler serves the analyzer statistics endpoint.
type StatsHandler struct {
	stats  StatsProvider
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(stats StatsProvider, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logger}
}

// GetStats returns the process-wide analyzer counters.
// GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.StatsReport())
}
