package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketfuse/internal/service"
)

// StatsHandler serves cache statistics and platform staleness.
type StatsHandler struct {
	svc    *service.MarketService
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(svc *service.MarketService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{svc: svc, logger: logHandler(logger, "stats")}
}

// CacheStats returns hit/miss counters, sizes per scope, and top keys.
// GET /api/cache/stats
func (h *StatsHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.CacheStats())
}

// Staleness reports per-platform health records and the view age.
// GET /api/staleness
func (h *StatsHandler) Staleness(w http.ResponseWriter, r *http.Request) {
	records, viewAge := h.svc.Staleness()

	resp := map[string]any{
		"platforms": records,
	}
	if viewAge >= 0 {
		resp["view_age_ms"] = viewAge.Milliseconds()
	} else {
		resp["view_age_ms"] = nil
	}
	writeJSON(w, http.StatusOK, resp)
}
