package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketfuse/internal/domain"
	"github.com/alanyoungcy/marketfuse/internal/health"
)

// HealthHandler serves the service health endpoint.
type HealthHandler struct {
	monitor *health.Monitor
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(monitor *health.Monitor, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{monitor: monitor, logger: logHandler(logger, "health")}
}

// HealthCheck reports overall service health: healthy when every platform
// is healthy, offline only when all platforms are offline, degraded
// otherwise. The endpoint itself always answers 200 as long as the process
// serves requests.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	records := h.monitor.Records()

	overall := domain.HealthHealthy
	offline := 0
	for _, rec := range records {
		switch rec.Status {
		case domain.HealthOffline:
			offline++
			overall = domain.HealthDegraded
		case domain.HealthDegraded:
			overall = domain.HealthDegraded
		}
	}
	if len(records) > 0 && offline == len(records) {
		overall = domain.HealthOffline
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    overall,
		"platforms": records,
	})
}
