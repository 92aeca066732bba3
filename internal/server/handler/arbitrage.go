package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketfuse/internal/domain"
	"github.com/alanyoungcy/marketfuse/internal/service"
)

// ArbHandler serves the arbitrage read endpoint.
type ArbHandler struct {
	svc    *service.MarketService
	logger *slog.Logger
}

// NewArbHandler creates an ArbHandler.
func NewArbHandler(svc *service.MarketService, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{svc: svc, logger: logHandler(logger, "arbitrage")}
}

// ListOpportunities returns the open opportunities of the current view,
// sorted by descending profit.
// GET /api/arbitrage
func (h *ArbHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	opps, generatedAt, err := h.svc.Opportunities(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNoSnapshot) {
			writeError(w, http.StatusServiceUnavailable, "no data available yet")
			return
		}
		h.logger.Error("list opportunities failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": opps,
		"count":         len(opps),
		"generated_at":  generatedAt,
	})
}
