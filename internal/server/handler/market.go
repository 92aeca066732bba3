package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketfuse/internal/domain"
	"github.com/alanyoungcy/marketfuse/internal/service"
)

// MarketHandler serves the unified-market read endpoints.
type MarketHandler struct {
	svc    *service.MarketService
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(svc *service.MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{svc: svc, logger: logHandler(logger, "market")}
}

// ListCategories returns the categories currently served.
// GET /api/categories
func (h *MarketHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.Categories(r.Context())
	if err != nil {
		h.logger.Error("list categories failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

// GetCategory returns the unified markets of one category. The reserved
// category name "trending" returns the cross-category trending list.
// GET /api/markets/{category}
func (h *MarketHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	if category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}

	var (
		view domain.CategoryView
		err  error
	)
	if category == "trending" {
		view, err = h.svc.Trending(r.Context())
	} else {
		view, err = h.svc.MarketsByCategory(r.Context(), category)
	}
	if err != nil {
		h.writeServiceError(w, err, "category "+category)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetLive returns one unified market with its staleness flag.
// GET /api/market/{id}/live
func (h *MarketHandler) GetLive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "market id is required")
		return
	}

	um, stale, err := h.svc.LiveMarket(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "market "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market": um,
		"stale":  stale,
	})
}

func (h *MarketHandler) writeServiceError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, domain.ErrNoSnapshot):
		writeError(w, http.StatusServiceUnavailable, "no data available yet for "+what)
	default:
		h.logger.Error("read failed", slog.String("what", what), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to read "+what)
	}
}
