// Package server assembles the HTTP + websocket API over the aggregated
// market view.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/marketfuse/internal/metrics"
	"github.com/alanyoungcy/marketfuse/internal/server/handler"
	"github.com/alanyoungcy/marketfuse/internal/server/middleware"
	"github.com/alanyoungcy/marketfuse/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Markets *handler.MarketHandler
	Arb     *handler.ArbHandler
	Stats   *handler.StatsHandler
}

// Server is the read-only HTTP + websocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain
// (CORS -> logging -> auth). /api/health and /metrics bypass auth so
// probes and scrapers need no credentials.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/categories", handlers.Markets.ListCategories)
	mux.HandleFunc("GET /api/markets/{category}", handlers.Markets.GetCategory)
	mux.HandleFunc("GET /api/market/{id}/live", handlers.Markets.GetLive)
	mux.HandleFunc("GET /api/arbitrage", handlers.Arb.ListOpportunities)
	mux.HandleFunc("GET /api/cache/stats", handlers.Stats.CacheStats)
	mux.HandleFunc("GET /api/staleness", handlers.Stats.Staleness)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)

	// Unauthenticated surface.
	outer := http.NewServeMux()
	outer.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	outer.Handle("GET /metrics", promhttp.Handler())
	outer.Handle("/", h)

	var root http.Handler = outer
	root = middleware.Logging(logger, m)(root)
	root = corsMiddleware(cfg.CORSOrigins)(root)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight
// requests to complete within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware sets CORS headers for the allowed origins. No configured
// origins means all origins are allowed.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
