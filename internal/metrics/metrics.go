// Package metrics registers the Prometheus instrumentation for the
// aggregation pipeline and read API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the aggregator.
type Metrics struct {
	FetchesTotal     *prometheus.CounterVec
	FetchDurationSec *prometheus.HistogramVec
	ListingsFetched  *prometheus.GaugeVec
	ListingsRejected *prometheus.CounterVec

	MatchCandidates  prometheus.Gauge
	UnifiedMarkets   prometheus.Gauge
	OversizedCluster prometheus.Counter

	ArbOpportunities prometheus.Gauge
	ArbDetectedTotal prometheus.Counter

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	PlatformHealth *prometheus.GaugeVec

	CycleDurationSec prometheus.Histogram

	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPDurationSec    *prometheus.HistogramVec
	WSClientsConnected prometheus.Gauge
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics on the given registerer. Tests pass a fresh
// registry so repeated construction never collides.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketfuse_fetches_total",
			Help: "Provider fetch attempts by platform and outcome",
		}, []string{"platform", "outcome"}),

		FetchDurationSec: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketfuse_fetch_duration_seconds",
			Help:    "Provider fetch latency by platform",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"platform"}),

		ListingsFetched: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketfuse_listings_fetched",
			Help: "Listings returned by the most recent fetch per platform",
		}, []string{"platform"}),

		ListingsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketfuse_listings_rejected_total",
			Help: "Listings dropped during normalization by platform",
		}, []string{"platform"}),

		MatchCandidates: factory.NewGauge(prometheus.GaugeOpts{
			Name: "marketfuse_match_candidates",
			Help: "Cross-platform match candidates in the latest cycle",
		}),

		UnifiedMarkets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "marketfuse_unified_markets",
			Help: "Unified markets produced by the latest cycle",
		}),

		OversizedCluster: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketfuse_oversized_clusters_total",
			Help: "Unified markets flagged for exceeding the cluster size cap",
		}),

		ArbOpportunities: factory.NewGauge(prometheus.GaugeOpts{
			Name: "marketfuse_arbitrage_opportunities",
			Help: "Open arbitrage opportunities in the latest cycle",
		}),

		ArbDetectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketfuse_arbitrage_detected_total",
			Help: "Arbitrage opportunities detected since start",
		}),

		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketfuse_cache_hits_total",
			Help: "Cache hits across all scopes",
		}),

		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketfuse_cache_misses_total",
			Help: "Cache misses across all scopes",
		}),

		PlatformHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketfuse_platform_health",
			Help: "Platform health state: 0 healthy, 1 degraded, 2 offline",
		}, []string{"platform"}),

		CycleDurationSec: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketfuse_cycle_duration_seconds",
			Help:    "End-to-end aggregation cycle duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketfuse_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "status"}),

		HTTPDurationSec: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketfuse_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"route"}),

		WSClientsConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "marketfuse_ws_clients_connected",
			Help: "Connected websocket clients",
		}),
	}
}

// RecordFetch records one provider fetch attempt.
func (m *Metrics) RecordFetch(platform string, ok bool, seconds float64) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.FetchesTotal.WithLabelValues(platform, outcome).Inc()
	m.FetchDurationSec.WithLabelValues(platform).Observe(seconds)
}

// RecordHealth maps a tri-state health status onto the platform gauge.
func (m *Metrics) RecordHealth(platform string, status string) {
	var v float64
	switch status {
	case "degraded":
		v = 1
	case "offline":
		v = 2
	}
	m.PlatformHealth.WithLabelValues(platform).Set(v)
}
