package domain

import "time"

// HealthStatus is the tri-state platform health classification.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
)

// PlatformHealthRecord is the monitor's view of one platform.
type PlatformHealthRecord struct {
	Platform             Platform     `json:"platform"`
	Status               HealthStatus `json:"status"`
	LastSuccessAt        time.Time    `json:"last_success_at"`
	ConsecutiveFailures  int          `json:"consecutive_failures"`
	IsStale              bool         `json:"is_stale"`
	TimeSinceLastFetchMs int64        `json:"time_since_last_fetch_ms"`
}
