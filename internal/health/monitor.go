// Package health tracks per-platform fetch health as a tri-state machine:
// healthy, degraded, offline.
package health

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

// Config holds the state-transition thresholds.
type Config struct {
	// StalenessThreshold is how long after the last successful fetch a
	// platform's data counts as stale.
	StalenessThreshold time.Duration
	// OfflineFailures is the consecutive-failure count that sends a
	// platform to offline.
	OfflineFailures int
	// OfflineOutage sends a platform to offline when no fetch has
	// succeeded for this long, regardless of failure count.
	OfflineOutage time.Duration

	// Now is the clock, injectable for tests.
	Now func() time.Time
}

type platformState struct {
	lastSuccessAt       time.Time
	lastAttemptAt       time.Time
	consecutiveFailures int
	everSucceeded       bool
}

// Monitor is the per-platform health tracker. Adapters report every fetch
// outcome through RecordSuccess/RecordFailure; readers consult Status.
type Monitor struct {
	cfg    Config
	mu     sync.Mutex
	states map[domain.Platform]*platformState
	logger *slog.Logger
}

// New creates a Monitor tracking the given platforms.
func New(cfg Config, platforms []domain.Platform, logger *slog.Logger) *Monitor {
	if cfg.StalenessThreshold == 0 {
		cfg.StalenessThreshold = 60 * time.Second
	}
	if cfg.OfflineFailures == 0 {
		cfg.OfflineFailures = 5
	}
	if cfg.OfflineOutage == 0 {
		cfg.OfflineOutage = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Monitor{
		cfg:    cfg,
		states: make(map[domain.Platform]*platformState, len(platforms)),
		logger: logger.With(slog.String("component", "health")),
	}
	for _, p := range platforms {
		m.states[p] = &platformState{}
	}
	return m
}

// RecordSuccess registers a successful fetch. Recovery is instant: a single
// success returns the platform to healthy no matter how it got offline.
func (m *Monitor) RecordSuccess(platform domain.Platform) {
	now := m.cfg.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(platform)
	wasOffline := m.statusLocked(platform, now) == domain.HealthOffline
	st.lastSuccessAt = now
	st.lastAttemptAt = now
	st.consecutiveFailures = 0
	st.everSucceeded = true

	if wasOffline {
		m.logger.Info("platform recovered",
			slog.String("platform", string(platform)))
	}
}

// RecordFailure registers a failed fetch attempt.
func (m *Monitor) RecordFailure(platform domain.Platform, err error) {
	now := m.cfg.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(platform)
	st.lastAttemptAt = now
	st.consecutiveFailures++

	if st.consecutiveFailures == m.cfg.OfflineFailures {
		m.logger.Warn("platform offline",
			slog.String("platform", string(platform)),
			slog.Int("consecutive_failures", st.consecutiveFailures),
			slog.Any("error", err))
	} else {
		m.logger.Debug("platform fetch failed",
			slog.String("platform", string(platform)),
			slog.Int("consecutive_failures", st.consecutiveFailures),
			slog.Any("error", err))
	}
}

// Status returns the platform's current health state.
func (m *Monitor) Status(platform domain.Platform) domain.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked(platform, m.cfg.Now())
}

// Eligible reports whether the platform's data may participate in
// cross-platform pricing. Offline platforms are excluded; degraded ones
// still participate but their records carry a staleness mark.
func (m *Monitor) Eligible(platform domain.Platform) bool {
	return m.Status(platform) != domain.HealthOffline
}

// Record returns the full health record for one platform.
func (m *Monitor) Record(platform domain.Platform) domain.PlatformHealthRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordLocked(platform, m.cfg.Now())
}

// Records returns health records for all tracked platforms, ordered by
// platform name.
func (m *Monitor) Records() []domain.PlatformHealthRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.Now()
	out := make([]domain.PlatformHealthRecord, 0, len(m.states))
	for p := range m.states {
		out = append(out, m.recordLocked(p, now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}

func (m *Monitor) state(platform domain.Platform) *platformState {
	st, ok := m.states[platform]
	if !ok {
		st = &platformState{}
		m.states[platform] = st
	}
	return st
}

// statusLocked derives the tri-state from the raw counters. Offline wins
// over degraded; a platform that has never succeeded but also never hit
// the failure threshold stays degraded rather than offline.
func (m *Monitor) statusLocked(platform domain.Platform, now time.Time) domain.HealthStatus {
	st := m.state(platform)

	if st.consecutiveFailures >= m.cfg.OfflineFailures {
		return domain.HealthOffline
	}
	if st.everSucceeded && now.Sub(st.lastSuccessAt) >= m.cfg.OfflineOutage {
		return domain.HealthOffline
	}
	if !st.everSucceeded {
		return domain.HealthDegraded
	}
	if now.Sub(st.lastSuccessAt) >= m.cfg.StalenessThreshold || st.consecutiveFailures > 0 {
		return domain.HealthDegraded
	}
	return domain.HealthHealthy
}

func (m *Monitor) recordLocked(platform domain.Platform, now time.Time) domain.PlatformHealthRecord {
	st := m.state(platform)
	rec := domain.PlatformHealthRecord{
		Platform:            platform,
		Status:              m.statusLocked(platform, now),
		ConsecutiveFailures: st.consecutiveFailures,
	}
	if st.everSucceeded {
		rec.LastSuccessAt = st.lastSuccessAt
		rec.IsStale = now.Sub(st.lastSuccessAt) >= m.cfg.StalenessThreshold
		rec.TimeSinceLastFetchMs = now.Sub(st.lastSuccessAt).Milliseconds()
	} else {
		rec.IsStale = true
		rec.TimeSinceLastFetchMs = -1
	}
	return rec
}
