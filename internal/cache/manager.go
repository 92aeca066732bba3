// Package cache provides the in-process, scope-keyed cache with
// access-frequency-adaptive TTLs that serves all consumer reads.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/marketfuse/internal/metrics"
)

// Scope key prefixes. A key is either "trending", "category:<name>", or
// "market:<id>".
const (
	KeyTrending    = "trending"
	CategoryPrefix = "category:"
	MarketPrefix   = "market:"
)

// Config holds per-scope base TTLs and the hot-key extension policy.
type Config struct {
	CategoryTTL time.Duration
	TrendingTTL time.Duration
	MarketTTL   time.Duration

	// HotReadThreshold is the read count within one TTL window after which
	// the next refill gets an extended TTL.
	HotReadThreshold int
	// TTLMultiplier scales the base TTL for hot keys.
	TTLMultiplier float64

	// Now is the clock, injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// entry is one cached payload with its access-tracking window. The window
// state is an explicit {count, windowStart} pair so the TTL-extension rule
// is a pure function of (accessCount, windowElapsed).
type entry struct {
	mu           sync.Mutex
	payload      any
	insertedAt   time.Time
	expiresAt    time.Time
	accessCount  int
	windowStart  time.Time
	lastAccessAt time.Time
	totalReads   int64
}

// Stats is a point-in-time cache statistics snapshot.
type Stats struct {
	Hits        int64          `json:"hits"`
	Misses      int64          `json:"misses"`
	HitRate     float64        `json:"hit_rate"`
	SizeByScope map[string]int `json:"size_by_scope"`
	TopKeys     []KeyStat      `json:"top_keys"`
}

// KeyStat is one key's cumulative read count.
type KeyStat struct {
	Key   string `json:"key"`
	Reads int64  `json:"reads"`
}

// Manager is the cache. There is no global lock: entries live in a
// sync.Map and each entry carries its own mutex, so reads never block
// writes to different keys. Refills are coalesced per key through a
// singleflight group.
type Manager struct {
	cfg     Config
	entries sync.Map // string -> *entry
	group   singleflight.Group
	hits    atomic.Int64
	misses  atomic.Int64
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Manager. m may be nil, in which case hit/miss counts are
// kept only in the manager's own Stats.
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if cfg.CategoryTTL == 0 {
		cfg.CategoryTTL = 60 * time.Second
	}
	if cfg.TrendingTTL == 0 {
		cfg.TrendingTTL = 15 * time.Second
	}
	if cfg.MarketTTL == 0 {
		cfg.MarketTTL = 30 * time.Second
	}
	if cfg.HotReadThreshold == 0 {
		cfg.HotReadThreshold = 5
	}
	if cfg.TTLMultiplier == 0 {
		cfg.TTLMultiplier = 2.0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		cfg:     cfg,
		metrics: m,
		logger:  logger.With(slog.String("component", "cache")),
	}
}

func (m *Manager) recordHit() {
	m.hits.Add(1)
	if m.metrics != nil {
		m.metrics.CacheHitsTotal.Inc()
	}
}

func (m *Manager) recordMiss() {
	m.misses.Add(1)
	if m.metrics != nil {
		m.metrics.CacheMissesTotal.Inc()
	}
}

// Get returns the payload for key and whether it was a live hit. Expired
// entries report a miss but are kept until the next write replaces them.
func (m *Manager) Get(key string) (any, bool) {
	v, ok := m.entries.Load(key)
	if !ok {
		m.recordMiss()
		return nil, false
	}
	e := v.(*entry)
	now := m.cfg.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if now.After(e.expiresAt) {
		m.recordMiss()
		return nil, false
	}

	// Windowed access tracking: the window resets whenever a full TTL
	// window has elapsed, computed purely from timestamps.
	if now.Sub(e.windowStart) > e.expiresAt.Sub(e.insertedAt) {
		e.windowStart = now
		e.accessCount = 0
	}
	e.accessCount++
	e.totalReads++
	e.lastAccessAt = now

	m.recordHit()
	return e.payload, true
}

// Put stores payload under key. If the key's previous window saw at least
// HotReadThreshold reads, the new TTL is the base TTL scaled by
// TTLMultiplier; hot keys survive longer to absorb bursty read load.
func (m *Manager) Put(key string, payload any) {
	now := m.cfg.Now()
	base := m.BaseTTL(key)
	ttl := base

	var carriedReads int64
	if v, ok := m.entries.Load(key); ok {
		prev := v.(*entry)
		prev.mu.Lock()
		if prev.accessCount >= m.cfg.HotReadThreshold {
			ttl = time.Duration(float64(base) * m.cfg.TTLMultiplier)
		}
		carriedReads = prev.totalReads
		prev.mu.Unlock()
	}

	e := &entry{
		payload:     payload,
		insertedAt:  now,
		expiresAt:   now.Add(ttl),
		windowStart: now,
		totalReads:  carriedReads,
	}
	m.entries.Store(key, e)
}

// GetOrFill returns the cached payload or, on miss, invokes fill exactly
// once per key across concurrent callers and caches its result. The cache
// never truncates list payloads; any result-size limiting is the caller's
// concern.
func (m *Manager) GetOrFill(ctx context.Context, key string, fill func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := m.Get(key); ok {
		return v, nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		// Re-check: another caller may have refilled while we queued.
		if v, ok := m.Get(key); ok {
			return v, nil
		}
		payload, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		m.Put(key, payload)
		return payload, nil
	})
	return v, err
}

// Invalidate forces the next read of key to miss.
func (m *Manager) Invalidate(key string) {
	m.entries.Delete(key)
}

// BaseTTL resolves the scope TTL for a key.
func (m *Manager) BaseTTL(key string) time.Duration {
	switch {
	case key == KeyTrending:
		return m.cfg.TrendingTTL
	case strings.HasPrefix(key, MarketPrefix):
		return m.cfg.MarketTTL
	default:
		return m.cfg.CategoryTTL
	}
}

// Stats returns a snapshot of hit/miss counters, entry counts per scope,
// and the most-read keys.
func (m *Manager) Stats() Stats {
	s := Stats{
		Hits:        m.hits.Load(),
		Misses:      m.misses.Load(),
		SizeByScope: make(map[string]int),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}

	m.entries.Range(func(k, v any) bool {
		key := k.(string)
		e := v.(*entry)

		e.mu.Lock()
		reads := e.totalReads
		e.mu.Unlock()

		s.SizeByScope[scopeOf(key)]++
		s.TopKeys = append(s.TopKeys, KeyStat{Key: key, Reads: reads})
		return true
	})

	sort.Slice(s.TopKeys, func(i, j int) bool {
		if s.TopKeys[i].Reads != s.TopKeys[j].Reads {
			return s.TopKeys[i].Reads > s.TopKeys[j].Reads
		}
		return s.TopKeys[i].Key < s.TopKeys[j].Key
	})
	if len(s.TopKeys) > 10 {
		s.TopKeys = s.TopKeys[:10]
	}
	return s
}

func scopeOf(key string) string {
	switch {
	case key == KeyTrending:
		return "trending"
	case strings.HasPrefix(key, MarketPrefix):
		return "market"
	case strings.HasPrefix(key, CategoryPrefix):
		return "category"
	default:
		return "other"
	}
}
