// Package service implements the read path: cache first, then the live
// unified view, then the last-good snapshot when every platform is down.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/marketfuse/internal/cache"
	"github.com/alanyoungcy/marketfuse/internal/domain"
	"github.com/alanyoungcy/marketfuse/internal/health"
	"github.com/alanyoungcy/marketfuse/internal/pipeline"
)

const trendingLimit = 20

// Config holds read-path tuning.
type Config struct {
	// StaleAfter marks responses stale when the backing view is older
	// than this.
	StaleAfter time.Duration

	// Now is the clock, injectable for tests.
	Now func() time.Time
}

// MarketService serves consumer reads over the aggregated view.
type MarketService struct {
	cfg       Config
	cache     *cache.Manager
	pipeline  *pipeline.Orchestrator
	snapshots domain.SnapshotStore
	health    *health.Monitor
	logger    *slog.Logger
}

// New creates a MarketService. snapshots may be nil, in which case reads
// fail with domain.ErrNoSnapshot once the live view is unavailable.
func New(
	cfg Config,
	cacheMgr *cache.Manager,
	orch *pipeline.Orchestrator,
	snapshots domain.SnapshotStore,
	healthMon *health.Monitor,
	logger *slog.Logger,
) *MarketService {
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 60 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &MarketService{
		cfg:       cfg,
		cache:     cacheMgr,
		pipeline:  orch,
		snapshots: snapshots,
		health:    healthMon,
		logger:    logger.With(slog.String("component", "service")),
	}
}

// MarketsByCategory returns the unified markets of one category. On cache
// miss the view is rebuilt from the live pipeline output; when no live view
// exists the last-good snapshot is served with its staleness marked.
func (s *MarketService) MarketsByCategory(ctx context.Context, category string) (domain.CategoryView, error) {
	v, err := s.cache.GetOrFill(ctx, cache.CategoryPrefix+category, func(ctx context.Context) (any, error) {
		return s.buildCategoryView(ctx, category)
	})
	if err != nil {
		return domain.CategoryView{}, err
	}
	cv, ok := v.(domain.CategoryView)
	if !ok {
		return domain.CategoryView{}, fmt.Errorf("service: unexpected cache payload for category %q", category)
	}
	return s.markStaleness(cv), nil
}

// LiveMarket returns one unified market by its ID. This path bypasses the
// cache TTL: the current view is consulted first so trade-time pricing never
// sees an entry the pipeline has already superseded.
func (s *MarketService) LiveMarket(ctx context.Context, unifiedID string) (domain.UnifiedMarket, bool, error) {
	stale := false

	view, ok := s.pipeline.Current()
	if ok {
		for _, um := range view.Markets {
			if um.UnifiedID == unifiedID {
				s.cache.Put(cache.MarketPrefix+unifiedID, um)
				return um, s.viewIsStale(), nil
			}
		}
		return domain.UnifiedMarket{}, false, domain.ErrNotFound
	}

	// No live view yet; the cache may have been warmed from snapshots at
	// startup.
	if v, ok := s.cache.Get(cache.MarketPrefix + unifiedID); ok {
		if um, ok := v.(domain.UnifiedMarket); ok {
			return um, true, nil
		}
	}

	// Fall through to the snapshot store.
	if s.snapshots == nil {
		return domain.UnifiedMarket{}, false, domain.ErrNoSnapshot
	}
	cats, err := s.snapshots.Categories(ctx)
	if err != nil {
		return domain.UnifiedMarket{}, false, err
	}
	stale = true
	for _, cat := range cats {
		markets, _, err := s.snapshots.LoadSnapshot(ctx, cat)
		if err != nil {
			continue
		}
		for _, um := range markets {
			if um.UnifiedID == unifiedID {
				return um, stale, nil
			}
		}
	}
	return domain.UnifiedMarket{}, false, domain.ErrNotFound
}

// Trending returns the highest-momentum unified markets across all
// categories, ranked by volume with a recency boost.
func (s *MarketService) Trending(ctx context.Context) (domain.CategoryView, error) {
	v, err := s.cache.GetOrFill(ctx, cache.KeyTrending, func(ctx context.Context) (any, error) {
		return s.buildTrendingView(ctx)
	})
	if err != nil {
		return domain.CategoryView{}, err
	}
	cv, ok := v.(domain.CategoryView)
	if !ok {
		return domain.CategoryView{}, fmt.Errorf("service: unexpected cache payload for trending")
	}
	return s.markStaleness(cv), nil
}

// Opportunities returns the open arbitrage opportunities of the current
// view, sorted by descending profit.
func (s *MarketService) Opportunities(ctx context.Context) ([]domain.ArbitrageOpportunity, time.Time, error) {
	view, ok := s.pipeline.Current()
	if !ok {
		return nil, time.Time{}, domain.ErrNoSnapshot
	}
	return view.Opportunities, view.GeneratedAt, nil
}

// Categories lists the categories currently served, falling back to the
// snapshot store's index before the first cycle.
func (s *MarketService) Categories(ctx context.Context) ([]string, error) {
	if cats := s.pipeline.Categories(); len(cats) > 0 {
		return cats, nil
	}
	if s.snapshots == nil {
		return nil, nil
	}
	cats, err := s.snapshots.Categories(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(cats)
	return cats, nil
}

// CacheStats exposes the cache counters for the stats endpoint.
func (s *MarketService) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// Staleness reports per-platform health records plus the age of the
// current view.
func (s *MarketService) Staleness() ([]domain.PlatformHealthRecord, time.Duration) {
	records := s.health.Records()
	view, ok := s.pipeline.Current()
	if !ok {
		return records, -1
	}
	return records, s.cfg.Now().Sub(view.GeneratedAt)
}

func (s *MarketService) buildCategoryView(ctx context.Context, category string) (domain.CategoryView, error) {
	if view, ok := s.pipeline.Current(); ok {
		cv := domain.CategoryView{
			Category:    category,
			GeneratedAt: view.GeneratedAt,
			Source:      domain.SourceLive,
		}
		for _, um := range view.Markets {
			if um.Category == category {
				cv.Markets = append(cv.Markets, um)
			}
		}
		return cv, nil
	}

	if s.snapshots == nil {
		return domain.CategoryView{}, domain.ErrNoSnapshot
	}
	markets, savedAt, err := s.snapshots.LoadSnapshot(ctx, category)
	if err != nil {
		return domain.CategoryView{}, err
	}
	s.logger.Info("serving category from snapshot",
		slog.String("category", category),
		slog.Time("saved_at", savedAt))
	return domain.CategoryView{
		Category:    category,
		Markets:     markets,
		GeneratedAt: savedAt,
		Stale:       true,
		Source:      domain.SourceSnapshot,
	}, nil
}

func (s *MarketService) buildTrendingView(ctx context.Context) (domain.CategoryView, error) {
	view, ok := s.pipeline.Current()
	if !ok {
		// Trending degrades to the union of snapshot categories.
		if s.snapshots == nil {
			return domain.CategoryView{}, domain.ErrNoSnapshot
		}
		cats, err := s.snapshots.Categories(ctx)
		if err != nil {
			return domain.CategoryView{}, err
		}
		var all []domain.UnifiedMarket
		var newest time.Time
		for _, cat := range cats {
			markets, savedAt, err := s.snapshots.LoadSnapshot(ctx, cat)
			if err != nil {
				continue
			}
			all = append(all, markets...)
			if savedAt.After(newest) {
				newest = savedAt
			}
		}
		if len(all) == 0 {
			return domain.CategoryView{}, domain.ErrNoSnapshot
		}
		return domain.CategoryView{
			Category:    "trending",
			Markets:     rankTrending(all, s.cfg.Now()),
			GeneratedAt: newest,
			Stale:       true,
			Source:      domain.SourceSnapshot,
		}, nil
	}

	return domain.CategoryView{
		Category:    "trending",
		Markets:     rankTrending(view.Markets, s.cfg.Now()),
		GeneratedAt: view.GeneratedAt,
		Source:      domain.SourceLive,
	}, nil
}

// rankTrending orders markets by log-scaled combined volume plus a recency
// boost that decays to zero over an hour, and keeps the top entries.
func rankTrending(markets []domain.UnifiedMarket, now time.Time) []domain.UnifiedMarket {
	type scored struct {
		um    domain.UnifiedMarket
		score float64
	}
	ranked := make([]scored, 0, len(markets))
	for _, um := range markets {
		score := math.Log10(um.CombinedVolume + 1)
		if age := now.Sub(um.UpdatedAt); age < time.Hour {
			score += 1 - age.Seconds()/3600
		}
		ranked = append(ranked, scored{um: um, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].um.UnifiedID < ranked[j].um.UnifiedID
	})
	if len(ranked) > trendingLimit {
		ranked = ranked[:trendingLimit]
	}
	out := make([]domain.UnifiedMarket, len(ranked))
	for i, r := range ranked {
		out[i] = r.um
	}
	return out
}

// markStaleness flags a view whose data has aged past the threshold even
// when it came from the live pipeline.
func (s *MarketService) markStaleness(cv domain.CategoryView) domain.CategoryView {
	if !cv.Stale && s.cfg.Now().Sub(cv.GeneratedAt) >= s.cfg.StaleAfter {
		cv.Stale = true
	}
	return cv
}

func (s *MarketService) viewIsStale() bool {
	view, ok := s.pipeline.Current()
	if !ok {
		return true
	}
	return s.cfg.Now().Sub(view.GeneratedAt) >= s.cfg.StaleAfter
}
