// Package pipeline runs the aggregation loop: per-platform pollers fan
// fetch results into a single aggregator that normalizes, matches, unifies,
// and scans for arbitrage, then publishes the refreshed unified view.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketfuse/internal/arbitrage"
	"github.com/alanyoungcy/marketfuse/internal/cache"
	"github.com/alanyoungcy/marketfuse/internal/domain"
	"github.com/alanyoungcy/marketfuse/internal/health"
	"github.com/alanyoungcy/marketfuse/internal/match"
	"github.com/alanyoungcy/marketfuse/internal/metrics"
	"github.com/alanyoungcy/marketfuse/internal/normalize"
	"github.com/alanyoungcy/marketfuse/internal/unify"
)

// PlatformPoller binds one provider adapter to its poll schedule.
type PlatformPoller struct {
	Adapter  domain.ProviderAdapter
	Interval time.Duration
}

// Broadcaster receives each refreshed unified view for live distribution.
type Broadcaster interface {
	BroadcastView(markets []domain.UnifiedMarket, opportunities []domain.ArbitrageOpportunity)
}

// View is one published result of an aggregation cycle.
type View struct {
	Markets       []domain.UnifiedMarket
	Opportunities []domain.ArbitrageOpportunity
	GeneratedAt   time.Time
}

// Config holds the orchestrator's schedules.
type Config struct {
	// ExportInterval is how often the unified view is exported to blob
	// storage. Zero disables exports even when an exporter is wired.
	ExportInterval time.Duration
	// HistoryRetention bounds the archived price history. Zero disables
	// pruning.
	HistoryRetention time.Duration
}

// Orchestrator owns the poll loops and the aggregation cycle. Optional
// sinks (snapshots, history, exporter, broadcaster) may be nil.
type Orchestrator struct {
	cfg        Config
	pollers    []PlatformPoller
	normalizer *normalize.Normalizer
	matcher    *match.Matcher
	unifier    *unify.Unifier
	detector   *arbitrage.Detector
	cache      *cache.Manager
	health     *health.Monitor
	metrics    *metrics.Metrics
	logger     *slog.Logger

	snapshots   domain.SnapshotStore
	history     domain.HistoryStore
	exporter    domain.SnapshotExporter
	broadcaster Broadcaster

	mu     sync.RWMutex
	latest map[domain.Platform]domain.FetchResult
	view   *View
}

// Options carries the optional sinks for New.
type Options struct {
	Snapshots   domain.SnapshotStore
	History     domain.HistoryStore
	Exporter    domain.SnapshotExporter
	Broadcaster Broadcaster
}

// New wires an Orchestrator from its pipeline stages.
func New(
	cfg Config,
	pollers []PlatformPoller,
	normalizer *normalize.Normalizer,
	matcher *match.Matcher,
	unifier *unify.Unifier,
	detector *arbitrage.Detector,
	cacheMgr *cache.Manager,
	healthMon *health.Monitor,
	m *metrics.Metrics,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		pollers:     pollers,
		normalizer:  normalizer,
		matcher:     matcher,
		unifier:     unifier,
		detector:    detector,
		cache:       cacheMgr,
		health:      healthMon,
		metrics:     m,
		snapshots:   opts.Snapshots,
		history:     opts.History,
		exporter:    opts.Exporter,
		broadcaster: opts.Broadcaster,
		latest:      make(map[domain.Platform]domain.FetchResult),
		logger:      logger.With(slog.String("component", "pipeline")),
	}
}

// Run starts one poll loop per platform and the aggregator, blocking until
// ctx is cancelled. A platform going offline never stops the others; the
// aggregator keeps producing views from whatever data is available.
func (o *Orchestrator) Run(ctx context.Context) error {
	results := make(chan domain.FetchResult)

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range o.pollers {
		g.Go(func() error {
			return o.pollLoop(ctx, p, results)
		})
	}
	g.Go(func() error {
		return o.aggregateLoop(ctx, results)
	})
	if o.exporter != nil && o.cfg.ExportInterval > 0 {
		g.Go(func() error {
			return o.exportLoop(ctx)
		})
	}
	if o.history != nil && o.cfg.HistoryRetention > 0 {
		g.Go(func() error {
			return o.pruneLoop(ctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pollLoop fetches one platform on its interval, reports health, and fans
// successful results into the aggregator. The first fetch happens
// immediately.
func (o *Orchestrator) pollLoop(ctx context.Context, p PlatformPoller, results chan<- domain.FetchResult) error {
	platform := p.Adapter.Platform()
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		res, err := p.Adapter.FetchListings(ctx)
		elapsed := time.Since(start)

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.health.RecordFailure(platform, err)
			o.metrics.RecordFetch(string(platform), false, elapsed.Seconds())
		} else {
			o.health.RecordSuccess(platform)
			o.metrics.RecordFetch(string(platform), true, elapsed.Seconds())
			o.metrics.ListingsFetched.WithLabelValues(string(platform)).Set(float64(len(res.Listings)))

			select {
			case results <- res:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		o.metrics.RecordHealth(string(platform), string(o.health.Status(platform)))

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// aggregateLoop rebuilds the unified view whenever any platform delivers a
// fresh fetch. Stale data from other platforms stays in the working set so
// partial outages degrade the view instead of emptying it.
func (o *Orchestrator) aggregateLoop(ctx context.Context, results <-chan domain.FetchResult) error {
	for {
		select {
		case res := <-results:
			o.mu.Lock()
			o.latest[res.Platform] = res
			o.mu.Unlock()
			o.runCycle(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runCycle executes one full aggregation pass over the latest data.
func (o *Orchestrator) runCycle(ctx context.Context) {
	start := time.Now()

	o.mu.RLock()
	byPlatform := make(map[domain.Platform][]domain.MarketListing, len(o.latest))
	for platform, res := range o.latest {
		byPlatform[platform] = res.Listings
	}
	o.mu.RUnlock()

	listings := make([]domain.MarketListing, 0, 256)
	listingsByPlatform := make(map[domain.Platform][]domain.MarketListing, len(byPlatform))
	for platform, raw := range byPlatform {
		normalized, rejected := o.normalizer.NormalizeBatch(raw)
		if rejected > 0 {
			o.metrics.ListingsRejected.WithLabelValues(string(platform)).Add(float64(rejected))
		}
		listingsByPlatform[platform] = normalized
		listings = append(listings, normalized...)
	}

	candidates := o.matcher.Match(listingsByPlatform)
	o.metrics.MatchCandidates.Set(float64(len(candidates)))

	eligible := make(map[domain.Platform]bool)
	for _, p := range o.pollers {
		platform := p.Adapter.Platform()
		eligible[platform] = o.health.Eligible(platform)
	}

	markets := o.unifier.Unify(candidates, listings, eligible)
	o.metrics.UnifiedMarkets.Set(float64(len(markets)))
	for _, um := range markets {
		if um.OversizedCluster {
			o.metrics.OversizedCluster.Inc()
		}
	}

	opportunities := o.detector.DetectAll(markets)
	o.metrics.ArbOpportunities.Set(float64(len(opportunities)))
	o.metrics.ArbDetectedTotal.Add(float64(len(opportunities)))

	view := &View{
		Markets:       markets,
		Opportunities: opportunities,
		GeneratedAt:   time.Now().UTC(),
	}
	o.mu.Lock()
	o.view = view
	o.mu.Unlock()

	o.publish(ctx, view)
	o.archive(ctx, listings)

	o.metrics.CycleDurationSec.Observe(time.Since(start).Seconds())
	o.logger.Debug("aggregation cycle complete",
		slog.Int("listings", len(listings)),
		slog.Int("candidates", len(candidates)),
		slog.Int("unified", len(markets)),
		slog.Int("opportunities", len(opportunities)),
		slog.Duration("elapsed", time.Since(start)))
}

// publish refreshes cache entries, saves per-category snapshots, and
// notifies the live broadcaster.
func (o *Orchestrator) publish(ctx context.Context, view *View) {
	byCategory := make(map[string][]domain.UnifiedMarket)
	for _, um := range view.Markets {
		byCategory[um.Category] = append(byCategory[um.Category], um)
		o.cache.Put(cache.MarketPrefix+um.UnifiedID, um)
	}
	for category, markets := range byCategory {
		o.cache.Put(cache.CategoryPrefix+category, domain.CategoryView{
			Category:    category,
			Markets:     markets,
			GeneratedAt: view.GeneratedAt,
			Source:      domain.SourceLive,
		})
		if o.snapshots != nil {
			if err := o.snapshots.SaveSnapshot(ctx, category, markets); err != nil {
				o.logger.Warn("snapshot save failed",
					slog.String("category", category),
					slog.Any("error", err))
			}
		}
	}
	o.cache.Invalidate(cache.KeyTrending)

	if o.broadcaster != nil {
		o.broadcaster.BroadcastView(view.Markets, view.Opportunities)
	}
}

// archive appends the cycle's price observations to the history store. A
// failed append drops only that listing's point; the rest of the cycle is
// still archived.
func (o *Orchestrator) archive(ctx context.Context, listings []domain.MarketListing) {
	if o.history == nil {
		return
	}
	for _, l := range listings {
		if err := o.history.AppendPoints(ctx, l); err != nil {
			o.logger.Warn("history append failed",
				slog.String("listing", l.Key()),
				slog.Any("error", err))
			continue
		}
	}
}

func (o *Orchestrator) exportLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.ExportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			view, ok := o.Current()
			if !ok {
				continue
			}
			if err := o.exporter.Export(ctx, view.Markets, view.GeneratedAt); err != nil {
				o.logger.Warn("export failed", slog.Any("error", err))
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (o *Orchestrator) pruneLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-o.cfg.HistoryRetention)
			n, err := o.history.Prune(ctx, cutoff)
			if err != nil {
				o.logger.Warn("history prune failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				o.logger.Info("history pruned", slog.Int64("rows", n))
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Current returns the most recently published view. ok is false before the
// first cycle completes.
func (o *Orchestrator) Current() (View, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.view == nil {
		return View{}, false
	}
	return *o.view, true
}

// Categories lists the categories present in the current view, sorted.
func (o *Orchestrator) Categories() []string {
	view, ok := o.Current()
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	for _, um := range view.Markets {
		seen[um.Category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
