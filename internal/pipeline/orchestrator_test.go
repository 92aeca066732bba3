package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alanyoungcy/marketfuse/internal/arbitrage"
	"github.com/alanyoungcy/marketfuse/internal/cache"
	"github.com/alanyoungcy/marketfuse/internal/domain"
	"github.com/alanyoungcy/marketfuse/internal/health"
	"github.com/alanyoungcy/marketfuse/internal/match"
	"github.com/alanyoungcy/marketfuse/internal/metrics"
	"github.com/alanyoungcy/marketfuse/internal/normalize"
	"github.com/alanyoungcy/marketfuse/internal/unify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeAdapter serves a fixed set of listings for one platform.
type fakeAdapter struct {
	platform domain.Platform
	listings []domain.MarketListing
}

func (f *fakeAdapter) Platform() domain.Platform { return f.platform }

func (f *fakeAdapter) FetchListings(ctx context.Context) (domain.FetchResult, error) {
	return domain.FetchResult{
		Platform:  f.platform,
		Listings:  f.listings,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// recordingBroadcaster captures published views.
type recordingBroadcaster struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingBroadcaster) BroadcastView(markets []domain.UnifiedMarket, opportunities []domain.ArbitrageOpportunity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
}

func (r *recordingBroadcaster) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func electionListing(platform domain.Platform, id, question string, yes float64) domain.MarketListing {
	end := time.Date(2028, 11, 7, 0, 0, 0, 0, time.UTC)
	return domain.MarketListing{
		Platform:   platform,
		ExternalID: id,
		Question:   question,
		Category:   "politics",
		Outcomes: []domain.Outcome{
			{Name: "Yes", Price: yes},
			{Name: "No", Price: 1 - yes},
		},
		Volume24h: 1000,
		Liquidity: 500,
		EndTime:   &end,
		FetchedAt: time.Now().UTC(),
	}
}

func newTestOrchestrator(pollers []PlatformPoller, opts Options) (*Orchestrator, *health.Monitor) {
	logger := testLogger()
	platforms := make([]domain.Platform, 0, len(pollers))
	for _, p := range pollers {
		platforms = append(platforms, p.Adapter.Platform())
	}
	healthMon := health.New(health.Config{}, platforms, logger)
	o := New(
		Config{},
		pollers,
		normalize.New(logger),
		match.New(match.Config{}, logger),
		unify.New(unify.Config{}, nil, logger),
		arbitrage.New(arbitrage.Config{}, logger),
		cache.New(cache.Config{}, nil, logger),
		healthMon,
		metrics.NewWith(prometheus.NewRegistry()),
		opts,
		logger,
	)
	return o, healthMon
}

func TestCycleUnifiesAcrossPlatformsAndFlagsArbitrage(t *testing.T) {
	pm := &fakeAdapter{
		platform: domain.PlatformPolymarket,
		listings: []domain.MarketListing{
			electionListing(domain.PlatformPolymarket, "pm1", "Will X win in 2028?", 0.52),
		},
	}
	ks := &fakeAdapter{
		platform: domain.PlatformKalshi,
		listings: []domain.MarketListing{
			electionListing(domain.PlatformKalshi, "ks1", "Will X win in the 2028 election?", 0.48),
		},
	}
	bc := &recordingBroadcaster{}
	o, healthMon := newTestOrchestrator([]PlatformPoller{
		{Adapter: pm, Interval: time.Minute},
		{Adapter: ks, Interval: time.Minute},
	}, Options{Broadcaster: bc})

	ctx := context.Background()
	for _, a := range []*fakeAdapter{pm, ks} {
		res, err := a.FetchListings(ctx)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		healthMon.RecordSuccess(a.platform)
		o.latest[a.platform] = res
	}
	o.runCycle(ctx)

	view, ok := o.Current()
	if !ok {
		t.Fatal("no view after cycle")
	}
	if len(view.Markets) != 1 {
		t.Fatalf("got %d unified markets, want 1 merged market", len(view.Markets))
	}
	um := view.Markets[0]
	if len(um.Platforms) != 2 {
		t.Fatalf("unified market spans %d platforms, want 2", len(um.Platforms))
	}
	if um.BestPrice.Yes.Platform != domain.PlatformKalshi || um.BestPrice.Yes.Price != 0.48 {
		t.Errorf("best YES = %+v, want kalshi @ 0.48", um.BestPrice.Yes)
	}

	if len(view.Opportunities) != 1 {
		t.Fatalf("got %d arbitrage opportunities, want 1", len(view.Opportunities))
	}
	opp := view.Opportunities[0]
	if !opp.Exists {
		t.Error("opportunity not flagged as existing")
	}
	if math.Abs(opp.ProfitPct-4.0) > 1e-9 {
		t.Errorf("profit = %v%%, want 4.0%%", opp.ProfitPct)
	}
	if opp.BuyPlatform != domain.PlatformKalshi || opp.SellPlatform != domain.PlatformPolymarket {
		t.Errorf("routing = buy %s / sell %s, want buy kalshi / sell polymarket",
			opp.BuyPlatform, opp.SellPlatform)
	}

	if bc.Calls() != 1 {
		t.Errorf("broadcaster called %d times, want 1", bc.Calls())
	}

	// The cycle also publishes the category view to the cache.
	v, hit := o.cache.Get(cache.CategoryPrefix + "politics")
	if !hit {
		t.Fatal("category view not cached after cycle")
	}
	cv, okType := v.(domain.CategoryView)
	if !okType {
		t.Fatalf("cached payload has type %T, want domain.CategoryView", v)
	}
	if cv.Source != domain.SourceLive || cv.Stale {
		t.Errorf("cached view source=%s stale=%v, want live and not stale", cv.Source, cv.Stale)
	}
}

func TestCycleWithSinglePlatformStillProducesView(t *testing.T) {
	pm := &fakeAdapter{
		platform: domain.PlatformPolymarket,
		listings: []domain.MarketListing{
			electionListing(domain.PlatformPolymarket, "pm1", "Will X win in 2028?", 0.52),
		},
	}
	o, healthMon := newTestOrchestrator([]PlatformPoller{
		{Adapter: pm, Interval: time.Minute},
	}, Options{})

	ctx := context.Background()
	res, _ := pm.FetchListings(ctx)
	healthMon.RecordSuccess(pm.platform)
	o.latest[pm.platform] = res
	o.runCycle(ctx)

	view, ok := o.Current()
	if !ok {
		t.Fatal("no view after cycle")
	}
	if len(view.Markets) != 1 {
		t.Fatalf("got %d markets, want 1 degenerate single-platform market", len(view.Markets))
	}
	if len(view.Opportunities) != 0 {
		t.Errorf("got %d opportunities from a single platform, want 0", len(view.Opportunities))
	}
	if got := o.Categories(); len(got) != 1 || got[0] != "politics" {
		t.Errorf("categories = %v, want [politics]", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	pm := &fakeAdapter{
		platform: domain.PlatformPolymarket,
		listings: []domain.MarketListing{
			electionListing(domain.PlatformPolymarket, "pm1", "Will X win in 2028?", 0.52),
		},
	}
	o, _ := newTestOrchestrator([]PlatformPoller{
		{Adapter: pm, Interval: 10 * time.Millisecond},
	}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	// Let at least one poll and cycle complete.
	deadline := time.After(2 * time.Second)
	for {
		if _, ok := o.Current(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no view produced before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v on cancel, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

// flakyHistory fails AppendPoints for one listing key and records the rest.
type flakyHistory struct {
	failKey  string
	appended []string
}

func (f *flakyHistory) AppendPoints(ctx context.Context, l domain.MarketListing) error {
	if l.Key() == f.failKey {
		return errors.New("append rejected")
	}
	f.appended = append(f.appended, l.Key())
	return nil
}

func (f *flakyHistory) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func TestArchiveContinuesPastFailedAppend(t *testing.T) {
	listings := []domain.MarketListing{
		electionListing(domain.PlatformPolymarket, "pm1", "Will X win in 2028?", 0.52),
		electionListing(domain.PlatformKalshi, "ks1", "Will X win in the 2028 election?", 0.48),
		electionListing(domain.PlatformManifold, "mf1", "Will Y win in 2028?", 0.30),
	}
	hist := &flakyHistory{failKey: listings[0].Key()}

	o, _ := newTestOrchestrator(nil, Options{History: hist})
	o.archive(context.Background(), listings)

	if len(hist.appended) != 2 {
		t.Fatalf("appended %d listings, want the 2 after the failed one", len(hist.appended))
	}
	for i, want := range []string{listings[1].Key(), listings[2].Key()} {
		if hist.appended[i] != want {
			t.Fatalf("appended[%d] = %q, want %q", i, hist.appended[i], want)
		}
	}
}
