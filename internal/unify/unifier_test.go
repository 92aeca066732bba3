package unify

import (
	"log/slog"
	"testing"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func mk(platform domain.Platform, id, question string, yes, volume float64) domain.MarketListing {
	return domain.MarketListing{
		Platform:   platform,
		ExternalID: id,
		Question:   question,
		Outcomes: []domain.Outcome{
			{Name: "Yes", Price: yes},
			{Name: "No", Price: 1 - yes},
		},
		Volume24h: volume,
		Liquidity: volume / 2,
	}
}

func candidate(a, b domain.MarketListing, confidence float64) domain.MatchCandidate {
	return domain.MatchCandidate{A: a, B: b, Confidence: confidence}
}

// fixedScorer re-scores every pair with a constant, used to drive the
// re-validation path deterministically.
type fixedScorer struct {
	score float64
}

func (f fixedScorer) Score(a, b domain.MarketListing) (float64, domain.MatchedEntities) {
	return f.score, domain.MatchedEntities{}
}

func TestUnifyEveryListingAppearsExactlyOnce(t *testing.T) {
	u := New(Config{SimilarThreshold: 0.85}, nil, testLogger())

	a := mk(domain.PlatformPolymarket, "pm1", "Will X win?", 0.52, 1000)
	b := mk(domain.PlatformKalshi, "ks1", "Will X win the election?", 0.48, 500)
	c := mk(domain.PlatformManifold, "mf1", "Will it rain in London?", 0.30, 50)

	listings := []domain.MarketListing{a, b, c}
	out := u.Unify([]domain.MatchCandidate{candidate(a, b, 0.90)}, listings, nil)

	seen := make(map[string]int)
	for _, um := range out {
		for _, l := range um.Platforms {
			seen[l.Key()]++
		}
	}
	for _, l := range listings {
		if seen[l.Key()] != 1 {
			t.Errorf("listing %s appears %d times, want exactly 1", l.Key(), seen[l.Key()])
		}
	}
	if len(out) != 2 {
		t.Fatalf("got %d unified markets, want 2 (one pair, one singleton)", len(out))
	}
}

func TestUnifySubThresholdCandidateNeverClusters(t *testing.T) {
	u := New(Config{SimilarThreshold: 0.85}, nil, testLogger())

	a := mk(domain.PlatformPolymarket, "pm1", "q", 0.5, 100)
	b := mk(domain.PlatformKalshi, "ks1", "q", 0.5, 100)

	out := u.Unify(
		[]domain.MatchCandidate{candidate(a, b, 0.84)}, // ambiguous, below threshold
		[]domain.MarketListing{a, b},
		nil,
	)
	if len(out) != 2 {
		t.Fatalf("got %d unified markets, want 2 separate singletons", len(out))
	}
}

func TestUnifyDeterministicOrderAndID(t *testing.T) {
	u := New(Config{SimilarThreshold: 0.85}, nil, testLogger())

	a := mk(domain.PlatformPolymarket, "pm1", "q", 0.5, 100)
	b := mk(domain.PlatformKalshi, "ks1", "q", 0.5, 100)

	first := u.Unify([]domain.MatchCandidate{candidate(a, b, 0.9)}, []domain.MarketListing{a, b}, nil)
	second := u.Unify([]domain.MatchCandidate{candidate(b, a, 0.9)}, []domain.MarketListing{b, a}, nil)

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("want single unified market from both orderings")
	}
	if first[0].UnifiedID != second[0].UnifiedID {
		t.Errorf("unified ID depends on input order: %s vs %s", first[0].UnifiedID, second[0].UnifiedID)
	}
}

func TestUnifyCanonicalQuestionFromHighestVolume(t *testing.T) {
	u := New(Config{SimilarThreshold: 0.85}, nil, testLogger())

	a := mk(domain.PlatformPolymarket, "pm1", "Will X win?", 0.52, 100)
	b := mk(domain.PlatformKalshi, "ks1", "Will X win the election?", 0.48, 5000)

	out := u.Unify([]domain.MatchCandidate{candidate(a, b, 0.9)}, []domain.MarketListing{a, b}, nil)
	if len(out) != 1 {
		t.Fatalf("got %d unified markets, want 1", len(out))
	}
	if out[0].CanonicalQuestion != "Will X win the election?" {
		t.Errorf("canonical question = %q, want the higher-volume phrasing", out[0].CanonicalQuestion)
	}
	if out[0].CombinedVolume != 5100 {
		t.Errorf("combined volume = %v, want 5100", out[0].CombinedVolume)
	}
}

func TestUnifyBestPriceAndRouting(t *testing.T) {
	u := New(Config{SimilarThreshold: 0.85}, nil, testLogger())

	a := mk(domain.PlatformPolymarket, "pm1", "Will X win?", 0.52, 1000)
	b := mk(domain.PlatformKalshi, "ks1", "Will X win?", 0.48, 200)

	out := u.Unify([]domain.MatchCandidate{candidate(a, b, 0.9)}, []domain.MarketListing{a, b}, nil)
	if len(out) != 1 {
		t.Fatalf("got %d unified markets, want 1", len(out))
	}
	um := out[0]

	if um.BestPrice.Yes.Platform != domain.PlatformKalshi || um.BestPrice.Yes.Price != 0.48 {
		t.Errorf("best YES = %+v, want kalshi @ 0.48", um.BestPrice.Yes)
	}
	if um.BestPrice.No.Platform != domain.PlatformPolymarket || um.BestPrice.No.Price != 0.48 {
		t.Errorf("best NO = %+v, want polymarket @ 0.48", um.BestPrice.No)
	}
	if um.BestLiquidityPlatform != domain.PlatformPolymarket {
		t.Errorf("best liquidity platform = %s, want polymarket", um.BestLiquidityPlatform)
	}
	if rec, ok := um.Routing[domain.RouteBuyYes]; !ok || rec.Platform != domain.PlatformKalshi {
		t.Errorf("buy_yes routing = %+v, want kalshi", rec)
	}
}

func TestUnifyOfflinePlatformExcludedFromPricing(t *testing.T) {
	u := New(Config{SimilarThreshold: 0.85}, nil, testLogger())

	a := mk(domain.PlatformPolymarket, "pm1", "q", 0.52, 1000)
	b := mk(domain.PlatformKalshi, "ks1", "q", 0.48, 200)

	eligible := map[domain.Platform]bool{
		domain.PlatformPolymarket: true,
		domain.PlatformKalshi:     false, // offline
	}
	out := u.Unify([]domain.MatchCandidate{candidate(a, b, 0.9)}, []domain.MarketListing{a, b}, eligible)
	if len(out) != 1 {
		t.Fatalf("got %d unified markets, want 1", len(out))
	}
	um := out[0]

	// The offline platform's listing stays visible but cannot win pricing.
	if _, ok := um.Platforms[domain.PlatformKalshi]; !ok {
		t.Error("offline platform sub-record must stay in the unified market")
	}
	if um.BestPrice.Yes.Platform != domain.PlatformPolymarket {
		t.Errorf("best YES platform = %s, want polymarket only", um.BestPrice.Yes.Platform)
	}
}

func TestUnifyOversizedClusterFlagged(t *testing.T) {
	u := New(Config{SimilarThreshold: 0.85, ClusterSizeCap: 2}, nil, testLogger())

	a := mk(domain.PlatformPolymarket, "pm1", "q", 0.5, 100)
	b := mk(domain.PlatformKalshi, "ks1", "q", 0.5, 100)
	c := mk(domain.PlatformManifold, "mf1", "q", 0.5, 100)

	out := u.Unify([]domain.MatchCandidate{
		candidate(a, b, 0.9),
		candidate(b, c, 0.9),
	}, []domain.MarketListing{a, b, c}, nil)

	if len(out) != 1 {
		t.Fatalf("got %d unified markets, want 1 merged cluster", len(out))
	}
	if !out[0].OversizedCluster {
		t.Error("cluster above the size cap must be flagged, not rejected")
	}
}

func TestUnifyRevalidationSplitsWeakClusters(t *testing.T) {
	a := mk(domain.PlatformPolymarket, "pm1", "q", 0.5, 100)
	b := mk(domain.PlatformKalshi, "ks1", "q", 0.5, 100)
	c := mk(domain.PlatformManifold, "mf1", "q", 0.5, 100)
	listings := []domain.MarketListing{a, b, c}
	chain := []domain.MatchCandidate{
		candidate(a, b, 0.86),
		candidate(b, c, 0.86),
	}

	// Every re-scored pair fails the relaxed bound: the transitive
	// cluster falls apart into singletons.
	split := New(Config{
		SimilarThreshold: 0.85,
		Revalidate:       true,
		RelaxedThreshold: 0.70,
	}, fixedScorer{score: 0.10}, testLogger())
	out := split.Unify(chain, listings, nil)
	if len(out) != 3 {
		t.Fatalf("got %d unified markets after failed re-validation, want 3", len(out))
	}

	// Pairs passing the relaxed bound keep the transitive merge.
	keep := New(Config{
		SimilarThreshold: 0.85,
		Revalidate:       true,
		RelaxedThreshold: 0.70,
	}, fixedScorer{score: 0.75}, testLogger())
	out = keep.Unify(chain, listings, nil)
	if len(out) != 1 {
		t.Fatalf("got %d unified markets after passing re-validation, want 1", len(out))
	}
}
