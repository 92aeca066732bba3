package match

import (
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

func newTestMatcher() *Matcher {
	return New(Config{}, slog.New(slog.DiscardHandler))
}

func listing(platform domain.Platform, id, question string) domain.MarketListing {
	return domain.MarketListing{
		Platform:   platform,
		ExternalID: id,
		Question:   question,
		Outcomes:   []domain.Outcome{{Name: "Yes", Price: 0.5}},
	}
}

func TestScoreSymmetry(t *testing.T) {
	m := newTestMatcher()

	pairs := [][2]string{
		{"Will Trump win the 2028 election?", "Will Trump win the 2028 presidential election?"},
		{"Will X win in 2028?", "Will X win in the 2028 election?"},
		{"Will Bitcoin reach $100k?", "Will it rain in London?"},
	}
	for _, p := range pairs {
		a := listing(domain.PlatformPolymarket, "a", p[0])
		b := listing(domain.PlatformKalshi, "b", p[1])
		ab, _ := m.Score(a, b)
		ba, _ := m.Score(b, a)
		if ab != ba {
			t.Errorf("Score(%q, %q) = %v but reversed = %v", p[0], p[1], ab, ba)
		}
	}
}

func TestMatchContainedPhrasing(t *testing.T) {
	m := newTestMatcher()

	// One platform phrases the same event with extra qualifiers; the
	// shared name and year carry the entity overlap.
	a := listing(domain.PlatformPolymarket, "pm1", "Will X win in 2028?")
	b := listing(domain.PlatformKalshi, "ks1", "Will X win in the 2028 election?")

	score, ents := m.Score(a, b)
	if score < 0.85 {
		t.Fatalf("score = %.4f, want >= 0.85", score)
	}
	if len(ents.Names) != 1 || ents.Names[0] != "x" {
		t.Errorf("matched names = %v, want [x]", ents.Names)
	}
	if len(ents.Dates) != 1 || ents.Dates[0] != "2028" {
		t.Errorf("matched dates = %v, want [2028]", ents.Dates)
	}

	cands := m.Match(map[domain.Platform][]domain.MarketListing{
		domain.PlatformPolymarket: {a},
		domain.PlatformKalshi:     {b},
	})
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	if !m.Qualifies(cands[0]) {
		t.Error("candidate above threshold must qualify for clustering")
	}
	if !cands[0].Ambiguous {
		t.Error("score inside the review band must be flagged ambiguous even when it qualifies")
	}
}

func TestMatchIdenticalQuestionIsStrong(t *testing.T) {
	m := newTestMatcher()

	a := listing(domain.PlatformPolymarket, "pm1", "Will Trump win the 2028 election?")
	b := listing(domain.PlatformKalshi, "ks1", "Will Trump win the 2028 election?")

	score, _ := m.Score(a, b)
	if math.Abs(score-1.0) > 1e-9 {
		t.Fatalf("identical questions score = %.4f, want 1.0", score)
	}

	cands := m.Match(map[domain.Platform][]domain.MarketListing{
		domain.PlatformPolymarket: {a},
		domain.PlatformKalshi:     {b},
	})
	if len(cands) != 1 || !cands[0].Strong {
		t.Fatalf("identical questions must yield one strong candidate, got %+v", cands)
	}
}

func TestMatchAmbiguousBandRetained(t *testing.T) {
	m := newTestMatcher()

	// Contained phrasing with extra entities: text 1.0, entity overlap
	// 3/5, temporal 1.0 -> 0.45 + 0.24 + 0.15 = 0.84, inside the
	// 0.83-0.87 band but below the 0.85 threshold.
	a := listing(domain.PlatformPolymarket, "pm1", "Will Trump win the 2028 election?")
	b := listing(domain.PlatformKalshi, "ks1", "Will Trump win the Georgia Senate 2028 election?")

	score, _ := m.Score(a, b)
	if math.Abs(score-0.84) > 1e-9 {
		t.Fatalf("score = %.4f, want 0.84", score)
	}

	cands := m.Match(map[domain.Platform][]domain.MarketListing{
		domain.PlatformPolymarket: {a},
		domain.PlatformKalshi:     {b},
	})
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1 (ambiguous retained)", len(cands))
	}
	if !cands[0].Ambiguous {
		t.Error("candidate in the ambiguity band must be flagged ambiguous")
	}
	if m.Qualifies(cands[0]) {
		t.Error("sub-threshold ambiguous candidate must not qualify for clustering")
	}
}

func TestMatchNeverPairsSamePlatform(t *testing.T) {
	m := newTestMatcher()

	a := listing(domain.PlatformPolymarket, "pm1", "Will Trump win the 2028 election?")
	b := listing(domain.PlatformPolymarket, "pm2", "Will Trump win the 2028 election?")

	cands := m.Match(map[domain.Platform][]domain.MarketListing{
		domain.PlatformPolymarket: {a, b},
	})
	if len(cands) != 0 {
		t.Fatalf("same-platform listings must never match, got %d candidates", len(cands))
	}
}

func TestMatchCategoryGate(t *testing.T) {
	m := newTestMatcher()

	a := listing(domain.PlatformPolymarket, "pm1", "Will Trump win the 2028 election?")
	a.Category = "politics"
	b := listing(domain.PlatformKalshi, "ks1", "Will Trump win the 2028 election?")
	b.Category = "sports"

	cands := m.Match(map[domain.Platform][]domain.MarketListing{
		domain.PlatformPolymarket: {a},
		domain.PlatformKalshi:     {b},
	})
	if len(cands) != 0 {
		t.Fatalf("different categories must not pair, got %d candidates", len(cands))
	}

	// Unset category on one side is compatible with anything.
	b.Category = ""
	cands = m.Match(map[domain.Platform][]domain.MarketListing{
		domain.PlatformPolymarket: {a},
		domain.PlatformKalshi:     {b},
	})
	if len(cands) != 1 {
		t.Fatalf("unset category must be compatible, got %d candidates", len(cands))
	}
}

func TestMatchUnrelatedQuestionsDropped(t *testing.T) {
	m := newTestMatcher()

	a := listing(domain.PlatformPolymarket, "pm1", "Will Bitcoin reach $100k by 2027?")
	b := listing(domain.PlatformKalshi, "ks1", "Will it rain in London tomorrow?")

	cands := m.Match(map[domain.Platform][]domain.MarketListing{
		domain.PlatformPolymarket: {a},
		domain.PlatformKalshi:     {b},
	})
	if len(cands) != 0 {
		t.Fatalf("unrelated questions must not pair, got %+v", cands)
	}
}

func TestTemporalProximityLowersScore(t *testing.T) {
	m := newTestMatcher()

	near := time.Date(2028, 11, 7, 0, 0, 0, 0, time.UTC)
	far := near.Add(40 * 24 * time.Hour) // far beyond the 72h tolerance

	a := listing(domain.PlatformPolymarket, "pm1", "Will Trump win the 2028 election?")
	a.EndTime = &near
	b := listing(domain.PlatformKalshi, "ks1", "Will Trump win the 2028 election?")

	bNear := b
	bNear.EndTime = &near
	bFar := b
	bFar.EndTime = &far

	nearScore, _ := m.Score(a, bNear)
	farScore, _ := m.Score(a, bFar)
	if farScore >= nearScore {
		t.Errorf("far end times must score lower: near=%.4f far=%.4f", nearScore, farScore)
	}
}
