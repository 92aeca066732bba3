package normalize

import (
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

func newTestNormalizer() *Normalizer {
	return New(slog.New(slog.DiscardHandler))
}

func TestNormalizeClampsPrices(t *testing.T) {
	n := newTestNormalizer()

	l, ok := n.Normalize(domain.MarketListing{
		Platform:   domain.PlatformPolymarket,
		ExternalID: "m1",
		Question:   "Will X win?",
		Outcomes: []domain.Outcome{
			{Name: "Yes", Price: 1.7},
			{Name: "No", Price: -0.2},
		},
		Volume24h: -100,
		Liquidity: -1,
	})
	if !ok {
		t.Fatal("listing unexpectedly rejected")
	}
	if l.Outcomes[0].Price != 1 {
		t.Errorf("Yes price = %v, want clamped to 1", l.Outcomes[0].Price)
	}
	if l.Outcomes[1].Price != 0 {
		t.Errorf("No price = %v, want clamped to 0", l.Outcomes[1].Price)
	}
	if l.Volume24h != 0 || l.Liquidity != 0 {
		t.Errorf("volume/liquidity = %v/%v, want 0/0", l.Volume24h, l.Liquidity)
	}
}

func TestNormalizeRejections(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name    string
		listing domain.MarketListing
	}{
		{"missing platform", domain.MarketListing{ExternalID: "m", Question: "q", Outcomes: []domain.Outcome{{Name: "Yes"}}}},
		{"missing external id", domain.MarketListing{Platform: domain.PlatformKalshi, Question: "q", Outcomes: []domain.Outcome{{Name: "Yes"}}}},
		{"blank question", domain.MarketListing{Platform: domain.PlatformKalshi, ExternalID: "m", Question: "   ", Outcomes: []domain.Outcome{{Name: "Yes"}}}},
		{"no outcomes", domain.MarketListing{Platform: domain.PlatformKalshi, ExternalID: "m", Question: "q"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := n.Normalize(tt.listing); ok {
				t.Error("expected rejection")
			}
		})
	}
}

func TestNormalizeSortsHistory(t *testing.T) {
	n := newTestNormalizer()
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	l, ok := n.Normalize(domain.MarketListing{
		Platform:   domain.PlatformManifold,
		ExternalID: "m1",
		Question:   "q",
		Outcomes: []domain.Outcome{{
			Name:  "Yes",
			Price: 0.5,
			History: []domain.PricePoint{
				{Timestamp: t0.Add(2 * time.Hour), Price: 0.6},
				{Timestamp: t0, Price: 1.4},
				{Timestamp: t0.Add(time.Hour), Price: 0.55},
			},
		}},
	})
	if !ok {
		t.Fatal("listing unexpectedly rejected")
	}
	hist := l.Outcomes[0].History
	for i := 1; i < len(hist); i++ {
		if hist[i].Timestamp.Before(hist[i-1].Timestamp) {
			t.Fatalf("history not time-ordered at %d: %v", i, hist)
		}
	}
	if hist[0].Price != 1 {
		t.Errorf("history price = %v, want clamped to 1", hist[0].Price)
	}
}

func TestNormalizeBatchDropsDuplicatesAndCounts(t *testing.T) {
	n := newTestNormalizer()

	valid := domain.MarketListing{
		Platform:   domain.PlatformPolymarket,
		ExternalID: "dup",
		Question:   "q",
		Outcomes:   []domain.Outcome{{Name: "Yes", Price: 0.5}},
	}
	bad := domain.MarketListing{Platform: domain.PlatformPolymarket, ExternalID: "bad"}

	out, rejected := n.NormalizeBatch([]domain.MarketListing{valid, valid, bad})
	if len(out) != 1 {
		t.Fatalf("got %d listings, want 1", len(out))
	}
	if rejected != 2 {
		t.Errorf("rejected = %d, want 2 (one duplicate, one malformed)", rejected)
	}
}

func TestNormalizeLowercasesCategory(t *testing.T) {
	n := newTestNormalizer()
	l, ok := n.Normalize(domain.MarketListing{
		Platform:   domain.PlatformKalshi,
		ExternalID: "m1",
		Question:   "q",
		Category:   "  Politics ",
		Outcomes:   []domain.Outcome{{Name: "Yes", Price: 0.5}},
	})
	if !ok {
		t.Fatal("listing unexpectedly rejected")
	}
	if l.Category != "politics" {
		t.Errorf("category = %q, want %q", l.Category, "politics")
	}
}
