package manifold

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

const marketsFixture = `[
  {
    "id": "abc123",
    "question": "Will X win the 2028 election?",
    "slug": "will-x-win",
    "outcomeType": "BINARY",
    "probability": 0.55,
    "volume24Hours": 4200.5,
    "totalLiquidity": 900,
    "closeTime": 1857081600000,
    "isResolved": false,
    "groupSlugs": ["Politics", "elections"]
  },
  {
    "id": "def456",
    "question": "Which party wins?",
    "outcomeType": "MULTIPLE_CHOICE",
    "isResolved": false
  },
  {
    "id": "ghi789",
    "question": "Settled market",
    "outcomeType": "BINARY",
    "probability": 1,
    "isResolved": true
  }
]`

func TestFetchListingsMapsBinaryMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			t.Errorf("path = %s, want /markets", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "100" {
			t.Errorf("limit = %s, want 100", r.URL.Query().Get("limit"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(marketsFixture))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, PageLimit: 100})
	res, err := c.FetchListings(context.Background())
	if err != nil {
		t.Fatalf("FetchListings: %v", err)
	}

	if len(res.Listings) != 1 {
		t.Fatalf("got %d listings, want 1 (multiple-choice and resolved skipped)", len(res.Listings))
	}
	if res.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", res.Skipped)
	}

	l := res.Listings[0]
	if l.Platform != domain.PlatformManifold || l.ExternalID != "abc123" {
		t.Errorf("identity = %s/%s", l.Platform, l.ExternalID)
	}
	if l.Outcomes[0].Price != 0.55 || l.Outcomes[1].Price != 0.45 {
		t.Errorf("outcomes = %+v, want probability 0.55 with complement", l.Outcomes)
	}
	if l.Category != "politics" {
		t.Errorf("category = %q, want first group slug lowercased", l.Category)
	}
	want := time.UnixMilli(1857081600000).UTC()
	if l.EndTime == nil || !l.EndTime.Equal(want) {
		t.Errorf("end time = %v, want %v from unix millis", l.EndTime, want)
	}
}

func TestFetchListingsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	if _, err := c.FetchListings(context.Background()); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestToListingNoCloseTime(t *testing.T) {
	m := APIMarket{ID: "x", Question: "q", OutcomeType: "BINARY", Probability: 0.5}
	l, ok := m.ToListing(time.Now())
	if !ok {
		t.Fatal("listing rejected")
	}
	if l.EndTime != nil {
		t.Errorf("end time = %v, want nil when closeTime is absent", l.EndTime)
	}
}
