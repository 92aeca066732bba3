package manifold

import (
	"strings"
	"time"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

// APIMarket represents a market as returned by the Manifold v0 API.
// Probability is already a [0,1] value for binary markets.
type APIMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Slug          string   `json:"slug"`
	OutcomeType   string   `json:"outcomeType"` // "BINARY", "MULTIPLE_CHOICE", ...
	Probability   float64  `json:"probability"`
	Volume24Hours float64  `json:"volume24Hours"`
	TotalLiquidity float64 `json:"totalLiquidity"`
	CloseTime     int64    `json:"closeTime"` // Unix millis
	IsResolved    bool     `json:"isResolved"`
	GroupSlugs    []string `json:"groupSlugs"`
}

// ToListing converts a Manifold market to the common listing shape. Only
// binary markets are mapped; others are skipped as unsupported rather than
// malformed, but they still count toward Skipped so partial coverage is
// visible.
func (m *APIMarket) ToListing(fetchedAt time.Time) (domain.MarketListing, bool) {
	if strings.TrimSpace(m.Question) == "" || m.ID == "" {
		return domain.MarketListing{}, false
	}
	if m.OutcomeType != "BINARY" || m.IsResolved {
		return domain.MarketListing{}, false
	}

	category := ""
	if len(m.GroupSlugs) > 0 {
		category = strings.ToLower(m.GroupSlugs[0])
	}

	listing := domain.MarketListing{
		Platform:   domain.PlatformManifold,
		ExternalID: m.ID,
		Question:   m.Question,
		Category:   category,
		Outcomes: []domain.Outcome{
			{Name: "Yes", Price: m.Probability},
			{Name: "No", Price: 1 - m.Probability},
		},
		Volume24h: m.Volume24Hours,
		Liquidity: m.TotalLiquidity,
		FetchedAt: fetchedAt,
	}
	if m.CloseTime > 0 {
		t := time.UnixMilli(m.CloseTime).UTC()
		listing.EndTime = &t
	}
	return listing, true
}
