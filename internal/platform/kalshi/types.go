package kalshi

import (
	"strings"
	"time"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

// APIMarket represents a market as returned by the Kalshi REST API. Prices
// are quoted in cents (1-99).
type APIMarket struct {
	Ticker         string  `json:"ticker"`
	EventTicker    string  `json:"event_ticker"`
	Title          string  `json:"title"`
	Subtitle       string  `json:"subtitle"`
	Status         string  `json:"status"` // "open", "closed", "settled"
	YesBid         float64 `json:"yes_bid"`
	YesAsk         float64 `json:"yes_ask"`
	NoBid          float64 `json:"no_bid"`
	NoAsk          float64 `json:"no_ask"`
	LastPrice      float64 `json:"last_price"`
	Volume24H      int64   `json:"volume_24h"`
	Liquidity      float64 `json:"liquidity"`
	OpenInterest   int64   `json:"open_interest"`
	Category       string  `json:"category"`
	ExpirationTime string  `json:"expiration_time"`
	CloseTime      string  `json:"close_time"`
}

// ToListing converts a Kalshi market to the common listing shape. Cent
// prices are scaled to [0,1] probabilities; the ask side is used so the
// listing carries entry prices. Returns false for malformed records.
func (m *APIMarket) ToListing(fetchedAt time.Time) (domain.MarketListing, bool) {
	if strings.TrimSpace(m.Title) == "" || m.Ticker == "" {
		return domain.MarketListing{}, false
	}

	yes := m.YesAsk / 100
	no := m.NoAsk / 100
	if yes == 0 && m.LastPrice > 0 {
		yes = m.LastPrice / 100
		no = 1 - yes
	}

	listing := domain.MarketListing{
		Platform:   domain.PlatformKalshi,
		ExternalID: m.Ticker,
		Question:   m.Title,
		Category:   strings.ToLower(m.Category),
		Outcomes: []domain.Outcome{
			{Name: "Yes", Price: yes},
			{Name: "No", Price: no},
		},
		Volume24h: float64(m.Volume24H),
		Liquidity: m.Liquidity / 100,
		FetchedAt: fetchedAt,
	}

	if t, err := time.Parse(time.RFC3339, m.CloseTime); err == nil {
		listing.EndTime = &t
	} else if t, err := time.Parse(time.RFC3339, m.ExpirationTime); err == nil {
		listing.EndTime = &t
	}
	return listing, true
}
