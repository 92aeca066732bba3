package domain

import "time"

// Platform identifies an upstream market-data provider.
type Platform string

const (
	PlatformPolymarket Platform = "polymarket"
	PlatformKalshi     Platform = "kalshi"
	PlatformManifold   Platform = "manifold"
)

// PricePoint is a single observation in an outcome's price history.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// Outcome is one tradeable outcome of a market listing. Price is a
// probability in [0,1]. History is append-only and time-ordered; points
// beyond the retention horizon may be pruned.
type Outcome struct {
	Name    string       `json:"name"`
	Price   float64      `json:"price"`
	History []PricePoint `json:"history,omitempty"`
}

// PriceLevel is a single orderbook level.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Orderbook is an optional bid/ask snapshot attached to a listing.
type Orderbook struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// MarketListing is a single platform's view of a market after adapter
// mapping. At most one listing exists per (Platform, ExternalID).
type MarketListing struct {
	Platform   Platform   `json:"platform"`
	ExternalID string     `json:"external_id"`
	Question   string     `json:"question"`
	Category   string     `json:"category"`
	Outcomes   []Outcome  `json:"outcomes"`
	Volume24h  float64    `json:"volume_24h"`
	Liquidity  float64    `json:"liquidity"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	FetchedAt  time.Time  `json:"fetched_at"`
	Orderbook  *Orderbook `json:"orderbook,omitempty"`
}

// Key returns the unique (platform, external id) identity of the listing.
func (l MarketListing) Key() string {
	return string(l.Platform) + ":" + l.ExternalID
}

// OutcomePrice returns the price of the named outcome (case-insensitive
// match is the caller's concern; this is exact). The second return reports
// whether the outcome exists.
func (l MarketListing) OutcomePrice(name string) (float64, bool) {
	for _, o := range l.Outcomes {
		if o.Name == name {
			return o.Price, true
		}
	}
	return 0, false
}

// YesPrice returns the price of the "Yes" outcome, falling back to the
// first outcome for platforms that name outcomes differently.
func (l MarketListing) YesPrice() (float64, bool) {
	if p, ok := l.OutcomePrice("Yes"); ok {
		return p, true
	}
	if len(l.Outcomes) > 0 {
		return l.Outcomes[0].Price, true
	}
	return 0, false
}

// NoPrice returns the price of the "No" outcome. When the listing carries
// only a Yes outcome, the complement 1-yes is reported.
func (l MarketListing) NoPrice() (float64, bool) {
	if p, ok := l.OutcomePrice("No"); ok {
		return p, true
	}
	if yes, ok := l.YesPrice(); ok {
		return 1 - yes, true
	}
	return 0, false
}
