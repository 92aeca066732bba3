package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Slug          string   `json:"slug"`
	Category      string   `json:"category"`
	Active        flexBool `json:"active"` // API may send bool or "true"/"false" string
	Closed        bool     `json:"closed"`
	Outcomes      string   `json:"outcomes"`      // JSON-encoded: e.g. "[\"Yes\",\"No\"]"
	OutcomePrices string   `json:"outcomePrices"` // JSON-encoded: e.g. "[\"0.5\",\"0.5\"]"
	Volume24hr    float64  `json:"volume24hr"`
	Liquidity     string   `json:"liquidity"` // decimal string
	EndDate       string   `json:"endDate"`   // RFC3339
}

// ToListing converts a Gamma market to the common listing shape. The second
// return is false when the record is malformed (empty question, undecodable
// outcome arrays, mismatched outcome/price lengths) and should be skipped.
func (m *APIMarket) ToListing(fetchedAt time.Time) (domain.MarketListing, bool) {
	if strings.TrimSpace(m.Question) == "" || m.ID == "" {
		return domain.MarketListing{}, false
	}

	var names []string
	if err := json.Unmarshal([]byte(m.Outcomes), &names); err != nil || len(names) == 0 {
		return domain.MarketListing{}, false
	}
	var priceStrs []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &priceStrs); err != nil || len(priceStrs) != len(names) {
		return domain.MarketListing{}, false
	}

	outcomes := make([]domain.Outcome, 0, len(names))
	for i, name := range names {
		price, err := strconv.ParseFloat(priceStrs[i], 64)
		if err != nil {
			return domain.MarketListing{}, false
		}
		outcomes = append(outcomes, domain.Outcome{Name: name, Price: price})
	}

	listing := domain.MarketListing{
		Platform:   domain.PlatformPolymarket,
		ExternalID: m.ID,
		Question:   m.Question,
		Category:   strings.ToLower(m.Category),
		Outcomes:   outcomes,
		Volume24h:  m.Volume24hr,
		FetchedAt:  fetchedAt,
	}
	if liq, err := strconv.ParseFloat(m.Liquidity, 64); err == nil {
		listing.Liquidity = liq
	}
	if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
		listing.EndTime = &t
	}
	return listing, true
}
