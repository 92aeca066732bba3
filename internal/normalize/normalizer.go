// Package normalize validates and clamps provider listings into the
// canonical shape consumed by the matcher.
package normalize

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

// Normalizer enforces listing invariants: prices in [0,1], non-negative
// volume and liquidity, non-empty question and outcomes, time-ordered
// history.
type Normalizer struct {
	logger *slog.Logger
}

// New creates a Normalizer.
func New(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger.With(slog.String("component", "normalizer"))}
}

// NormalizeBatch normalizes every listing in the batch, dropping records
// that fail required-field checks. The batch itself never fails; rejected
// counts the drops. Duplicate (platform, external id) listings keep the
// first occurrence.
func (n *Normalizer) NormalizeBatch(listings []domain.MarketListing) (out []domain.MarketListing, rejected int) {
	out = make([]domain.MarketListing, 0, len(listings))
	seen := make(map[string]struct{}, len(listings))

	for i := range listings {
		listing, ok := n.Normalize(listings[i])
		if !ok {
			rejected++
			continue
		}
		key := listing.Key()
		if _, dup := seen[key]; dup {
			rejected++
			n.logger.Warn("dropping duplicate listing", slog.String("key", key))
			continue
		}
		seen[key] = struct{}{}
		out = append(out, listing)
	}
	return out, rejected
}

// Normalize validates a single listing and clamps its values. The second
// return is false when the record must be rejected.
func (n *Normalizer) Normalize(l domain.MarketListing) (domain.MarketListing, bool) {
	if l.Platform == "" || l.ExternalID == "" {
		n.logger.Debug("rejecting listing without identity")
		return domain.MarketListing{}, false
	}
	l.Question = strings.TrimSpace(l.Question)
	if l.Question == "" {
		n.logger.Debug("rejecting listing with empty question",
			slog.String("key", l.Key()))
		return domain.MarketListing{}, false
	}
	if len(l.Outcomes) == 0 {
		n.logger.Debug("rejecting listing without outcomes",
			slog.String("key", l.Key()))
		return domain.MarketListing{}, false
	}

	outcomes := make([]domain.Outcome, len(l.Outcomes))
	copy(outcomes, l.Outcomes)
	for i := range outcomes {
		outcomes[i].Price = clamp01(outcomes[i].Price)
		if len(outcomes[i].History) > 1 {
			hist := make([]domain.PricePoint, len(outcomes[i].History))
			copy(hist, outcomes[i].History)
			sort.Slice(hist, func(a, b int) bool {
				return hist[a].Timestamp.Before(hist[b].Timestamp)
			})
			for j := range hist {
				hist[j].Price = clamp01(hist[j].Price)
			}
			outcomes[i].History = hist
		}
	}
	l.Outcomes = outcomes

	if l.Volume24h < 0 {
		l.Volume24h = 0
	}
	if l.Liquidity < 0 {
		l.Liquidity = 0
	}
	l.Category = strings.ToLower(strings.TrimSpace(l.Category))
	return l, true
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
