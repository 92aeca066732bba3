package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// MatchedEntities carries the overlapping entities that contributed to a
// match score, kept for auditability of low-confidence candidates.
type MatchedEntities struct {
	Names    []string `json:"names,omitempty"`
	Dates    []string `json:"dates,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// MatchCandidate is a scored pairing of two listings from different
// platforms. Candidates are ephemeral; they are not persisted past
// unification.
type MatchCandidate struct {
	A          MarketListing   `json:"a"`
	B          MarketListing   `json:"b"`
	Confidence float64         `json:"confidence"`
	Strong     bool            `json:"strong"`
	Ambiguous  bool            `json:"ambiguous"`
	Entities   MatchedEntities `json:"entities"`
}

// PlatformPrice names the platform offering a price.
type PlatformPrice struct {
	Platform Platform `json:"platform"`
	Price    float64  `json:"price"`
}

// BestPrice is the cheapest entry price per outcome direction across the
// platforms of a unified market.
type BestPrice struct {
	Yes PlatformPrice `json:"yes"`
	No  PlatformPrice `json:"no"`
}

// RoutingAction identifies an order-routing intent.
type RoutingAction string

const (
	RouteBuyYes RoutingAction = "buy_yes"
	RouteBuyNo  RoutingAction = "buy_no"
)

// RoutingRecommendation points an action at the platform best suited to it.
type RoutingRecommendation struct {
	Platform Platform `json:"platform"`
	Reason   string   `json:"reason"`
}

// UnifiedMarket merges one or more cross-platform listings believed to
// describe the same real-world event. A single-platform market is a valid,
// degenerate unified market.
type UnifiedMarket struct {
	UnifiedID             string                                  `json:"unified_id"`
	CanonicalQuestion     string                                  `json:"canonical_question"`
	Category              string                                  `json:"category"`
	Platforms             map[Platform]MarketListing              `json:"platforms"`
	BestPrice             BestPrice                               `json:"best_price"`
	BestLiquidityPlatform Platform                                `json:"best_liquidity_platform"`
	CombinedVolume        float64                                 `json:"combined_volume"`
	Routing               map[RoutingAction]RoutingRecommendation `json:"routing"`
	OversizedCluster      bool                                    `json:"oversized_cluster,omitempty"`
	UpdatedAt             time.Time                               `json:"updated_at"`
}

// CategoryView is the read model served for one category (or the trending
// list). Stale marks data older than the staleness threshold or served from
// the last-good snapshot while platforms are offline.
type CategoryView struct {
	Category    string          `json:"category"`
	Markets     []UnifiedMarket `json:"markets"`
	GeneratedAt time.Time       `json:"generated_at"`
	Stale       bool            `json:"stale"`
	Source      string          `json:"source"`
}

// CategoryView sources.
const (
	SourceLive     = "live"
	SourceSnapshot = "snapshot"
)

// UnifiedID derives a stable identifier from the clustered listing keys.
// The keys are sorted before hashing so the ID does not depend on cluster
// iteration order.
func UnifiedID(keys []string) string {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	h := sha256.New()
	for _, k := range sorted {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
