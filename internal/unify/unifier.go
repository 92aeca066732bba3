// Package unify groups match candidates into clusters and merges each
// cluster into a single unified market record.
package unify

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

// Scorer re-scores a listing pair, used for optional cluster re-validation.
type Scorer interface {
	Score(a, b domain.MarketListing) (float64, domain.MatchedEntities)
}

// Config holds the clustering policy.
type Config struct {
	// SimilarThreshold is the edge floor: only candidates at or above it
	// contribute clustering edges.
	SimilarThreshold float64

	// Revalidate re-scores every pair inside a transitively-built cluster
	// against RelaxedThreshold and splits out members whose links all fail.
	// Transitive chaining can merge listings that were never directly
	// compared; re-validation bounds that drift.
	Revalidate       bool
	RelaxedThreshold float64

	// ClusterSizeCap flags (not rejects) clusters spanning more platforms
	// than expected so operators can review them.
	ClusterSizeCap int
}

// Unifier merges matched listings into unified markets.
type Unifier struct {
	cfg    Config
	scorer Scorer
	logger *slog.Logger
}

// New creates a Unifier.
func New(cfg Config, scorer Scorer, logger *slog.Logger) *Unifier {
	if cfg.SimilarThreshold == 0 {
		cfg.SimilarThreshold = 0.85
	}
	if cfg.RelaxedThreshold == 0 {
		cfg.RelaxedThreshold = 0.70
	}
	if cfg.ClusterSizeCap == 0 {
		cfg.ClusterSizeCap = 3
	}
	return &Unifier{
		cfg:    cfg,
		scorer: scorer,
		logger: logger.With(slog.String("component", "unifier")),
	}
}

// Unify merges candidates into unified markets. Every input listing appears
// in exactly one unified market: unmatched listings become degenerate
// single-platform markets. pricingEligible restricts which platforms may
// contribute to bestPrice and routing; a nil map means all platforms are
// eligible. Degraded platforms stay in the Platforms map either way.
func (u *Unifier) Unify(
	candidates []domain.MatchCandidate,
	listings []domain.MarketListing,
	pricingEligible map[domain.Platform]bool,
) []domain.UnifiedMarket {
	index := make(map[string]int, len(listings))
	for i, l := range listings {
		index[l.Key()] = i
	}

	uf := newUnionFind(len(listings))
	for _, c := range candidates {
		if c.Confidence < u.cfg.SimilarThreshold {
			continue // ambiguous low-confidence candidates never cluster
		}
		ia, okA := index[c.A.Key()]
		ib, okB := index[c.B.Key()]
		if !okA || !okB {
			continue
		}
		uf.union(ia, ib)
	}

	clusters := make(map[int][]int)
	for i := range listings {
		root := uf.find(i)
		clusters[root] = append(clusters[root], i)
	}

	var allClusters [][]int
	for _, members := range clusters {
		if u.cfg.Revalidate && len(members) > 2 {
			allClusters = append(allClusters, u.revalidate(members, listings)...)
		} else {
			allClusters = append(allClusters, members)
		}
	}

	now := time.Now().UTC()
	out := make([]domain.UnifiedMarket, 0, len(allClusters))
	for _, members := range allClusters {
		out = append(out, u.buildUnified(members, listings, pricingEligible, now))
	}

	// Deterministic output order.
	sort.Slice(out, func(i, j int) bool { return out[i].UnifiedID < out[j].UnifiedID })
	return out
}

// revalidate re-scores every pair inside a cluster against the relaxed
// bound and splits out members with no surviving link to the rest. The
// relaxed bound is looser than the match threshold: transitive merges are
// trusted unless a pairing fails outright.
func (u *Unifier) revalidate(members []int, listings []domain.MarketListing) [][]int {
	if u.scorer == nil {
		return [][]int{members}
	}

	local := newUnionFind(len(members))
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			score, _ := u.scorer.Score(listings[members[i]], listings[members[j]])
			if score >= u.cfg.RelaxedThreshold {
				local.union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	for i, m := range members {
		root := local.find(i)
		groups[root] = append(groups[root], m)
	}
	if len(groups) > 1 {
		u.logger.Warn("cluster split by re-validation",
			slog.Int("original_size", len(members)),
			slog.Int("splits", len(groups)),
		)
	}

	out := make([][]int, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	return out
}

// buildUnified derives the merged record for one cluster.
func (u *Unifier) buildUnified(
	members []int,
	listings []domain.MarketListing,
	pricingEligible map[domain.Platform]bool,
	now time.Time,
) domain.UnifiedMarket {
	keys := make([]string, 0, len(members))
	platforms := make(map[domain.Platform]domain.MarketListing, len(members))
	platformCount := make(map[domain.Platform]int)

	var canonical domain.MarketListing
	var combinedVolume float64
	for _, idx := range members {
		l := listings[idx]
		keys = append(keys, l.Key())
		platformCount[l.Platform]++
		combinedVolume += l.Volume24h

		// One listing per platform in the map; prefer the higher-volume one
		// if a platform somehow contributed multiple cluster members.
		if existing, ok := platforms[l.Platform]; !ok || l.Volume24h > existing.Volume24h {
			platforms[l.Platform] = l
		}
		// Canonical question comes from the highest-volume member.
		if canonical.Question == "" || l.Volume24h > canonical.Volume24h {
			canonical = l
		}
	}

	um := domain.UnifiedMarket{
		UnifiedID:         domain.UnifiedID(keys),
		CanonicalQuestion: canonical.Question,
		Category:          canonical.Category,
		Platforms:         platforms,
		CombinedVolume:    combinedVolume,
		Routing:           make(map[domain.RoutingAction]domain.RoutingRecommendation),
		UpdatedAt:         now,
	}

	if len(platforms) > u.cfg.ClusterSizeCap {
		um.OversizedCluster = true
		u.logger.Warn("cluster exceeds size cap, flagged for review",
			slog.String("unified_id", um.UnifiedID),
			slog.Int("platforms", len(platforms)),
			slog.Int("cap", u.cfg.ClusterSizeCap),
		)
	}

	u.derivePricing(&um, pricingEligible)
	return um
}

// derivePricing computes bestPrice, bestLiquidityPlatform, and routing
// recommendations. "Best" price means cheapest entry for a buyer.
func (u *Unifier) derivePricing(um *domain.UnifiedMarket, pricingEligible map[domain.Platform]bool) {
	eligible := func(p domain.Platform) bool {
		if pricingEligible == nil {
			return true
		}
		return pricingEligible[p]
	}

	var (
		bestYes, bestNo   domain.PlatformPrice
		haveYes, haveNo   bool
		bestLiquidity     float64
		bestLiquidityPlat domain.Platform
	)

	// Deterministic platform iteration.
	plats := make([]domain.Platform, 0, len(um.Platforms))
	for p := range um.Platforms {
		plats = append(plats, p)
	}
	sort.Slice(plats, func(i, j int) bool { return plats[i] < plats[j] })

	for _, p := range plats {
		l := um.Platforms[p]
		if l.Liquidity > bestLiquidity || bestLiquidityPlat == "" {
			bestLiquidity = l.Liquidity
			bestLiquidityPlat = p
		}
		if !eligible(p) {
			continue
		}
		if yes, ok := l.YesPrice(); ok {
			if !haveYes || yes < bestYes.Price {
				bestYes = domain.PlatformPrice{Platform: p, Price: yes}
				haveYes = true
			}
		}
		if no, ok := l.NoPrice(); ok {
			if !haveNo || no < bestNo.Price {
				bestNo = domain.PlatformPrice{Platform: p, Price: no}
				haveNo = true
			}
		}
	}

	um.BestLiquidityPlatform = bestLiquidityPlat
	um.BestPrice = domain.BestPrice{Yes: bestYes, No: bestNo}

	if haveYes {
		um.Routing[domain.RouteBuyYes] = domain.RoutingRecommendation{
			Platform: bestYes.Platform,
			Reason:   fmt.Sprintf("lowest YES price (%.2f) with acceptable liquidity", bestYes.Price),
		}
	}
	if haveNo {
		um.Routing[domain.RouteBuyNo] = domain.RoutingRecommendation{
			Platform: bestNo.Platform,
			Reason:   fmt.Sprintf("lowest NO price (%.2f) with acceptable liquidity", bestNo.Price),
		}
	}
}
