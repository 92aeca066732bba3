// Package match scores pairwise similarity between listings from different
// platforms and produces the match candidates that drive unification.
package match

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

// Composite score weights. Text carries most of the signal; entity overlap
// separates listings that share phrasing but describe different events;
// temporal proximity penalizes end times far apart.
const (
	weightText     = 0.45
	weightEntities = 0.40
	weightTemporal = 0.15
)

// Config holds the matching thresholds.
type Config struct {
	SimilarThreshold   float64       // candidate floor
	IdenticalThreshold float64       // strong-match floor
	AmbiguousLow       float64       // low edge of the audit band
	AmbiguousHigh      float64       // high edge of the audit band
	EndTimeTolerance   time.Duration // end-time gap treated as "same event window"
}

// Matcher computes cross-platform match candidates.
type Matcher struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Matcher. Zero thresholds fall back to the conventional
// 0.85/0.95 pair with a 0.83-0.87 ambiguity band and 72h tolerance.
func New(cfg Config, logger *slog.Logger) *Matcher {
	if cfg.SimilarThreshold == 0 {
		cfg.SimilarThreshold = 0.85
	}
	if cfg.IdenticalThreshold == 0 {
		cfg.IdenticalThreshold = 0.95
	}
	if cfg.AmbiguousLow == 0 {
		cfg.AmbiguousLow = 0.83
	}
	if cfg.AmbiguousHigh == 0 {
		cfg.AmbiguousHigh = 0.87
	}
	if cfg.EndTimeTolerance == 0 {
		cfg.EndTimeTolerance = 72 * time.Hour
	}
	return &Matcher{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "matcher")),
	}
}

// Match computes candidates for every pair of listings from different
// platforms within the same (or unset) category. Pairs scoring at or above
// the similar threshold qualify; pairs inside the ambiguity band below the
// threshold are retained as low-confidence candidates for auditability
// rather than silently dropped. Scoring is symmetric and never pairs two
// listings from the same platform.
func (m *Matcher) Match(listingsByPlatform map[domain.Platform][]domain.MarketListing) []domain.MatchCandidate {
	platforms := make([]domain.Platform, 0, len(listingsByPlatform))
	for p := range listingsByPlatform {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })

	var candidates []domain.MatchCandidate
	for i := 0; i < len(platforms); i++ {
		for j := i + 1; j < len(platforms); j++ {
			for _, a := range listingsByPlatform[platforms[i]] {
				for _, b := range listingsByPlatform[platforms[j]] {
					if !categoriesCompatible(a.Category, b.Category) {
						continue
					}
					score, ents := m.Score(a, b)
					if score < m.cfg.AmbiguousLow {
						continue
					}
					ambiguous := score >= m.cfg.AmbiguousLow && score <= m.cfg.AmbiguousHigh
					if score < m.cfg.SimilarThreshold && !ambiguous {
						continue
					}
					cand := domain.MatchCandidate{
						A:          a,
						B:          b,
						Confidence: score,
						Strong:     score >= m.cfg.IdenticalThreshold,
						Ambiguous:  ambiguous,
						Entities:   ents,
					}
					if ambiguous {
						m.logger.Info("ambiguous match retained for review",
							slog.String("a", a.Key()),
							slog.String("b", b.Key()),
							slog.Float64("confidence", score),
						)
					}
					candidates = append(candidates, cand)
				}
			}
		}
	}
	return candidates
}

// Qualifies reports whether a candidate clears the similar threshold, i.e.
// whether it may contribute a clustering edge. Ambiguous sub-threshold
// candidates are retained but never cluster.
func (m *Matcher) Qualifies(c domain.MatchCandidate) bool {
	return c.Confidence >= m.cfg.SimilarThreshold
}

// Score computes the composite similarity of two listings together with the
// entities they share. Score(a,b) == Score(b,a) by construction.
func (m *Matcher) Score(a, b domain.MarketListing) (float64, domain.MatchedEntities) {
	entsA := extractEntities(a.Question)
	entsB := extractEntities(b.Question)

	text := textSimilarity(a.Question, b.Question)
	entity := setOverlap(entsA.pooled(), entsB.pooled())
	temporal := m.temporalProximity(a.EndTime, b.EndTime)

	score := weightText*text + weightEntities*entity + weightTemporal*temporal
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	matched := domain.MatchedEntities{
		Names:    intersectKeys(entsA.names, entsB.names),
		Dates:    intersectKeys(entsA.dates, entsB.dates),
		Keywords: intersectKeys(entsA.keywords, entsB.keywords),
	}
	return score, matched
}

// textSimilarity combines normalized Levenshtein similarity with token
// containment. Containment handles the common case of one platform phrasing
// the same question with extra qualifiers ("Will X win?" vs "Will X win the
// election?").
func textSimilarity(qa, qb string) float64 {
	na, nb := normalizeQuestion(qa), normalizeQuestion(qb)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	dist := levenshtein.ComputeDistance(na, nb)
	maxLen := math.Max(float64(len(na)), float64(len(nb)))
	levSim := 1 - float64(dist)/maxLen

	containment := tokenContainment(na, nb)

	return math.Max(levSim, containment)
}

// tokenContainment is |A∩B| / min(|A|,|B|) over whitespace tokens.
func tokenContainment(na, nb string) float64 {
	ta, tb := strings.Fields(na), strings.Fields(nb)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(ta))
	for _, t := range ta {
		setA[t] = struct{}{}
	}
	inter := 0
	seen := make(map[string]struct{}, len(tb))
	for _, t := range tb {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := setA[t]; ok {
			inter++
		}
	}
	minLen := len(setA)
	if len(seen) < minLen {
		minLen = len(seen)
	}
	return float64(inter) / float64(minLen)
}

// temporalProximity is 1 when either end time is unknown or both fall
// within the tolerance window, decaying linearly to 0 as the gap grows to
// four times the tolerance.
func (m *Matcher) temporalProximity(a, b *time.Time) float64 {
	if a == nil || b == nil {
		return 1
	}
	gap := a.Sub(*b)
	if gap < 0 {
		gap = -gap
	}
	tol := m.cfg.EndTimeTolerance
	if gap <= tol {
		return 1
	}
	excess := float64(gap-tol) / float64(3*tol)
	if excess >= 1 {
		return 0
	}
	return 1 - excess
}

// categoriesCompatible allows pairs in the same category or with either
// category unset.
func categoriesCompatible(a, b string) bool {
	return a == "" || b == "" || a == b
}
