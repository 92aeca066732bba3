package match

import (
	"regexp"
	"sort"
	"strings"
)

// eventKeywords is the fixed vocabulary of event terms compared as a set
// between listings. Lowercase.
var eventKeywords = map[string]struct{}{
	"election":     {},
	"presidential": {},
	"president":    {},
	"senate":       {},
	"governor":     {},
	"congress":     {},
	"championship": {},
	"superbowl":    {},
	"playoffs":     {},
	"olympics":     {},
	"finals":       {},
	"cup":          {},
	"oscars":       {},
	"nobel":        {},
	"grammys":      {},
	"recession":    {},
	"inflation":    {},
	"bitcoin":      {},
	"ethereum":     {},
	"halving":      {},
	"impeachment":  {},
	"shutdown":     {},
	"ceasefire":    {},
	"ipo":          {},
	"merger":       {},
}

// leadingAuxiliaries are capitalized sentence starters that are not names.
var leadingAuxiliaries = map[string]struct{}{
	"will": {}, "who": {}, "what": {}, "when": {}, "which": {}, "how": {},
	"does": {}, "is": {}, "are": {}, "can": {}, "should": {}, "would": {},
	"the": {}, "a": {}, "an": {}, "by": {}, "in": {}, "on": {}, "before": {},
	"after": {}, "if": {},
}

var (
	nameTokenRe = regexp.MustCompile(`^[A-Z][A-Za-z0-9'.-]*$`)
	yearRe      = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	monthDayRe  = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}\b`)
	nonAlnumRe  = regexp.MustCompile(`[^a-z0-9\s]`)
)

// entities is the extracted entity view of one question string. All values
// are lowercase.
type entities struct {
	names    map[string]struct{}
	dates    map[string]struct{}
	keywords map[string]struct{}
}

// extractEntities pulls capitalized name tokens, calendar dates/years, and
// event-vocabulary keywords out of a question string.
func extractEntities(question string) entities {
	e := entities{
		names:    make(map[string]struct{}),
		dates:    make(map[string]struct{}),
		keywords: make(map[string]struct{}),
	}

	for _, y := range yearRe.FindAllString(question, -1) {
		e.dates[y] = struct{}{}
	}
	for _, d := range monthDayRe.FindAllString(question, -1) {
		e.dates[strings.ToLower(d)] = struct{}{}
	}

	for _, tok := range strings.Fields(question) {
		trimmed := strings.Trim(tok, "?!.,:;\"()")
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if _, ok := eventKeywords[lower]; ok {
			e.keywords[lower] = struct{}{}
			continue
		}
		if !nameTokenRe.MatchString(trimmed) {
			continue
		}
		if _, aux := leadingAuxiliaries[lower]; aux {
			continue
		}
		if yearRe.MatchString(trimmed) {
			continue // already captured as a date
		}
		e.names[lower] = struct{}{}
	}
	return e
}

// pooled returns every entity as one set, used for union overlap scoring.
func (e entities) pooled() map[string]struct{} {
	out := make(map[string]struct{}, len(e.names)+len(e.dates)+len(e.keywords))
	for k := range e.names {
		out[k] = struct{}{}
	}
	for k := range e.dates {
		out[k] = struct{}{}
	}
	for k := range e.keywords {
		out[k] = struct{}{}
	}
	return out
}

// normalizeQuestion lowercases, strips punctuation, and collapses whitespace
// so edit-distance comparisons are not dominated by formatting.
func normalizeQuestion(q string) string {
	q = strings.ToLower(q)
	q = nonAlnumRe.ReplaceAllString(q, " ")
	return strings.Join(strings.Fields(q), " ")
}

// setOverlap is the Jaccard coefficient of two sets. Empty-vs-empty is 1;
// empty-vs-nonempty is 0.
func setOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// intersectKeys returns the sorted intersection of two sets, used to report
// which entities drove a match.
func intersectKeys(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
