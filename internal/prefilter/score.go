package prefilter

import (
	"sort"
	"strings"

	"shelfscan/internal/catalog"
)

const (
	// DefaultMinScore drops candidates too weak to be worth a vision call.
	DefaultMinScore = 0.35
	// DefaultMaxCandidates bounds how many candidates advance to matching.
	DefaultMaxCandidates = 10

	brandWeight    = 0.45
	nameWeight     = 0.45
	retailerWeight = 0.10
)

// Query carries the extracted fields the scorer compares candidates against.
type Query struct {
	Brand    string
	Name     string
	Size     string
	Retailer string
}

// Scored pairs a catalog product with its composite pre-filter score.
type Scored struct {
	Product catalog.Product
	Score   float64
}

// Rank scores every candidate against the query and returns at most
// maxCandidates survivors ordered by descending score. Ties keep the
// catalog's original order so ranking is deterministic. Candidates below
// minScore are dropped even when fewer than maxCandidates remain.
func Rank(query Query, candidates []catalog.Product, maxCandidates int, minScore float64) []Scored {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	scored := make([]Scored, 0, len(candidates))
	for _, candidate := range candidates {
		score := Score(query, candidate)
		if score < minScore {
			continue
		}
		scored = append(scored, Scored{Product: candidate, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > maxCandidates {
		scored = scored[:maxCandidates]
	}
	return scored
}

// Score computes the composite similarity between the query and a candidate.
// Brand closeness and name token overlap carry most of the weight; retailer
// consistency is a small bonus that contributes zero when either side has no
// retailer, never a penalty.
func Score(query Query, candidate catalog.Product) float64 {
	name := candidate.Name
	if candidate.Size != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(candidate.Size)) {
		name = name + " " + candidate.Size
	}
	queryName := query.Name
	if query.Size != "" {
		queryName = queryName + " " + query.Size
	}

	score := brandWeight*brandScore(query.Brand, candidate.Brand) +
		nameWeight*tokenOverlap(queryName, name)

	if query.Retailer != "" && candidate.Retailer != "" &&
		Normalize(query.Retailer) == Normalize(candidate.Retailer) {
		score += retailerWeight
	}
	return score
}

// brandScore compares brand strings after normalization. Exact matches score
// full marks, containment catches house-brand prefixes, and anything else
// falls back to token overlap.
func brandScore(extracted, candidate string) float64 {
	a := Normalize(extracted)
	b := Normalize(candidate)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.7
	}
	return tokenOverlap(extracted, candidate)
}

// tokenOverlap is the Jaccard similarity of the two strings' token sets.
func tokenOverlap(a, b string) float64 {
	tokensA := Tokens(a)
	tokensB := Tokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(tokensA))
	for _, token := range tokensA {
		setA[token] = struct{}{}
	}
	setB := make(map[string]struct{}, len(tokensB))
	for _, token := range tokensB {
		setB[token] = struct{}{}
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
