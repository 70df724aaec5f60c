package catalog

import (
	"sort"
	"strings"
)

// FindSimilarSlugs ranks registered slugs against input for "did you mean" hints.
//
// Scoring: +10 when the entry's category prefixes the input, +5 when the slug
// starts with the input, +3 when the slug contains it and +2 when the
// description contains it. Only positive scores are returned, best first.
func FindSimilarSlugs(input string, limit int) []string {
	if limit <= 0 {
		limit = 3
	}
	needle := strings.ToLower(strings.TrimSpace(input))
	if needle == "" {
		return nil
	}

	type scored struct {
		slug  string
		score int
	}
	var candidates []scored
	for _, slug := range slugs {
		def := registry[slug]
		score := 0
		if strings.HasPrefix(needle, def.Category) {
			score += 10
		}
		if strings.HasPrefix(slug, needle) {
			score += 5
		}
		if strings.Contains(slug, needle) {
			score += 3
		}
		if strings.Contains(strings.ToLower(def.Description), needle) {
			score += 2
		}
		if score > 0 {
			candidates = append(candidates, scored{slug: slug, score: score})
		}
	}

	// slugs is sorted, so a stable sort keeps ties in lexical order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	result := make([]string, len(candidates))
	for i, c := range candidates {
		result[i] = c.slug
	}
	return result
}
