package ui

import (
	"sort"
	"strings"
)

// Suggest returns up to three candidates within edit distance 3 of target, closest first.
// Matching ignores case.
func Suggest(target string, candidates []string) []string {
	type match struct {
		value    string
		distance int
	}

	var matches []match
	lower := strings.ToLower(target)
	for _, candidate := range candidates {
		if d := distance(lower, strings.ToLower(candidate)); d <= 3 {
			matches = append(matches, match{candidate, d})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	out := make([]string, 0, 3)
	for i := 0; i < len(matches) && i < 3; i++ {
		out = append(out, matches[i].value)
	}
	return out
}

// distance is the Levenshtein distance over runes
func distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
