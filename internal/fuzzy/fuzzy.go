// Package fuzzy picks the closest candidate name for a free-text query.
package fuzzy

import "strings"

// Distance returns the edit distance between a and b, where insertion,
// deletion and substitution each cost 1. Strings are compared rune by rune.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	matrix := make([][]int, len(ra)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(rb)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}
	return matrix[len(ra)][len(rb)]
}

// Match is the winning candidate of Closest.
type Match[T any] struct {
	Item     T
	Distance int
}

// Closest returns the item whose lower-cased name is nearest to term. Items
// with an empty name are skipped; ties keep the earliest item. ok is false
// when no item has a name.
func Closest[T any](term string, items []T, name func(T) string) (m Match[T], ok bool) {
	for _, item := range items {
		n := name(item)
		if n == "" {
			continue
		}
		d := Distance(strings.ToLower(n), term)
		if !ok || d < m.Distance {
			m = Match[T]{Item: item, Distance: d}
			ok = true
		}
	}
	return m, ok
}
