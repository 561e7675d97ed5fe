package catalog

import (
	"sort"
	"strings"
)

// Rank orders entries best-first against the query: exact matches on
// collector number and set code dominate, ties break on edit distance
// between the names, then on name for a stable order.
func Rank(q Query, entries []Entry) []Entry {
	type scored struct {
		entry Entry
		exact int
		dist  int
	}
	ranked := make([]scored, 0, len(entries))
	for _, e := range entries {
		s := scored{entry: e, dist: levenshtein(normalize(q.Name), normalize(e.Name))}
		if q.Number != "" && strings.EqualFold(q.Number, e.Number) {
			s.exact += 2
		}
		if q.SetCode != "" && strings.EqualFold(q.SetCode, e.SetCode) {
			s.exact++
		}
		ranked = append(ranked, s)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].exact != ranked[j].exact {
			return ranked[i].exact > ranked[j].exact
		}
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		return ranked[i].entry.Name < ranked[j].entry.Name
	})

	out := make([]Entry, len(ranked))
	for i, s := range ranked {
		out[i] = s.entry
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// levenshtein computes the edit distance between two strings.
// Inputs are short card names, so the quadratic table is fine.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

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
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
