// Package fuzzy ranks candidate names against a free-text query using a
// token-order-insensitive similarity score in the range 0-100.
package fuzzy

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Match is one candidate that survived the score cutoff.
type Match struct {
	Choice string
	Score  int
	Index  int // position of the first occurrence in the input choices
}

// Process lower-cases s, replaces every non-alphanumeric rune with a space
// and collapses runs of whitespace.
func Process(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// sortTokens processes s and returns its tokens sorted and re-joined.
func sortTokens(s string) string {
	tokens := strings.Fields(Process(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// Ratio is the normalized Indel similarity of a and b, taken verbatim:
// 100 * (1 - (insertions + deletions) / (len(a) + len(b))).
// Two empty strings score 0.
func Ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	dist := total - 2*lcs(ra, rb)
	return int(math.Round(100 * (1 - float64(dist)/float64(total))))
}

// TokenSortRatio scores a against b after processing both and sorting their
// tokens, so word order does not affect the result.
func TokenSortRatio(a, b string) int {
	sa, sb := sortTokens(a), sortTokens(b)
	if sa == "" || sb == "" {
		return 0
	}
	return Ratio(sa, sb)
}

// Extract scores query against every unique choice and returns the ones scoring
// at least cutoff, best first. Ties keep input order. limit <= 0 disables the cap.
func Extract(query string, choices []string, cutoff, limit int) []Match {
	q := sortTokens(query)
	if q == "" {
		return nil
	}

	seen := make(map[string]struct{}, len(choices))
	var matches []Match
	for i, choice := range choices {
		if _, dup := seen[choice]; dup {
			continue
		}
		seen[choice] = struct{}{}

		c := sortTokens(choice)
		if c == "" {
			continue
		}
		score := Ratio(q, c)
		if score < cutoff {
			continue
		}
		matches = append(matches, Match{Choice: choice, Score: score, Index: i})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// lcs returns the length of the longest common subsequence of a and b.
func lcs(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(curr[j-1], prev[j])
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
