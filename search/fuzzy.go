package search

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"
)

// Matcher compares a normalized query against a normalized field value.
// score is in [0,1], 0 being an exact match; ok is false when the field does not
// match within the matcher's threshold.
type Matcher interface {
	Match(query, field string) (score float64, ok bool)
}

// EditDistanceMatcher accepts a field when some substring of it is within
// Threshold*len(query) edits of the query. Where the substring starts does not
// affect the score.
type EditDistanceMatcher struct {
	Threshold float64
}

// Match implements Matcher
func (m EditDistanceMatcher) Match(query, field string) (float64, bool) {
	pattern := []rune(query)
	if len(pattern) == 0 {
		return 1, false
	}

	maxErrors := int(m.Threshold*float64(len(pattern)) + 1e-9)
	dist, ok := substringDistance(pattern, []rune(field), maxErrors)
	if !ok {
		return 1, false
	}

	score := float64(dist) / float64(len(pattern))
	return score, true
}

// substringDistance returns the smallest edit distance between pattern and any
// substring of text (Sellers' algorithm). It gives up as soon as every cell of a
// row exceeds maxErrors, since row minimums never decrease.
func substringDistance(pattern, text []rune, maxErrors int) (int, bool) {
	prev := make([]int, len(text)+1) // row 0: a match may start anywhere
	cur := make([]int, len(text)+1)

	for i := 1; i <= len(pattern); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(text); j++ {
			cost := 1
			if pattern[i-1] == text[j-1] {
				cost = 0
			}
			best := prev[j-1] + cost
			if v := prev[j] + 1; v < best {
				best = v
			}
			if v := cur[j-1] + 1; v < best {
				best = v
			}
			cur[j] = best
			if best < rowMin {
				rowMin = best
			}
		}
		if rowMin > maxErrors {
			return rowMin, false
		}
		prev, cur = cur, prev
	}

	best := prev[0]
	for _, v := range prev[1:] {
		if v < best {
			best = v
		}
	}
	return best, best <= maxErrors
}

// SubsequenceMatcher accepts a field containing every query character in order,
// fzf style. The score grows with the gaps between matched characters.
type SubsequenceMatcher struct {
	Threshold float64
}

// Match implements Matcher
func (m SubsequenceMatcher) Match(query, field string) (float64, bool) {
	if query == "" {
		return 1, false
	}

	matches := fuzzy.Find(query, []string{field})
	if len(matches) == 0 || len(matches[0].MatchedIndexes) == 0 {
		return 1, false
	}

	idx := matches[0].MatchedIndexes
	span := idx[len(idx)-1] - idx[0] + 1
	queryLen := utf8.RuneCountInString(query)
	if span < queryLen {
		span = queryLen
	}

	score := 1 - float64(queryLen)/float64(span)
	return score, score <= m.Threshold
}

// MatcherFor returns the named matcher ("edit" or "subsequence") accepting
// scores up to threshold.
func MatcherFor(name string, threshold float64) (Matcher, error) {
	switch strings.ToLower(name) {
	case "", "edit":
		return EditDistanceMatcher{Threshold: threshold}, nil
	case "subsequence":
		return SubsequenceMatcher{Threshold: threshold}, nil
	default:
		return nil, fmt.Errorf("unknown search matcher: %s", name)
	}
}
