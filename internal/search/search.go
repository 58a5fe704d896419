package search

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ZanzyTHEbar/cinecritic/internal/database"
)

const (
	// MinSimilarity is the lowest fuzzy similarity that still counts as a match
	MinSimilarity = 0.6

	DefaultLimit = 20
	MaxLimit     = 50

	exactScore  = 1.0
	prefixScore = 0.95
	substrScore = 0.9
	// fuzzy matches are capped below every literal match
	fuzzyCeiling = 0.85
)

var foldCaser = cases.Fold()

// Match is a title that matched a query
type Match struct {
	Title database.Title `json:"title"`
	Score float64        `json:"score"`
}

// Normalize folds case and accents and collapses whitespace
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(foldCaser.String(stripped)), " ")
}

// Similarity is 1 minus the edit distance over the longer rune length
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	sim := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
	if sim < 0 {
		return 0
	}
	return sim
}

// NormalizeLimit applies the default and the ceiling
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Rank returns titles matching query, best first. Literal matches rank above
// fuzzy ones; equal scores are ordered by name.
func Rank(query string, titles []database.Title, limit int) []Match {
	q := Normalize(query)
	if q == "" {
		return []Match{}
	}

	matches := make([]Match, 0)
	for _, t := range titles {
		if score, ok := matchScore(q, Normalize(t.Name)); ok {
			matches = append(matches, Match{Title: t, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return Normalize(matches[i].Title.Name) < Normalize(matches[j].Title.Name)
	})

	if limit = NormalizeLimit(limit); len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func matchScore(q, name string) (float64, bool) {
	switch {
	case name == q:
		return exactScore, true
	case strings.HasPrefix(name, q):
		return prefixScore, true
	case strings.Contains(name, q):
		return substrScore, true
	}

	best := Similarity(q, name)
	words := strings.Fields(name)
	qWords := len(strings.Fields(q))

	// compare against every run of words as long as the query
	for i := 0; i+qWords <= len(words); i++ {
		if sim := Similarity(q, strings.Join(words[i:i+qWords], " ")); sim > best {
			best = sim
		}
	}

	if best < MinSimilarity {
		return 0, false
	}
	return best * fuzzyCeiling, true
}
