package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/cinecritic/internal/database"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Amélie", "amelie"},
		{"  The   Godfather\tPart II ", "the godfather part ii"},
		{"ŠKODA", "skoda"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 1.0, Similarity("heat", "heat"))
	assert.Equal(t, 0.75, Similarity("heat", "heal"))
	assert.Equal(t, 0.0, Similarity("abc", "xyz"))
	assert.InDelta(t, 0.8, Similarity("café", "cafés"), 1e-9)
}

func catalog() []database.Title {
	names := []string{"Amélie", "Alien", "Aliens", "The Godfather", "Godzilla", "Heat", "Dark"}
	out := make([]database.Title, len(names))
	for i, n := range names {
		out[i] = database.Title{ID: n, Name: n}
	}
	return out
}

func namesOf(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Title.Name
	}
	return out
}

func TestRank(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"exact before prefix", "alien", []string{"Alien", "Aliens"}},
		{"accent insensitive", "AMELIE", []string{"Amélie"}},
		{"substring", "father", []string{"The Godfather"}},
		{"typo matches a word", "godfathr", []string{"The Godfather"}},
		{"no match", "zzzz", []string{}},
		{"blank query", "   ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, namesOf(Rank(tt.query, catalog(), 0)))
		})
	}
}

func TestRank_LiteralBeatsFuzzy(t *testing.T) {
	titles := []database.Title{{ID: "1", Name: "Hear"}, {ID: "2", Name: "Heat Wave"}}
	got := Rank("heat", titles, 10)
	require.Len(t, got, 2)
	assert.Equal(t, "Heat Wave", got[0].Title.Name)
	assert.Less(t, got[1].Score, substrScore)
}

func TestRank_Limit(t *testing.T) {
	titles := make([]database.Title, 80)
	for i := range titles {
		titles[i] = database.Title{ID: string(rune('a' + i%26)), Name: "Star"}
	}
	assert.Len(t, Rank("star", titles, 3), 3)
	assert.Len(t, Rank("star", titles, 0), DefaultLimit)
	assert.Len(t, Rank("star", titles, 500), MaxLimit)
}
