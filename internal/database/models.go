package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/cinecritic/internal/scoring"
)

// Media types stored on titles
const (
	MediaTypeMovie = "movie"
	MediaTypeTV    = "tv"
)

// ValidMediaType reports whether t is a stored media type
func ValidMediaType(t string) bool {
	return t == MediaTypeMovie || t == MediaTypeTV
}

// Title is a movie or TV show that can be evaluated
type Title struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	MediaType  string    `json:"media_type" db:"media_type"`
	Year       int       `json:"year,omitempty" db:"year"`
	PosterURL  string    `json:"poster_url,omitempty" db:"poster_url"`
	Overview   string    `json:"overview,omitempty" db:"overview"`
	ExternalID string    `json:"external_id,omitempty" db:"external_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Criterion is a stored category or sub-criterion
type Criterion struct {
	ID       string  `json:"id" db:"id"`
	Name     string  `json:"name" db:"name"`
	Weight   int     `json:"weight" db:"weight"`
	ParentID *string `json:"parent_id" db:"parent_id"`
	Position int     `json:"position" db:"position"`
}

// ToScoring converts the row into the aggregator's input type
func (c Criterion) ToScoring() scoring.Criterion {
	return scoring.Criterion{ID: c.ID, Name: c.Name, Weight: c.Weight, ParentID: c.ParentID}
}

// Evaluation is one review pass over a title
type Evaluation struct {
	ID        string    `json:"id" db:"id"`
	EntityID  string    `json:"entity_id" db:"entity_id"`
	Notes     string    `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Scores    []Score   `json:"scores,omitempty" db:"-"`
}

// Score is one sub-criterion rating recorded in an evaluation
type Score struct {
	EvaluationID string  `json:"evaluation_id" db:"evaluation_id"`
	CriteriaID   string  `json:"criteria_id" db:"criteria_id"`
	Value        float64 `json:"value" db:"value"`
}

// ScoreInput is a rating submitted with a new evaluation
type ScoreInput struct {
	CriteriaID string  `json:"criteria_id"`
	Value      float64 `json:"value"`
}

// CachedScore is a persisted aggregator result for one title.
// Score is nil when the title has evaluations but nothing resolvable.
type CachedScore struct {
	EntityID   string                  `json:"entity_id" db:"entity_id"`
	Score      *float64                `json:"score" db:"score"`
	Breakdown  []scoring.CategoryScore `json:"breakdown" db:"breakdown"`
	ComputedAt time.Time               `json:"computed_at" db:"computed_at"`
}

// ScoredTitle joins a cached score with its title for ranking
type ScoredTitle struct {
	EntityID  string  `json:"entity_id"`
	Name      string  `json:"name"`
	MediaType string  `json:"media_type"`
	Year      int     `json:"year,omitempty"`
	Score     float64 `json:"score"`
}

// BestOfEntry is one row of a persisted ranking
type BestOfEntry struct {
	MediaType  string    `json:"media_type" db:"media_type"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	Name       string    `json:"name" db:"-"`
	Year       int       `json:"year,omitempty" db:"-"`
	Rank       int       `json:"rank" db:"rank"`
	Score      float64   `json:"score" db:"score"`
	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}

// Preset is a named set of criterion weight overrides
type Preset struct {
	ID        string         `json:"id" db:"id"`
	Name      string         `json:"name" db:"name"`
	Weights   map[string]int `json:"weights" db:"weights"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// NewTitle creates a title with a generated ID
func NewTitle(name, mediaType string, year int) *Title {
	now := time.Now().UTC()
	return &Title{
		ID:        uuid.New().String(),
		Name:      name,
		MediaType: mediaType,
		Year:      year,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewCriterion creates a criterion with a generated ID
func NewCriterion(name string, weight int, parentID *string) *Criterion {
	return &Criterion{
		ID:       uuid.New().String(),
		Name:     name,
		Weight:   weight,
		ParentID: parentID,
	}
}

// NewEvaluation creates an evaluation with a generated ID
func NewEvaluation(entityID, notes string) *Evaluation {
	return &Evaluation{
		ID:        uuid.New().String(),
		EntityID:  entityID,
		Notes:     notes,
		CreatedAt: time.Now().UTC(),
	}
}

// NewPreset creates a preset with a generated ID
func NewPreset(name string, weights map[string]int) *Preset {
	return &Preset{
		ID:        uuid.New().String(),
		Name:      name,
		Weights:   weights,
		CreatedAt: time.Now().UTC(),
	}
}
