package types

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/ZanzyTHEbar/cinecritic/internal/database"
	"github.com/ZanzyTHEbar/cinecritic/internal/scoring"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator. Field names in errors use json tags.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks v against its validate tags
func Validate(v interface{}) error {
	return Validator().Struct(v)
}

// CreateTitleRequest adds a title by hand
type CreateTitleRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	MediaType string `json:"media_type" validate:"required,oneof=movie tv"`
	Year      int    `json:"year" validate:"omitempty,min=1870,max=2100"`
	PosterURL string `json:"poster_url" validate:"omitempty,url,max=500"`
	Overview  string `json:"overview" validate:"max=4000"`
}

// ImportTitleRequest pulls a title from the metadata catalog
type ImportTitleRequest struct {
	MediaType  string `json:"media_type" validate:"required,oneof=movie tv"`
	ExternalID string `json:"external_id" validate:"required,numeric,max=20"`
}

// CreateCriterionRequest adds a category, or a sub-criterion when ParentID is set
type CreateCriterionRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Weight   int     `json:"weight" validate:"min=0,max=100"`
	ParentID *string `json:"parent_id" validate:"omitempty,uuid"`
}

// UpdateWeightRequest changes a criterion weight
type UpdateWeightRequest struct {
	Weight *int `json:"weight" validate:"required,min=0,max=100"`
}

// ScoreValue is one rating inside an evaluation
type ScoreValue struct {
	CriteriaID string   `json:"criteria_id" validate:"required,uuid"`
	Value      *float64 `json:"value" validate:"required,min=0,max=5"`
}

// SubmitEvaluationRequest records one evaluation pass for a title
type SubmitEvaluationRequest struct {
	EntityID string       `json:"entity_id" validate:"required,uuid"`
	Notes    string       `json:"notes" validate:"max=10000"`
	Scores   []ScoreValue `json:"scores" validate:"required,min=1,max=200,dive"`
}

// ComputeRequest asks for a live score computation
type ComputeRequest struct {
	EntityIDs        []string `json:"entity_ids" validate:"omitempty,max=500,dive,required"`
	IncludeBreakdown *bool    `json:"include_breakdown"`
	PresetID         string   `json:"preset_id" validate:"omitempty,uuid"`
}

// WantBreakdown defaults to true when the field is absent
func (r ComputeRequest) WantBreakdown() bool {
	return r.IncludeBreakdown == nil || *r.IncludeBreakdown
}

// CreatePresetRequest stores a named set of criterion weights
type CreatePresetRequest struct {
	Name    string         `json:"name" validate:"required,max=100"`
	Weights map[string]int `json:"weights" validate:"required,min=1,dive,keys,required,endkeys,min=0,max=100"`
}

// LoginRequest exchanges the admin password for a token
type LoginRequest struct {
	Password string `json:"password" validate:"required,max=256"`
}

// LoginResponse carries the issued admin token
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// TitleScore is a title with its cached score. Score is nil until the title is rated.
type TitleScore struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	MediaType string                  `json:"media_type"`
	Year      int                     `json:"year,omitempty"`
	PosterURL string                  `json:"poster_url,omitempty"`
	Score     *float64                `json:"score"`
	Breakdown []scoring.CategoryScore `json:"breakdown"`
}

// TitleDetail is a title page: the scored title plus its evaluation passes
type TitleDetail struct {
	TitleScore
	Overview    string                `json:"overview,omitempty"`
	ExternalID  string                `json:"external_id,omitempty"`
	Evaluations []database.Evaluation `json:"evaluations"`
}

// SearchResult is a title matched by a search query
type SearchResult struct {
	TitleScore
	Match float64 `json:"match"`
}

// ComputeResponse is a live computation. Unrated titles are absent from
// Weighted, but every requested title has a Breakdown entry, empty when the
// breakdown was not asked for.
type ComputeResponse struct {
	Weighted  map[string]float64                 `json:"weighted"`
	Breakdown map[string][]scoring.CategoryScore `json:"breakdown"`
}

// CriterionNode is a category with its sub-criteria
type CriterionNode struct {
	database.Criterion
	Subs []database.Criterion `json:"subs"`
}

// CriteriaTree is the criteria hierarchy. Orphans are sub-criteria whose
// category is gone; they never count toward a score.
type CriteriaTree struct {
	Categories []CriterionNode      `json:"categories"`
	Orphans    []database.Criterion `json:"orphans,omitempty"`
}

// RecomputeResponse reports a full recompute
type RecomputeResponse struct {
	Scored     int   `json:"scored"`
	DurationMS int64 `json:"duration_ms"`
}

// BuildCriteriaTree groups stored criteria under their categories, keeping
// stored order inside every group
func BuildCriteriaTree(criteria []database.Criterion) CriteriaTree {
	byID := make(map[string]database.Criterion, len(criteria))
	flat := make([]scoring.Criterion, len(criteria))
	for i, c := range criteria {
		byID[c.ID] = c
		flat[i] = c.ToScoring()
	}

	tree := scoring.Partition(flat)
	out := CriteriaTree{Categories: make([]CriterionNode, 0, len(tree.Categories))}
	for _, cat := range tree.Categories {
		node := CriterionNode{Criterion: byID[cat.ID], Subs: []database.Criterion{}}
		for _, sub := range tree.Subs[cat.ID] {
			node.Subs = append(node.Subs, byID[sub.ID])
		}
		out.Categories = append(out.Categories, node)
	}
	for _, o := range tree.Orphans {
		out.Orphans = append(out.Orphans, byID[o.ID])
	}
	return out
}
