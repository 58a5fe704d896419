package scoring

// Criterion is one node of the two-level criteria tree. A nil ParentID marks
// a top-level category; anything else is a sub-criterion of that category.
type Criterion struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Weight   int     `json:"weight"`
	ParentID *string `json:"parent_id,omitempty"`
}

// IsCategory reports whether the criterion is a top-level category
func (c Criterion) IsCategory() bool {
	return c.ParentID == nil
}

// EvaluationPass is one round of ratings for one entity
type EvaluationPass struct {
	ID       string `json:"id"`
	EntityID string `json:"entity_id"`
}

// RawScore is a single sub-criterion rating inside an evaluation pass
type RawScore struct {
	EvaluationPassID string  `json:"evaluation_id"`
	CriteriaID       string  `json:"criteria_id"`
	Value            float64 `json:"value"`
}

// CategoryScore is one entry of an entity's breakdown
type CategoryScore struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Options controls which entities are scored and whether breakdowns are built.
// A nil EntityIDs means every entity with at least one evaluation pass; a
// non-nil slice restricts the computation to exactly those ids.
type Options struct {
	EntityIDs        []string
	IncludeBreakdown bool
}

// DefaultOptions scores every evaluated entity and builds breakdowns
func DefaultOptions() Options {
	return Options{IncludeBreakdown: true}
}

// Result holds the two output maps. Weighted omits entities that could not
// be resolved; Breakdown has a (possibly empty) entry for every scored entity.
type Result struct {
	Weighted  map[string]float64         `json:"weighted"`
	Breakdown map[string][]CategoryScore `json:"breakdown"`
}

// Score returns the overall score for an entity and whether it was resolved
func (r Result) Score(entityID string) (float64, bool) {
	v, ok := r.Weighted[entityID]
	return v, ok
}
