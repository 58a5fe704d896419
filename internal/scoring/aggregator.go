package scoring

import "sort"

const (
	// MaxBreakdown is the number of categories kept per entity breakdown
	MaxBreakdown = 3

	overallPlaces   = 2
	breakdownPlaces = 1
)

// Tree is the criteria list split into categories and their sub-criteria
type Tree struct {
	Categories []Criterion
	Subs       map[string][]Criterion // keyed by category id
	Orphans    []Criterion            // subs whose parent is not a category
}

// Partition splits a flat criteria list into categories and subs-by-parent.
// Input order is preserved inside every group.
func Partition(criteria []Criterion) Tree {
	tree := Tree{Subs: make(map[string][]Criterion)}
	categoryIDs := make(map[string]struct{})

	for _, c := range criteria {
		if c.IsCategory() {
			tree.Categories = append(tree.Categories, c)
			categoryIDs[c.ID] = struct{}{}
		}
	}

	for _, c := range criteria {
		if c.IsCategory() {
			continue
		}
		if _, ok := categoryIDs[*c.ParentID]; !ok {
			tree.Orphans = append(tree.Orphans, c)
			continue
		}
		tree.Subs[*c.ParentID] = append(tree.Subs[*c.ParentID], c)
	}

	return tree
}

type resolvedCategory struct {
	name   string
	weight int
	value  float64
}

// ComputeWeightedScores aggregates raw sub-criterion ratings into one overall
// score per entity and a ranked breakdown of its strongest categories.
//
// Sub-criteria are averaged across all of an entity's evaluation passes, then
// weighted into category values, then categories are weighted into the overall
// score. Anything without data or with a non-positive weight is left out of
// both numerator and denominator; an entity with nothing resolvable is absent
// from Weighted. Rounding happens only on the final values.
func ComputeWeightedScores(criteria []Criterion, evaluations []EvaluationPass, scores []RawScore, opts Options) Result {
	tree := Partition(criteria)

	var allowed map[string]struct{}
	if opts.EntityIDs != nil {
		allowed = make(map[string]struct{}, len(opts.EntityIDs))
		for _, id := range opts.EntityIDs {
			allowed[id] = struct{}{}
		}
	}

	passesByEntity := make(map[string][]string)
	var evaluated []string
	for _, ev := range evaluations {
		if allowed != nil {
			if _, ok := allowed[ev.EntityID]; !ok {
				continue
			}
		}
		if _, ok := passesByEntity[ev.EntityID]; !ok {
			evaluated = append(evaluated, ev.EntityID)
		}
		passesByEntity[ev.EntityID] = append(passesByEntity[ev.EntityID], ev.ID)
	}

	scoresByPass := make(map[string]map[string]float64)
	for _, s := range scores {
		byCriteria, ok := scoresByPass[s.EvaluationPassID]
		if !ok {
			byCriteria = make(map[string]float64)
			scoresByPass[s.EvaluationPassID] = byCriteria
		}
		// first rating of a criterion within a pass wins
		if _, dup := byCriteria[s.CriteriaID]; dup {
			continue
		}
		byCriteria[s.CriteriaID] = s.Value
	}

	working := evaluated
	if opts.EntityIDs != nil {
		working = uniqueIDs(opts.EntityIDs)
	}

	result := Result{
		Weighted:  make(map[string]float64, len(working)),
		Breakdown: make(map[string][]CategoryScore, len(working)),
	}

	for _, entityID := range working {
		categories := resolveCategories(tree, passesByEntity[entityID], scoresByPass)

		if overall, ok := weightedOverall(categories); ok {
			result.Weighted[entityID] = RoundHalfUp(overall, overallPlaces)
		}

		if opts.IncludeBreakdown {
			result.Breakdown[entityID] = topCategories(categories)
		} else {
			result.Breakdown[entityID] = []CategoryScore{}
		}
	}

	return result
}

// effectiveValue is the unrounded mean of a sub-criterion across passes
func effectiveValue(criteriaID string, passes []string, scoresByPass map[string]map[string]float64) (float64, bool) {
	var sum float64
	var n int
	for _, passID := range passes {
		if v, ok := scoresByPass[passID][criteriaID]; ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func resolveCategories(tree Tree, passes []string, scoresByPass map[string]map[string]float64) []resolvedCategory {
	if len(passes) == 0 {
		return nil
	}

	resolved := make([]resolvedCategory, 0, len(tree.Categories))
	for _, category := range tree.Categories {
		var weightedSum float64
		var totalWeight int

		for _, sub := range tree.Subs[category.ID] {
			if sub.Weight <= 0 {
				continue
			}
			value, ok := effectiveValue(sub.ID, passes, scoresByPass)
			if !ok {
				continue
			}
			weightedSum += value * float64(sub.Weight)
			totalWeight += sub.Weight
		}

		if totalWeight == 0 {
			continue
		}

		resolved = append(resolved, resolvedCategory{
			name:   category.Name,
			weight: category.Weight,
			value:  weightedSum / float64(totalWeight),
		})
	}

	return resolved
}

func weightedOverall(categories []resolvedCategory) (float64, bool) {
	var weightedSum float64
	var totalWeight int
	for _, c := range categories {
		if c.weight <= 0 {
			continue
		}
		weightedSum += c.value * float64(c.weight)
		totalWeight += c.weight
	}
	if totalWeight == 0 {
		return 0, false
	}
	return weightedSum / float64(totalWeight), true
}

// topCategories ranks by rounded value, highest first. Equal values are
// ordered by category name, then by criteria input order.
func topCategories(categories []resolvedCategory) []CategoryScore {
	out := make([]CategoryScore, 0, len(categories))
	for _, c := range categories {
		out = append(out, CategoryScore{Name: c.name, Value: RoundHalfUp(c.value, breakdownPlaces)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Name < out[j].Name
	})

	if len(out) > MaxBreakdown {
		out = out[:MaxBreakdown]
	}
	return out
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
