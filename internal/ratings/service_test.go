package ratings

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/cinecritic/internal/config"
	"github.com/ZanzyTHEbar/cinecritic/internal/database"
	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
	"github.com/ZanzyTHEbar/cinecritic/internal/monitoring"
	"github.com/ZanzyTHEbar/cinecritic/internal/scoring"
	"github.com/ZanzyTHEbar/cinecritic/internal/types"
)

type fixture struct {
	repo    *database.Repository
	svc     *Service
	metrics *monitoring.Metrics

	story, craft                     *database.Criterion
	plot, characters, cinematography *database.Criterion
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewDB(config.DatabaseConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	metrics := monitoring.NewMetrics()
	f := &fixture{
		repo:    repo,
		metrics: metrics,
		svc:     NewService(repo, WithMetrics(metrics)),
	}

	ctx := context.Background()
	mk := func(name string, weight int, parent *database.Criterion) *database.Criterion {
		var parentID *string
		if parent != nil {
			parentID = &parent.ID
		}
		c := database.NewCriterion(name, weight, parentID)
		require.NoError(t, repo.CreateCriterion(ctx, c))
		return c
	}
	f.story = mk("Story", 2, nil)
	f.craft = mk("Craft", 1, nil)
	f.plot = mk("Plot", 1, f.story)
	f.characters = mk("Characters", 1, f.story)
	f.cinematography = mk("Cinematography", 1, f.craft)
	return f
}

func (f *fixture) title(t *testing.T, name, mediaType string) *database.Title {
	t.Helper()
	title := database.NewTitle(name, mediaType, 2001)
	require.NoError(t, f.repo.CreateTitle(context.Background(), title))
	return title
}

func (f *fixture) evaluate(t *testing.T, entityID string, plot, characters, cinematography float64) *database.Evaluation {
	t.Helper()
	ev, err := f.repo.CreateEvaluation(context.Background(), entityID, "", []database.ScoreInput{
		{CriteriaID: f.plot.ID, Value: plot},
		{CriteriaID: f.characters.ID, Value: characters},
		{CriteriaID: f.cinematography.ID, Value: cinematography},
	})
	require.NoError(t, err)
	return ev
}

func val(v float64) *float64 { return &v }

func TestCompute_TwoLevelWeighting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := f.title(t, "Memento", database.MediaTypeMovie)
	f.evaluate(t, m1.ID, 4.5, 4.0, 3.5)
	f.evaluate(t, m1.ID, 5.0, 4.5, 4.0)

	result, err := f.svc.Compute(ctx, nil, true)
	require.NoError(t, err)

	assert.Equal(t, 4.25, result.Weighted[m1.ID])
	require.Len(t, result.Breakdown[m1.ID], 2)
	assert.Equal(t, scoring.CategoryScore{Name: "Story", Value: 4.5}, result.Breakdown[m1.ID][0])
	assert.Equal(t, scoring.CategoryScore{Name: "Craft", Value: 3.8}, result.Breakdown[m1.ID][1])
}

func TestCompute_Filter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := f.title(t, "Memento", database.MediaTypeMovie)
	m2 := f.title(t, "Heat", database.MediaTypeMovie)
	unrated := f.title(t, "Solaris", database.MediaTypeMovie)
	f.evaluate(t, m1.ID, 4, 4, 4)
	f.evaluate(t, m2.ID, 3, 3, 3)

	result, err := f.svc.Compute(ctx, []string{m2.ID, unrated.ID}, false)
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{m2.ID: 3}, result.Weighted)
	assert.Equal(t, []scoring.CategoryScore{}, result.Breakdown[m2.ID])
	assert.Equal(t, []scoring.CategoryScore{}, result.Breakdown[unrated.ID])
	assert.NotContains(t, result.Breakdown, m1.ID)
}

func TestComputeWithPreset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := f.title(t, "Memento", database.MediaTypeMovie)
	f.evaluate(t, m1.ID, 5, 5, 2)

	base, err := f.svc.Compute(ctx, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 4.0, base.Weighted[m1.ID])

	preset := database.NewPreset("craft only", map[string]int{f.story.ID: 0})
	require.NoError(t, f.repo.CreatePreset(ctx, preset))

	result, err := f.svc.ComputeWithPreset(ctx, preset.ID, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 2.0, result.Weighted[m1.ID])
	assert.Len(t, result.Breakdown[m1.ID], 2, "weight-zero categories still show in the breakdown")

	_, err = f.svc.ComputeWithPreset(ctx, "5b0c7c0e-4a39-4d4b-9b7b-1f2d3c4e5f60", nil, true)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestApplyPreset_DoesNotMutateInput(t *testing.T) {
	in := []scoring.Criterion{{ID: "a", Weight: 1}, {ID: "b", Weight: 2}}
	out := ApplyPreset(in, map[string]int{"a": 7, "zzz": 3})

	assert.Equal(t, 1, in[0].Weight)
	assert.Equal(t, 7, out[0].Weight)
	assert.Equal(t, 2, out[1].Weight)
}

func TestRecomputeAll_WritesCacheAndRunsHooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := f.title(t, "Memento", database.MediaTypeMovie)
	f.title(t, "Solaris", database.MediaTypeMovie)
	f.evaluate(t, m1.ID, 4, 4, 4)

	var calls int32
	f.svc.OnRecompute("count", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	f.svc.OnRecompute("broken", func(context.Context) error {
		return errors.New("boom")
	})

	result, err := f.svc.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4.0, result.Weighted[m1.ID])
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a failing hook does not stop the others")

	cached, err := f.repo.GetCachedScores(ctx, nil)
	require.NoError(t, err)
	require.Contains(t, cached, m1.ID)
	assert.Equal(t, 4.0, *cached[m1.ID].Score)
	assert.Len(t, cached, 1, "titles without evaluations are not cached")

	stats := f.metrics.GetRecomputeStats()
	assert.Equal(t, int64(1), stats["runs"])
}

func TestScores_CacheFirstWithLiveFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := f.title(t, "Memento", database.MediaTypeMovie)
	m2 := f.title(t, "Heat", database.MediaTypeMovie)
	unrated := f.title(t, "Solaris", database.MediaTypeMovie)
	f.evaluate(t, m1.ID, 4, 4, 4)

	_, err := f.svc.RecomputeAll(ctx)
	require.NoError(t, err)

	// written behind the service's back, so only the live path can see it
	f.evaluate(t, m1.ID, 2, 2, 2)
	f.evaluate(t, m2.ID, 3, 3, 3)

	result, err := f.svc.Scores(ctx, []string{m1.ID, m2.ID, unrated.ID})
	require.NoError(t, err)

	assert.Equal(t, 4.0, result.Weighted[m1.ID], "cached value wins")
	assert.Equal(t, 3.0, result.Weighted[m2.ID], "uncached title computed live")
	_, rated := result.Weighted[unrated.ID]
	assert.False(t, rated, "unrated title is absent, never zero")
	assert.Equal(t, []scoring.CategoryScore{}, result.Breakdown[unrated.ID])

	empty, err := f.svc.Scores(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Weighted)
}

func TestListTitleScores_RatedFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	low := f.title(t, "Alpha", database.MediaTypeMovie)
	f.title(t, "Beta", database.MediaTypeMovie)
	high := f.title(t, "Gamma", database.MediaTypeMovie)
	f.title(t, "Delta", database.MediaTypeTV)
	f.evaluate(t, low.ID, 2, 2, 2)
	f.evaluate(t, high.ID, 5, 5, 5)

	_, err := f.svc.RecomputeAll(ctx)
	require.NoError(t, err)

	list, err := f.svc.ListTitleScores(ctx, database.MediaTypeMovie)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "Gamma", list[0].Name)
	assert.Equal(t, "Alpha", list[1].Name)
	assert.Equal(t, "Beta", list[2].Name)
	assert.Nil(t, list[2].Score)
	assert.NotNil(t, list[2].Breakdown)
}

func TestSubmitEvaluation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := f.title(t, "Memento", database.MediaTypeMovie)

	var refreshed int32
	f.svc.OnRecompute("count", func(context.Context) error {
		atomic.AddInt32(&refreshed, 1)
		return nil
	})

	ev, err := f.svc.SubmitEvaluation(ctx, types.SubmitEvaluationRequest{
		EntityID: m1.ID,
		Notes:    "  tight  ",
		Scores: []types.ScoreValue{
			{CriteriaID: f.plot.ID, Value: val(4)},
			{CriteriaID: f.cinematography.ID, Value: val(3)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "tight", ev.Notes)
	assert.Len(t, ev.Scores, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshed))

	cached, err := f.repo.GetCachedScores(ctx, []string{m1.ID})
	require.NoError(t, err)
	require.NotNil(t, cached[m1.ID].Score)
	assert.InDelta(t, (4.0*2+3.0)/3, *cached[m1.ID].Score, 0.005)
}

func TestSubmitEvaluation_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := f.title(t, "Memento", database.MediaTypeMovie)

	tests := []struct {
		name   string
		scores []types.ScoreValue
		field  string
	}{
		{
			name:   "category rated directly",
			scores: []types.ScoreValue{{CriteriaID: f.story.ID, Value: val(3)}},
			field:  "scores[0].criteria_id",
		},
		{
			name: "duplicate criterion",
			scores: []types.ScoreValue{
				{CriteriaID: f.plot.ID, Value: val(3)},
				{CriteriaID: f.plot.ID, Value: val(4)},
			},
			field: "scores[1].criteria_id",
		},
		{
			name:   "unknown criterion",
			scores: []types.ScoreValue{{CriteriaID: "5b0c7c0e-4a39-4d4b-9b7b-1f2d3c4e5f60", Value: val(3)}},
			field:  "scores[0].criteria_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitEvaluation(ctx, types.SubmitEvaluationRequest{EntityID: m1.ID, Scores: tt.scores})
			appErr := apperrors.ToAppError(err)
			require.NotNil(t, appErr)
			assert.Equal(t, apperrors.CategoryValidation, appErr.Category)
			assert.Contains(t, appErr.Fields, tt.field)
		})
	}

	t.Run("unknown title", func(t *testing.T) {
		_, err := f.svc.SubmitEvaluation(ctx, types.SubmitEvaluationRequest{
			EntityID: "5b0c7c0e-4a39-4d4b-9b7b-1f2d3c4e5f60",
			Scores:   []types.ScoreValue{{CriteriaID: f.plot.ID, Value: val(3)}},
		})
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}

func TestDeleteEvaluation_ClearsScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := f.title(t, "Memento", database.MediaTypeMovie)
	ev := f.evaluate(t, m1.ID, 4, 4, 4)

	_, err := f.svc.RecomputeAll(ctx)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteEvaluation(ctx, ev.ID))

	cached, err := f.repo.GetCachedScores(ctx, []string{m1.ID})
	require.NoError(t, err)
	require.Contains(t, cached, m1.ID)
	assert.Nil(t, cached[m1.ID].Score, "no evaluations left means no score")

	assert.ErrorIs(t, f.svc.DeleteEvaluation(ctx, ev.ID), database.ErrNotFound)
}

func TestTitleDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := f.title(t, "Heat", database.MediaTypeMovie)
	unrated := f.title(t, "Ronin", database.MediaTypeMovie)
	f.evaluate(t, m1.ID, 4, 4, 2)
	f.evaluate(t, m1.ID, 2, 2, 4)

	detail, err := f.svc.TitleDetail(ctx, m1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Heat", detail.Name)
	require.NotNil(t, detail.Score)
	assert.Equal(t, 3.0, *detail.Score)
	require.Len(t, detail.Evaluations, 2)
	for _, ev := range detail.Evaluations {
		assert.Len(t, ev.Scores, 3)
	}

	empty, err := f.svc.TitleDetail(ctx, unrated.ID)
	require.NoError(t, err)
	assert.Nil(t, empty.Score)
	assert.NotNil(t, empty.Evaluations)
	assert.Empty(t, empty.Evaluations)

	_, err = f.svc.TitleDetail(ctx, "5b0c7c0e-4a39-4d4b-9b7b-1f2d3c4e5f60")
	assert.ErrorIs(t, err, database.ErrNotFound)
}
