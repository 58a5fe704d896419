package ratings

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/cinecritic/internal/database"
	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
	"github.com/ZanzyTHEbar/cinecritic/internal/monitoring"
	"github.com/ZanzyTHEbar/cinecritic/internal/scoring"
	"github.com/ZanzyTHEbar/cinecritic/internal/types"
)

// Recompute scopes reported to metrics and logs
const (
	ScopeFull    = "full"
	ScopePartial = "partial"
)

// Store is the persistence the ratings service needs
type Store interface {
	GetTitle(ctx context.Context, id string) (*database.Title, error)
	ListTitles(ctx context.Context, mediaType string) ([]database.Title, error)
	ListCriteria(ctx context.Context) ([]database.Criterion, error)
	ListEvaluations(ctx context.Context, entityIDs []string) ([]database.Evaluation, error)
	ListScores(ctx context.Context, evaluationIDs []string) ([]database.Score, error)
	CreateEvaluation(ctx context.Context, entityID, notes string, scores []database.ScoreInput) (*database.Evaluation, error)
	DeleteEvaluation(ctx context.Context, id string) (string, error)
	ReplaceScoreCache(ctx context.Context, result scoring.Result, entityIDs []string, at time.Time) error
	GetCachedScores(ctx context.Context, entityIDs []string) (map[string]database.CachedScore, error)
	GetPreset(ctx context.Context, id string) (*database.Preset, error)
}

// Hook runs after the score cache changes
type Hook func(ctx context.Context) error

// Rows are the aggregator inputs loaded from the store
type Rows struct {
	Criteria    []scoring.Criterion
	Evaluations []scoring.EvaluationPass
	Scores      []scoring.RawScore
}

// Option configures a Service
type Option func(*Service)

// WithMetrics records recomputes in the in-process metrics
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPromMetrics records recomputes in Prometheus
func WithPromMetrics(p *monitoring.PromMetrics) Option {
	return func(s *Service) { s.prom = p }
}

// WithLogger sets the structured logger
func WithLogger(l *monitoring.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service computes scores from stored evaluations and keeps the score cache current
type Service struct {
	store   Store
	metrics *monitoring.Metrics
	prom    *monitoring.PromMetrics
	logger  *monitoring.Logger
	now     func() time.Time

	// serializes writers of the score cache
	recomputeMu sync.Mutex

	hooksMu sync.RWMutex
	hooks   []namedHook
}

type namedHook struct {
	name string
	fn   Hook
}

// NewService creates a ratings service
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnRecompute registers a hook run after every successful recompute.
// Hook failures are logged and do not fail the recompute.
func (s *Service) OnRecompute(name string, fn Hook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, namedHook{name: name, fn: fn})
}

// LoadRows fetches criteria, evaluations and scores. A nil entityIDs loads everything.
func (s *Service) LoadRows(ctx context.Context, entityIDs []string) (*Rows, error) {
	var (
		criteria    []database.Criterion
		evaluations []database.Evaluation
		scores      []database.Score
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		criteria, err = s.store.ListCriteria(gctx)
		return err
	})

	if entityIDs == nil {
		g.Go(func() error {
			var err error
			evaluations, err = s.store.ListEvaluations(gctx, nil)
			return err
		})
		g.Go(func() error {
			var err error
			scores, err = s.store.ListScores(gctx, nil)
			return err
		})
	} else {
		g.Go(func() error {
			var err error
			evaluations, err = s.store.ListEvaluations(gctx, entityIDs)
			if err != nil {
				return err
			}
			ids := make([]string, len(evaluations))
			for i, ev := range evaluations {
				ids[i] = ev.ID
			}
			scores, err = s.store.ListScores(gctx, ids)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading score inputs: %w", err)
	}

	rows := &Rows{
		Criteria:    make([]scoring.Criterion, len(criteria)),
		Evaluations: make([]scoring.EvaluationPass, len(evaluations)),
		Scores:      make([]scoring.RawScore, len(scores)),
	}
	for i, c := range criteria {
		rows.Criteria[i] = c.ToScoring()
	}
	for i, ev := range evaluations {
		rows.Evaluations[i] = scoring.EvaluationPass{ID: ev.ID, EntityID: ev.EntityID}
	}
	for i, sc := range scores {
		rows.Scores[i] = scoring.RawScore{EvaluationPassID: sc.EvaluationID, CriteriaID: sc.CriteriaID, Value: sc.Value}
	}
	return rows, nil
}

// Compute runs a live computation without touching the cache
func (s *Service) Compute(ctx context.Context, entityIDs []string, includeBreakdown bool) (scoring.Result, error) {
	rows, err := s.LoadRows(ctx, entityIDs)
	if err != nil {
		return scoring.Result{}, err
	}
	return scoring.ComputeWeightedScores(rows.Criteria, rows.Evaluations, rows.Scores, scoring.Options{
		EntityIDs:        entityIDs,
		IncludeBreakdown: includeBreakdown,
	}), nil
}

// ComputeWithPreset runs a live computation with criterion weights replaced
// by the preset's. Criteria the preset does not name keep their weight.
func (s *Service) ComputeWithPreset(ctx context.Context, presetID string, entityIDs []string, includeBreakdown bool) (scoring.Result, error) {
	preset, err := s.store.GetPreset(ctx, presetID)
	if err != nil {
		return scoring.Result{}, err
	}

	rows, err := s.LoadRows(ctx, entityIDs)
	if err != nil {
		return scoring.Result{}, err
	}

	criteria := ApplyPreset(rows.Criteria, preset.Weights)
	return scoring.ComputeWeightedScores(criteria, rows.Evaluations, rows.Scores, scoring.Options{
		EntityIDs:        entityIDs,
		IncludeBreakdown: includeBreakdown,
	}), nil
}

// ApplyPreset returns a copy of criteria with weights overridden
func ApplyPreset(criteria []scoring.Criterion, weights map[string]int) []scoring.Criterion {
	out := make([]scoring.Criterion, len(criteria))
	copy(out, criteria)
	for i := range out {
		if w, ok := weights[out[i].ID]; ok {
			out[i].Weight = w
		}
	}
	return out
}

// RecomputeAll rebuilds the whole score cache
func (s *Service) RecomputeAll(ctx context.Context) (scoring.Result, error) {
	return s.recompute(ctx, ScopeFull, nil)
}

// RecomputeEntities rebuilds cache rows for the given titles only
func (s *Service) RecomputeEntities(ctx context.Context, entityIDs []string) (scoring.Result, error) {
	if entityIDs == nil {
		entityIDs = []string{}
	}
	return s.recompute(ctx, ScopePartial, entityIDs)
}

func (s *Service) recompute(ctx context.Context, scope string, entityIDs []string) (scoring.Result, error) {
	s.recomputeMu.Lock()
	defer s.recomputeMu.Unlock()

	start := s.now()
	result, err := s.Compute(ctx, entityIDs, true)
	if err == nil {
		err = s.store.ReplaceScoreCache(ctx, result, entityIDs, start.UTC())
	}
	duration := s.now().Sub(start)

	entities := len(result.Breakdown)
	if s.metrics != nil {
		s.metrics.RecordRecompute(duration, entities, err)
	}
	if s.prom != nil {
		s.prom.ObserveRecompute(scope, duration, len(result.Weighted), err)
	}
	if s.logger != nil {
		s.logger.RecomputeLogger(scope, entities, duration, err)
	}

	if err != nil {
		return scoring.Result{}, fmt.Errorf("%s recompute: %w", scope, err)
	}

	s.runHooks(ctx)
	return result, nil
}

func (s *Service) runHooks(ctx context.Context) {
	s.hooksMu.RLock()
	hooks := make([]namedHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.hooksMu.RUnlock()

	for _, h := range hooks {
		if err := h.fn(ctx); err != nil {
			slog.Error("Recompute hook failed", "hook", h.name, "error", err)
		}
	}
}

// Scores returns cached results for entityIDs, computing live for ids the
// cache does not hold yet. Unrated ids stay absent from Weighted.
func (s *Service) Scores(ctx context.Context, entityIDs []string) (scoring.Result, error) {
	result := scoring.Result{
		Weighted:  make(map[string]float64),
		Breakdown: make(map[string][]scoring.CategoryScore),
	}
	if len(entityIDs) == 0 {
		return result, nil
	}

	cached, err := s.store.GetCachedScores(ctx, entityIDs)
	if err != nil {
		return scoring.Result{}, err
	}

	var missing []string
	for _, id := range entityIDs {
		cs, ok := cached[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if cs.Score != nil {
			result.Weighted[id] = *cs.Score
		}
		result.Breakdown[id] = cs.Breakdown
	}

	if len(missing) == 0 {
		return result, nil
	}

	live, err := s.Compute(ctx, missing, true)
	if err != nil {
		return scoring.Result{}, err
	}
	for id, v := range live.Weighted {
		result.Weighted[id] = v
	}
	for id, b := range live.Breakdown {
		result.Breakdown[id] = b
	}
	return result, nil
}

// ListTitleScores returns titles with their scores. Rated titles come first,
// best score first; unrated titles follow in name order.
func (s *Service) ListTitleScores(ctx context.Context, mediaType string) ([]types.TitleScore, error) {
	titles, err := s.store.ListTitles(ctx, mediaType)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(titles))
	for i, t := range titles {
		ids[i] = t.ID
	}
	result, err := s.Scores(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]types.TitleScore, len(titles))
	for i, t := range titles {
		out[i] = ToTitleScore(t, result)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Score, out[j].Score
		switch {
		case a != nil && b != nil:
			return *a > *b
		case a != nil:
			return true
		default:
			return false
		}
	})
	return out, nil
}

// ToTitleScore pairs a title with its entry in result
func ToTitleScore(t database.Title, result scoring.Result) types.TitleScore {
	ts := types.TitleScore{
		ID:        t.ID,
		Name:      t.Name,
		MediaType: t.MediaType,
		Year:      t.Year,
		PosterURL: t.PosterURL,
		Breakdown: result.Breakdown[t.ID],
	}
	if v, ok := result.Score(t.ID); ok {
		ts.Score = &v
	}
	if ts.Breakdown == nil {
		ts.Breakdown = []scoring.CategoryScore{}
	}
	return ts
}

// TitleDetail returns a title with its score and every evaluation pass,
// newest first, each carrying its scores
func (s *Service) TitleDetail(ctx context.Context, id string) (*types.TitleDetail, error) {
	title, err := s.store.GetTitle(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		result      scoring.Result
		evaluations []database.Evaluation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		result, err = s.Scores(gctx, []string{id})
		return err
	})
	g.Go(func() error {
		var err error
		evaluations, err = s.store.ListEvaluations(gctx, []string{id})
		if err != nil || len(evaluations) == 0 {
			return err
		}
		ids := make([]string, len(evaluations))
		for i, ev := range evaluations {
			ids[i] = ev.ID
		}
		scores, err := s.store.ListScores(gctx, ids)
		if err != nil {
			return err
		}
		byEval := make(map[string][]database.Score, len(evaluations))
		for _, sc := range scores {
			byEval[sc.EvaluationID] = append(byEval[sc.EvaluationID], sc)
		}
		for i := range evaluations {
			evaluations[i].Scores = byEval[evaluations[i].ID]
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(evaluations, func(i, j int) bool {
		return evaluations[i].CreatedAt.After(evaluations[j].CreatedAt)
	})
	if evaluations == nil {
		evaluations = []database.Evaluation{}
	}

	return &types.TitleDetail{
		TitleScore:  ToTitleScore(*title, result),
		Overview:    title.Overview,
		ExternalID:  title.ExternalID,
		Evaluations: evaluations,
	}, nil
}

// SubmitEvaluation stores a new evaluation pass and refreshes the title's cached score.
// Every rated criterion must be a sub-criterion of an existing category.
func (s *Service) SubmitEvaluation(ctx context.Context, req types.SubmitEvaluationRequest) (*database.Evaluation, error) {
	criteria, err := s.store.ListCriteria(ctx)
	if err != nil {
		return nil, err
	}

	scoringCriteria := make([]scoring.Criterion, len(criteria))
	for i, c := range criteria {
		scoringCriteria[i] = c.ToScoring()
	}
	tree := scoring.Partition(scoringCriteria)

	rateable := make(map[string]struct{})
	for _, subs := range tree.Subs {
		for _, sub := range subs {
			rateable[sub.ID] = struct{}{}
		}
	}

	fields := make(map[string]string)
	seen := make(map[string]struct{}, len(req.Scores))
	inputs := make([]database.ScoreInput, 0, len(req.Scores))
	for i, sc := range req.Scores {
		key := fmt.Sprintf("scores[%d].criteria_id", i)
		if _, dup := seen[sc.CriteriaID]; dup {
			fields[key] = "is rated more than once"
			continue
		}
		seen[sc.CriteriaID] = struct{}{}
		if _, ok := rateable[sc.CriteriaID]; !ok {
			fields[key] = "must be a sub-criterion"
			continue
		}
		inputs = append(inputs, database.ScoreInput{CriteriaID: sc.CriteriaID, Value: *sc.Value})
	}
	if len(fields) > 0 {
		return nil, apperrors.NewFieldValidationError(fields)
	}

	ev, err := s.store.CreateEvaluation(ctx, req.EntityID, strings.TrimSpace(req.Notes), inputs)
	if err != nil {
		return nil, err
	}

	// the evaluation is stored; a failed refresh is repaired by the next full recompute
	if _, err := s.RecomputeEntities(ctx, []string{req.EntityID}); err != nil {
		slog.Error("Failed to refresh score after evaluation", "entity_id", req.EntityID, "error", err)
	}
	return ev, nil
}

// DeleteEvaluation removes an evaluation pass and refreshes its title's cached score
func (s *Service) DeleteEvaluation(ctx context.Context, id string) error {
	entityID, err := s.store.DeleteEvaluation(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.RecomputeEntities(ctx, []string{entityID}); err != nil {
		slog.Error("Failed to refresh score after deletion", "entity_id", entityID, "error", err)
	}
	return nil
}
