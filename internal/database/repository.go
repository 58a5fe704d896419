package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/cinecritic/internal/encoding"
	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
	"github.com/ZanzyTHEbar/cinecritic/internal/scoring"
)

// ErrNotFound is returned when a lookup or delete matches no row
var ErrNotFound = apperrors.ErrNotFound

// ErrInvalidParent is returned when a criterion's parent is not a category
var ErrInvalidParent = errors.New("parent must be an existing top-level category")

// maxParams keeps IN lists well under SQLite's variable limit
const maxParams = 500

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func chunk(ids []string) [][]string {
	var out [][]string
	for len(ids) > maxParams {
		out = append(out, ids[:maxParams])
		ids = ids[maxParams:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// --- titles ---

func scanTitle(row rowScanner) (*Title, error) {
	var t Title
	if err := row.Scan(&t.ID, &t.Name, &t.MediaType, &t.Year, &t.PosterURL, &t.Overview,
		&t.ExternalID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTitle inserts a new title
func (r *Repository) CreateTitle(ctx context.Context, t *Title) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO titles (id, name, media_type, year, poster_url, overview, external_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Name, t.MediaType, t.Year, t.PosterURL, t.Overview, nullString(t.ExternalID), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create title: %w", err)
	}
	return nil
}

// GetTitle fetches one title by id
func (r *Repository) GetTitle(ctx context.Context, id string) (*Title, error) {
	stmt, err := r.db.GetPreparedStatement("get_title")
	if err != nil {
		return nil, err
	}

	t, err := scanTitle(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("title %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get title: %w", err)
	}
	return t, nil
}

// ListTitles returns titles ordered by name; an empty mediaType lists all
func (r *Repository) ListTitles(ctx context.Context, mediaType string) ([]Title, error) {
	query := `SELECT id, name, media_type, year, poster_url, overview, COALESCE(external_id, ''), created_at, updated_at
		FROM titles`
	var args []interface{}
	if mediaType != "" {
		query += ` WHERE media_type = ?`
		args = append(args, mediaType)
	}
	query += ` ORDER BY name COLLATE NOCASE ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list titles: %w", err)
	}
	defer rows.Close()

	titles := []Title{}
	for rows.Next() {
		t, err := scanTitle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		titles = append(titles, *t)
	}
	return titles, rows.Err()
}

// DeleteTitle removes a title together with its evaluations and cached scores
func (r *Repository) DeleteTitle(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM titles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete title: %w", err)
	}
	return expectAffected(res, "title", id)
}

// UpsertTitleByExternalID inserts t or refreshes the title sharing its
// media type and external id. The stored title is returned with created
// reporting whether a new row was written.
func (r *Repository) UpsertTitleByExternalID(ctx context.Context, t *Title) (*Title, bool, error) {
	if t.ExternalID == "" {
		return nil, false, fmt.Errorf("upsert requires an external id")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanTitle(tx.QueryRowContext(ctx, `
		SELECT id, name, media_type, year, poster_url, overview, COALESCE(external_id, ''), created_at, updated_at
		FROM titles WHERE media_type = ? AND external_id = ?
	`, t.MediaType, t.ExternalID))

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO titles (id, name, media_type, year, poster_url, overview, external_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.Name, t.MediaType, t.Year, t.PosterURL, t.Overview, t.ExternalID, t.CreatedAt, t.UpdatedAt); err != nil {
			return nil, false, fmt.Errorf("failed to insert title: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("failed to commit title: %w", err)
		}
		return t, true, nil

	case err != nil:
		return nil, false, fmt.Errorf("failed to look up title: %w", err)
	}

	existing.Name = t.Name
	existing.Year = t.Year
	existing.PosterURL = t.PosterURL
	existing.Overview = t.Overview
	existing.UpdatedAt = time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `
		UPDATE titles SET name = ?, year = ?, poster_url = ?, overview = ?, updated_at = ?
		WHERE id = ?
	`, existing.Name, existing.Year, existing.PosterURL, existing.Overview, existing.UpdatedAt, existing.ID); err != nil {
		return nil, false, fmt.Errorf("failed to update title: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit title: %w", err)
	}
	return existing, false, nil
}

// --- criteria ---

// ListCriteria returns every criterion in display order
func (r *Repository) ListCriteria(ctx context.Context) ([]Criterion, error) {
	stmt, err := r.db.GetPreparedStatement("list_criteria")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list criteria: %w", err)
	}
	defer rows.Close()

	criteria := []Criterion{}
	for rows.Next() {
		var c Criterion
		var parent sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Weight, &parent, &c.Position); err != nil {
			return nil, fmt.Errorf("failed to scan criterion: %w", err)
		}
		if parent.Valid {
			p := parent.String
			c.ParentID = &p
		}
		criteria = append(criteria, c)
	}
	return criteria, rows.Err()
}

// CreateCriterion inserts c at the end of the display order. A sub-criterion's
// parent must exist and be a category itself.
func (r *Repository) CreateCriterion(ctx context.Context, c *Criterion) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	if c.ParentID != nil {
		var grandparent sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT parent_id FROM criteria WHERE id = ?`, *c.ParentID).Scan(&grandparent)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && grandparent.Valid) {
			return ErrInvalidParent
		}
		if err != nil {
			return fmt.Errorf("failed to look up parent: %w", err)
		}
		parent = sql.NullString{String: *c.ParentID, Valid: true}
	}

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM criteria`).Scan(&c.Position); err != nil {
		return fmt.Errorf("failed to compute position: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO criteria (id, name, weight, parent_id, position) VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Weight, parent, c.Position); err != nil {
		return fmt.Errorf("failed to create criterion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit criterion: %w", err)
	}
	return nil
}

// UpdateCriterionWeight changes the weight of one criterion
func (r *Repository) UpdateCriterionWeight(ctx context.Context, id string, weight int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE criteria SET weight = ? WHERE id = ?`, weight, id)
	if err != nil {
		return fmt.Errorf("failed to update criterion: %w", err)
	}
	return expectAffected(res, "criterion", id)
}

// DeleteCriterion removes a criterion; a category takes its subs and their scores with it
func (r *Repository) DeleteCriterion(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM criteria WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete criterion: %w", err)
	}
	return expectAffected(res, "criterion", id)
}

// --- evaluations ---

// CreateEvaluation stores an evaluation and its ratings atomically
func (r *Repository) CreateEvaluation(ctx context.Context, entityID, notes string, scores []ScoreInput) (*Evaluation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM titles WHERE id = ?`, entityID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("title %s: %w", entityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up title: %w", err)
	}

	ev := NewEvaluation(entityID, notes)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO evaluations (id, entity_id, notes, created_at) VALUES (?, ?, ?, ?)
	`, ev.ID, ev.EntityID, ev.Notes, ev.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create evaluation: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO scores (evaluation_id, criteria_id, value) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare score insert: %w", err)
	}
	defer stmt.Close()

	ev.Scores = make([]Score, 0, len(scores))
	for _, s := range scores {
		if _, err := stmt.ExecContext(ctx, ev.ID, s.CriteriaID, s.Value); err != nil {
			return nil, fmt.Errorf("failed to insert score for criterion %s: %w", s.CriteriaID, err)
		}
		ev.Scores = append(ev.Scores, Score{EvaluationID: ev.ID, CriteriaID: s.CriteriaID, Value: s.Value})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit evaluation: %w", err)
	}
	return ev, nil
}

// ListEvaluations returns evaluations for the given titles in creation order.
// A nil slice lists every evaluation; an empty one lists none.
func (r *Repository) ListEvaluations(ctx context.Context, entityIDs []string) ([]Evaluation, error) {
	const base = `SELECT id, entity_id, notes, created_at FROM evaluations`
	const order = ` ORDER BY created_at ASC, rowid ASC`

	if entityIDs == nil {
		return r.queryEvaluations(ctx, base+order)
	}

	out := []Evaluation{}
	for _, ids := range chunk(entityIDs) {
		evs, err := r.queryEvaluations(ctx, base+` WHERE entity_id IN (`+placeholders(len(ids))+`)`+order, toArgs(ids)...)
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}
	return out, nil
}

func (r *Repository) queryEvaluations(ctx context.Context, query string, args ...interface{}) ([]Evaluation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	evs := []Evaluation{}
	for rows.Next() {
		var ev Evaluation
		if err := rows.Scan(&ev.ID, &ev.EntityID, &ev.Notes, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		evs = append(evs, ev)
	}
	return evs, rows.Err()
}

// ListScores returns ratings for the given evaluations. A nil slice lists all.
func (r *Repository) ListScores(ctx context.Context, evaluationIDs []string) ([]Score, error) {
	const base = `SELECT evaluation_id, criteria_id, value FROM scores`

	if evaluationIDs == nil {
		return r.queryScores(ctx, base+` ORDER BY rowid ASC`)
	}

	out := []Score{}
	for _, ids := range chunk(evaluationIDs) {
		scores, err := r.queryScores(ctx, base+` WHERE evaluation_id IN (`+placeholders(len(ids))+`) ORDER BY rowid ASC`, toArgs(ids)...)
		if err != nil {
			return nil, err
		}
		out = append(out, scores...)
	}
	return out, nil
}

func (r *Repository) queryScores(ctx context.Context, query string, args ...interface{}) ([]Score, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	defer rows.Close()

	scores := []Score{}
	for rows.Next() {
		var s Score
		if err := rows.Scan(&s.EvaluationID, &s.CriteriaID, &s.Value); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// DeleteEvaluation removes an evaluation and returns the title it belonged to
func (r *Repository) DeleteEvaluation(ctx context.Context, id string) (string, error) {
	var entityID string
	err := r.db.QueryRowContext(ctx, `DELETE FROM evaluations WHERE id = ? RETURNING entity_id`, id).Scan(&entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("evaluation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to delete evaluation: %w", err)
	}
	return entityID, nil
}

// --- score cache ---

// ReplaceScoreCache persists result. With nil entityIDs the whole cache is
// replaced; otherwise only rows for entityIDs are rewritten. Rows for titles
// that no longer exist are skipped.
func (r *Repository) ReplaceScoreCache(ctx context.Context, result scoring.Result, entityIDs []string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if entityIDs == nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM score_cache`); err != nil {
			return fmt.Errorf("failed to clear score cache: %w", err)
		}
	} else {
		for _, ids := range chunk(entityIDs) {
			if _, err := tx.ExecContext(ctx, `DELETE FROM score_cache WHERE entity_id IN (`+placeholders(len(ids))+`)`, toArgs(ids)...); err != nil {
				return fmt.Errorf("failed to clear cached scores: %w", err)
			}
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO score_cache (entity_id, score, breakdown, computed_at)
		SELECT ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM titles WHERE id = ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare score cache insert: %w", err)
	}
	defer stmt.Close()

	write := func(entityID string) error {
		var score sql.NullFloat64
		if v, ok := result.Weighted[entityID]; ok {
			score = sql.NullFloat64{Float64: v, Valid: true}
		}
		breakdown := result.Breakdown[entityID]
		if breakdown == nil {
			breakdown = []scoring.CategoryScore{}
		}
		blob, err := encoding.MarshalString(breakdown)
		if err != nil {
			return fmt.Errorf("failed to encode breakdown: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, entityID, score, blob, at, entityID); err != nil {
			return fmt.Errorf("failed to cache score for %s: %w", entityID, err)
		}
		return nil
	}

	for entityID := range result.Breakdown {
		if err := write(entityID); err != nil {
			return err
		}
	}
	for entityID := range result.Weighted {
		if _, done := result.Breakdown[entityID]; done {
			continue
		}
		if err := write(entityID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit score cache: %w", err)
	}
	return nil
}

func scanCachedScore(row rowScanner) (CachedScore, error) {
	var cs CachedScore
	var score sql.NullFloat64
	var blob string
	if err := row.Scan(&cs.EntityID, &score, &blob, &cs.ComputedAt); err != nil {
		return cs, err
	}
	if score.Valid {
		v := score.Float64
		cs.Score = &v
	}
	cs.Breakdown = []scoring.CategoryScore{}
	if err := encoding.UnmarshalString(blob, &cs.Breakdown); err != nil {
		return cs, fmt.Errorf("failed to decode breakdown for %s: %w", cs.EntityID, err)
	}
	return cs, nil
}

// GetCachedScores returns cached rows keyed by title id. A nil slice returns all.
func (r *Repository) GetCachedScores(ctx context.Context, entityIDs []string) (map[string]CachedScore, error) {
	const base = `SELECT entity_id, score, breakdown, computed_at FROM score_cache`
	out := make(map[string]CachedScore)

	collect := func(query string, args ...interface{}) error {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to read score cache: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			cs, err := scanCachedScore(rows)
			if err != nil {
				return err
			}
			out[cs.EntityID] = cs
		}
		return rows.Err()
	}

	if entityIDs == nil {
		if err := collect(base); err != nil {
			return nil, err
		}
		return out, nil
	}

	for _, ids := range chunk(entityIDs) {
		if err := collect(base+` WHERE entity_id IN (`+placeholders(len(ids))+`)`, toArgs(ids)...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListCachedScores returns scored titles best first, ties broken by name.
// Titles without a score are left out. An empty mediaType lists all.
func (r *Repository) ListCachedScores(ctx context.Context, mediaType string) ([]ScoredTitle, error) {
	query := `SELECT t.id, t.name, t.media_type, t.year, c.score
		FROM score_cache c JOIN titles t ON t.id = c.entity_id
		WHERE c.score IS NOT NULL`
	var args []interface{}
	if mediaType != "" {
		query += ` AND t.media_type = ?`
		args = append(args, mediaType)
	}
	query += ` ORDER BY c.score DESC, t.name COLLATE NOCASE ASC, t.id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached scores: %w", err)
	}
	defer rows.Close()

	out := []ScoredTitle{}
	for rows.Next() {
		var st ScoredTitle
		if err := rows.Scan(&st.EntityID, &st.Name, &st.MediaType, &st.Year, &st.Score); err != nil {
			return nil, fmt.Errorf("failed to scan cached score: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// --- best of ---

// ReplaceBestOf swaps the stored ranking for mediaType
func (r *Repository) ReplaceBestOf(ctx context.Context, mediaType string, entries []BestOfEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM best_of WHERE media_type = ?`, mediaType); err != nil {
		return fmt.Errorf("failed to clear best of: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO best_of (media_type, entity_id, rank, score, computed_at) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare best of insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, mediaType, e.EntityID, e.Rank, e.Score, e.ComputedAt); err != nil {
			return fmt.Errorf("failed to insert best of entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit best of: %w", err)
	}
	return nil
}

func scanBestOf(row rowScanner) (BestOfEntry, error) {
	var e BestOfEntry
	err := row.Scan(&e.MediaType, &e.EntityID, &e.Name, &e.Year, &e.Rank, &e.Score, &e.ComputedAt)
	return e, err
}

// ListBestOf returns the top limit entries of a stored ranking
func (r *Repository) ListBestOf(ctx context.Context, mediaType string, limit int) ([]BestOfEntry, error) {
	stmt, err := r.db.GetPreparedStatement("list_best_of")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, mediaType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list best of: %w", err)
	}
	defer rows.Close()

	entries := []BestOfEntry{}
	for rows.Next() {
		e, err := scanBestOf(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan best of entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountBestOf returns the number of ranked titles for mediaType
func (r *Repository) CountBestOf(ctx context.Context, mediaType string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM best_of WHERE media_type = ?`, mediaType).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count best of: %w", err)
	}
	return n, nil
}

// GetBestOfRank returns one title's position in a stored ranking
func (r *Repository) GetBestOfRank(ctx context.Context, mediaType, entityID string) (*BestOfEntry, error) {
	stmt, err := r.db.GetPreparedStatement("get_best_of_rank")
	if err != nil {
		return nil, err
	}

	e, err := scanBestOf(stmt.QueryRowContext(ctx, mediaType, entityID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ranking for %s: %w", entityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rank: %w", err)
	}
	return &e, nil
}

// --- presets ---

// CreatePreset stores a named weight override set
func (r *Repository) CreatePreset(ctx context.Context, p *Preset) error {
	blob, err := encoding.MarshalString(p.Weights)
	if err != nil {
		return fmt.Errorf("failed to encode preset weights: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO presets (id, name, weights, created_at) VALUES (?, ?, ?, ?)
	`, p.ID, p.Name, blob, p.CreatedAt); err != nil {
		return fmt.Errorf("failed to create preset: %w", err)
	}
	return nil
}

func scanPreset(row rowScanner) (*Preset, error) {
	var p Preset
	var blob string
	if err := row.Scan(&p.ID, &p.Name, &blob, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Weights = map[string]int{}
	if err := encoding.UnmarshalString(blob, &p.Weights); err != nil {
		return nil, fmt.Errorf("failed to decode preset weights: %w", err)
	}
	return &p, nil
}

// GetPreset fetches one preset by id
func (r *Repository) GetPreset(ctx context.Context, id string) (*Preset, error) {
	stmt, err := r.db.GetPreparedStatement("get_preset")
	if err != nil {
		return nil, err
	}

	p, err := scanPreset(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("preset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preset: %w", err)
	}
	return p, nil
}

// ListPresets returns every preset by name
func (r *Repository) ListPresets(ctx context.Context) ([]Preset, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, weights, created_at FROM presets ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	defer rows.Close()

	presets := []Preset{}
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		presets = append(presets, *p)
	}
	return presets, rows.Err()
}

func expectAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", resource, id, ErrNotFound)
	}
	return nil
}
