package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/cinecritic/internal/bestof"
	"github.com/ZanzyTHEbar/cinecritic/internal/database"
	"github.com/ZanzyTHEbar/cinecritic/internal/encoding"
	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
	"github.com/ZanzyTHEbar/cinecritic/internal/resilience"
	"github.com/ZanzyTHEbar/cinecritic/internal/scoring"
	"github.com/ZanzyTHEbar/cinecritic/internal/search"
	"github.com/ZanzyTHEbar/cinecritic/internal/security"
	"github.com/ZanzyTHEbar/cinecritic/internal/types"
)

// recomputeTimeout bounds admin-triggered recomputes
const recomputeTimeout = 2 * time.Minute

// bindJSON decodes the request body into v and validates it
func bindJSON(c *gin.Context, v interface{}) error {
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.NewValidationError("Request body too large", tooLarge.Limit)
		}
		return apperrors.NewValidationError("Failed to read request body", err)
	}
	if err := encoding.Unmarshal(body, v); err != nil {
		return apperrors.NewValidationError("Invalid JSON body", err)
	}
	if err := types.Validate(v); err != nil {
		return apperrors.FromValidationErrors(err)
	}
	return nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewFieldValidationError(map[string]string{key: "must be an integer"})
	}
	return n, nil
}

func mediaTypeFilter(c *gin.Context) (string, error) {
	mediaType := c.Query("media_type")
	if mediaType != "" && !database.ValidMediaType(mediaType) {
		return "", apperrors.NewFieldValidationError(map[string]string{"media_type": "must be one of: movie tv"})
	}
	return mediaType, nil
}

// refreshAll recomputes every score after a change to criteria or titles.
// The change is already stored, so a failure is only logged.
func (a *app) refreshAll(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), recomputeTimeout)
	defer cancel()
	if _, err := a.ratings.RecomputeAll(ctx); err != nil {
		a.logger.Error("Recompute after change failed", "path", c.Request.URL.Path, "error", err)
		a.responses.Clear()
	}
}

// handleHealth godoc
// @Summary      Service health
// @Description  Reports database reachability and upstream degradation
// @Tags         ops
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /health [get]
func (a *app) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	checks := gin.H{"database": "ok", "redis": "disabled"}

	if err := a.db.PingContext(ctx); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
		checks["database"] = err.Error()
	}

	if a.redis.IsEnabled() {
		if err := a.redis.HealthCheck(ctx); err != nil {
			checks["redis"] = err.Error()
			if code == http.StatusOK {
				status = "degraded"
			}
		} else {
			checks["redis"] = "ok"
		}
	}

	for name, h := range a.degradation.GetAllServiceHealth() {
		checks[name] = h.LevelName
		if h.Level == resilience.LevelEmergency && code == http.StatusOK {
			status = "degraded"
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleServiceHealth godoc
// @Summary      Upstream service health
// @Tags         ops
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /health/services [get]
func (a *app) handleServiceHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"services":         a.degradation.GetAllServiceHealth(),
		"circuit_breakers": a.breakers.GetStats(),
		"redis":            a.redis.GetPoolStats(),
	})
}

// handleMetrics godoc
// @Summary      In-process metrics
// @Tags         ops
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /metrics [get]
func (a *app) handleMetrics(c *gin.Context) {
	encoding.JSON(c, http.StatusOK, gin.H{
		"application":   a.metrics.GetStats(),
		"database_pool": a.db.GetPoolStats(),
		"rate_limits":   a.metrics.GetRateLimitStats(),
		"compression":   a.compression.GetStats(),
	})
}

// handleListTitles godoc
// @Summary      List titles with scores
// @Description  Rated titles come first, best score first
// @Tags         titles
// @Produce      json
// @Param        media_type  query     string  false  "movie or tv"
// @Success      200         {array}   types.TitleScore
// @Failure      400         {object}  apperrors.Response
// @Router       /api/titles [get]
func (a *app) handleListTitles(c *gin.Context) {
	mediaType, err := mediaTypeFilter(c)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	titles, err := a.ratings.ListTitleScores(c.Request.Context(), mediaType)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	encoding.JSON(c, http.StatusOK, titles)
}

// handleSearchTitles godoc
// @Summary      Search titles by name
// @Description  Accent and case insensitive, tolerates small typos
// @Tags         titles
// @Produce      json
// @Param        q           query     string  true   "search text"
// @Param        media_type  query     string  false  "movie or tv"
// @Param        limit       query     int     false  "max results"
// @Success      200         {array}   types.SearchResult
// @Failure      400         {object}  apperrors.Response
// @Router       /api/titles/search [get]
func (a *app) handleSearchTitles(c *gin.Context) {
	query := c.Query("q")
	if err := security.ValidateText("q", query, security.MaxNameLength); err != nil {
		apperrors.Respond(c, err)
		return
	}
	if query == "" {
		apperrors.Respond(c, apperrors.NewFieldValidationError(map[string]string{"q": "is required"}))
		return
	}
	mediaType, err := mediaTypeFilter(c)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	var (
		titles []database.Title
		scored []types.TitleScore
	)
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		titles, err = a.repo.ListTitles(ctx, mediaType)
		return err
	})
	g.Go(func() error {
		var err error
		scored, err = a.ratings.ListTitleScores(ctx, mediaType)
		return err
	})
	if err := g.Wait(); err != nil {
		apperrors.Respond(c, err)
		return
	}

	byID := make(map[string]types.TitleScore, len(scored))
	for _, ts := range scored {
		byID[ts.ID] = ts
	}

	matches := search.Rank(query, titles, limit)
	results := make([]types.SearchResult, 0, len(matches))
	for _, m := range matches {
		ts, ok := byID[m.Title.ID]
		if !ok {
			// created between the two reads
			continue
		}
		results = append(results, types.SearchResult{TitleScore: ts, Match: m.Score})
	}
	encoding.JSON(c, http.StatusOK, results)
}

// handleGetTitle godoc
// @Summary      Title detail
// @Description  The title, its score and every evaluation pass, newest first
// @Tags         titles
// @Produce      json
// @Param        id   path      string  true  "title id"
// @Success      200  {object}  types.TitleDetail
// @Failure      404  {object}  apperrors.Response
// @Router       /api/titles/{id} [get]
func (a *app) handleGetTitle(c *gin.Context) {
	detail, err := a.ratings.TitleDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	encoding.JSON(c, http.StatusOK, detail)
}

// handleComputeScores godoc
// @Summary      Compute scores live
// @Description  Runs the aggregator without touching the cache. Omitted entity_ids scores every evaluated title; an empty list scores none.
// @Tags         scores
// @Accept       json
// @Produce      json
// @Param        request  body      types.ComputeRequest  true  "computation"
// @Success      200      {object}  types.ComputeResponse
// @Failure      400      {object}  apperrors.Response
// @Failure      404      {object}  apperrors.Response
// @Router       /api/scores/compute [post]
func (a *app) handleComputeScores(c *gin.Context) {
	var req types.ComputeRequest
	if err := bindJSON(c, &req); err != nil {
		apperrors.Respond(c, err)
		return
	}

	var (
		result scoring.Result
		err    error
	)
	if req.PresetID != "" {
		result, err = a.ratings.ComputeWithPreset(c.Request.Context(), req.PresetID, req.EntityIDs, req.WantBreakdown())
	} else {
		result, err = a.ratings.Compute(c.Request.Context(), req.EntityIDs, req.WantBreakdown())
	}
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	encoding.JSON(c, http.StatusOK, types.ComputeResponse{
		Weighted:  result.Weighted,
		Breakdown: result.Breakdown,
	})
}

// handleListCriteria godoc
// @Summary      Criteria tree
// @Tags         criteria
// @Produce      json
// @Success      200  {object}  types.CriteriaTree
// @Router       /api/criteria [get]
func (a *app) handleListCriteria(c *gin.Context) {
	criteria, err := a.repo.ListCriteria(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	encoding.JSON(c, http.StatusOK, types.BuildCriteriaTree(criteria))
}

// handleBestOf godoc
// @Summary      Best-of ranking
// @Tags         best
// @Produce      json
// @Param        mediaType  path      string  true   "movie, tv or all"
// @Param        limit      query     int     false  "page size"
// @Success      200        {object}  bestof.Response
// @Failure      400        {object}  apperrors.Response
// @Router       /api/best/{mediaType} [get]
func (a *app) handleBestOf(c *gin.Context) {
	mediaType := c.Param("mediaType")
	if !bestof.ValidMediaType(mediaType) {
		apperrors.Respond(c, apperrors.NewFieldValidationError(map[string]string{"mediaType": "must be one of: movie tv all"}))
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	resp, err := a.bestOf.Get(c.Request.Context(), mediaType, bestof.NormalizeLimit(limit))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	encoding.JSON(c, http.StatusOK, resp)
}

// handleBestOfRank godoc
// @Summary      Rank of one title
// @Tags         best
// @Produce      json
// @Param        mediaType  path      string  true  "movie, tv or all"
// @Param        id         path      string  true  "title id"
// @Success      200        {object}  database.BestOfEntry
// @Failure      404        {object}  apperrors.Response
// @Router       /api/best/{mediaType}/rank/{id} [get]
func (a *app) handleBestOfRank(c *gin.Context) {
	mediaType := c.Param("mediaType")
	if !bestof.ValidMediaType(mediaType) {
		apperrors.Respond(c, apperrors.NewFieldValidationError(map[string]string{"mediaType": "must be one of: movie tv all"}))
		return
	}

	entry, err := a.bestOf.Rank(c.Request.Context(), c.Param("id"), mediaType)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	encoding.JSON(c, http.StatusOK, entry)
}

// handleListPresets godoc
// @Summary      Weight presets
// @Tags         presets
// @Produce      json
// @Success      200  {array}  database.Preset
// @Router       /api/presets [get]
func (a *app) handleListPresets(c *gin.Context) {
	presets, err := a.repo.ListPresets(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	encoding.JSON(c, http.StatusOK, presets)
}

// handleLogin godoc
// @Summary      Admin login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      types.LoginRequest  true  "credentials"
// @Success      200      {object}  types.LoginResponse
// @Failure      401      {object}  apperrors.Response
// @Router       /api/auth/login [post]
func (a *app) handleLogin(c *gin.Context) {
	var req types.LoginRequest
	if err := bindJSON(c, &req); err != nil {
		apperrors.Respond(c, err)
		return
	}

	token, err := a.auth.Login(req.Password)
	if err != nil {
		if errors.Is(err, database.ErrInvalidCredentials) {
			a.logger.SecurityLogger("admin_login_failed", c.ClientIP(), c.Request.UserAgent(), nil)
			apperrors.Respond(c, apperrors.NewUnauthorizedError("Invalid credentials", err))
			return
		}
		apperrors.Respond(c, err)
		return
	}

	encoding.JSON(c, http.StatusOK, types.LoginResponse{
		Token:     token,
		ExpiresIn: int64(a.cfg.Auth.TokenTTL.Seconds()),
	})
}

// handleCreateTitle godoc
// @Summary      Add a title
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      types.CreateTitleRequest  true  "title"
// @Success      201      {object}  database.Title
// @Failure      400      {object}  apperrors.Response
// @Router       /api/admin/titles [post]
func (a *app) handleCreateTitle(c *gin.Context) {
	var req types.CreateTitleRequest
	if err := bindJSON(c, &req); err != nil {
		apperrors.Respond(c, err)
		return
	}
	if err := security.ValidateText("name", req.Name, security.MaxNameLength); err != nil {
		apperrors.Respond(c, err)
		return
	}

	title := database.NewTitle(req.Name, req.MediaType, req.Year)
	title.PosterURL = req.PosterURL
	title.Overview = req.Overview
	if err := a.repo.CreateTitle(c.Request.Context(), title); err != nil {
		apperrors.Respond(c, err)
		return
	}

	a.responses.Clear()
	encoding.JSON(c, http.StatusCreated, title)
}

// handleImportTitle godoc
// @Summary      Import a title from the catalog
// @Description  Creates the title, or refreshes its metadata when the external id is already known
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      types.ImportTitleRequest  true  "catalog reference"
// @Success      200      {object}  database.Title
// @Success      201      {object}  database.Title
// @Failure      502      {object}  apperrors.Response
// @Router       /api/admin/titles/import [post]
func (a *app) handleImportTitle(c *gin.Context) {
	var req types.ImportTitleRequest
	if err := bindJSON(c, &req); err != nil {
		apperrors.Respond(c, err)
		return
	}

	fetched, err := a.catalog.FetchTitle(c.Request.Context(), req.MediaType, req.ExternalID)
	if err != nil {
		a.logger.ImportLogger(req.MediaType, req.ExternalID, "", false, err)
		apperrors.Respond(c, err)
		return
	}

	title, created, err := a.repo.UpsertTitleByExternalID(c.Request.Context(), fetched)
	if err != nil {
		a.logger.ImportLogger(req.MediaType, req.ExternalID, "", false, err)
		apperrors.Respond(c, err)
		return
	}
	a.logger.ImportLogger(req.MediaType, req.ExternalID, title.ID, created, nil)

	a.responses.Clear()
	a.bestOf.InvalidateCache()

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	encoding.JSON(c, status, title)
}

// handleDeleteTitle godoc
// @Summary      Delete a title and its evaluations
// @Tags         admin
// @Security     BearerAuth
// @Param        id  path  string  true  "title id"
// @Success      204
// @Failure      404  {object}  apperrors.Response
// @Router       /api/admin/titles/{id} [delete]
func (a *app) handleDeleteTitle(c *gin.Context) {
	if err := a.repo.DeleteTitle(c.Request.Context(), c.Param("id")); err != nil {
		apperrors.Respond(c, err)
		return
	}
	a.refreshAll(c)
	c.Status(http.StatusNoContent)
}

// handleCreateCriterion godoc
// @Summary      Add a category or sub-criterion
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      types.CreateCriterionRequest  true  "criterion"
// @Success      201      {object}  database.Criterion
// @Failure      400      {object}  apperrors.Response
// @Router       /api/admin/criteria [post]
func (a *app) handleCreateCriterion(c *gin.Context) {
	var req types.CreateCriterionRequest
	if err := bindJSON(c, &req); err != nil {
		apperrors.Respond(c, err)
		return
	}
	if err := security.ValidateText("name", req.Name, security.MaxNameLength); err != nil {
		apperrors.Respond(c, err)
		return
	}

	criterion := database.NewCriterion(req.Name, req.Weight, req.ParentID)
	if err := a.repo.CreateCriterion(c.Request.Context(), criterion); err != nil {
		if errors.Is(err, database.ErrInvalidParent) {
			err = apperrors.NewFieldValidationError(map[string]string{"parent_id": "must be an existing category"})
		}
		apperrors.Respond(c, err)
		return
	}

	a.refreshAll(c)
	encoding.JSON(c, http.StatusCreated, criterion)
}

// handleUpdateCriterion godoc
// @Summary      Change a criterion weight
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true  "criterion id"
// @Param        request  body      types.UpdateWeightRequest  true  "new weight"
// @Success      200      {object}  map[string]interface{}
// @Failure      404      {object}  apperrors.Response
// @Router       /api/admin/criteria/{id} [patch]
func (a *app) handleUpdateCriterion(c *gin.Context) {
	var req types.UpdateWeightRequest
	if err := bindJSON(c, &req); err != nil {
		apperrors.Respond(c, err)
		return
	}

	id := c.Param("id")
	if err := a.repo.UpdateCriterionWeight(c.Request.Context(), id, *req.Weight); err != nil {
		apperrors.Respond(c, err)
		return
	}

	a.refreshAll(c)
	encoding.JSON(c, http.StatusOK, gin.H{"id": id, "weight": *req.Weight})
}

// handleDeleteCriterion godoc
// @Summary      Delete a criterion
// @Description  Deleting a category also deletes its sub-criteria and their scores
// @Tags         admin
// @Security     BearerAuth
// @Param        id  path  string  true  "criterion id"
// @Success      204
// @Failure      404  {object}  apperrors.Response
// @Router       /api/admin/criteria/{id} [delete]
func (a *app) handleDeleteCriterion(c *gin.Context) {
	if err := a.repo.DeleteCriterion(c.Request.Context(), c.Param("id")); err != nil {
		apperrors.Respond(c, err)
		return
	}
	a.refreshAll(c)
	c.Status(http.StatusNoContent)
}

// handleSubmitEvaluation godoc
// @Summary      Record an evaluation pass
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      types.SubmitEvaluationRequest  true  "ratings"
// @Success      201      {object}  database.Evaluation
// @Failure      400      {object}  apperrors.Response
// @Failure      404      {object}  apperrors.Response
// @Router       /api/admin/evaluations [post]
func (a *app) handleSubmitEvaluation(c *gin.Context) {
	var req types.SubmitEvaluationRequest
	if err := bindJSON(c, &req); err != nil {
		apperrors.Respond(c, err)
		return
	}
	if err := security.ValidateText("notes", req.Notes, security.MaxNotesLength); err != nil {
		apperrors.Respond(c, err)
		return
	}

	ev, err := a.ratings.SubmitEvaluation(c.Request.Context(), req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	encoding.JSON(c, http.StatusCreated, ev)
}

// handleDeleteEvaluation godoc
// @Summary      Delete an evaluation pass
// @Tags         admin
// @Security     BearerAuth
// @Param        id  path  string  true  "evaluation id"
// @Success      204
// @Failure      404  {object}  apperrors.Response
// @Router       /api/admin/evaluations/{id} [delete]
func (a *app) handleDeleteEvaluation(c *gin.Context) {
	if err := a.ratings.DeleteEvaluation(c.Request.Context(), c.Param("id")); err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleCreatePreset godoc
// @Summary      Store a weight preset
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      types.CreatePresetRequest  true  "preset"
// @Success      201      {object}  database.Preset
// @Failure      400      {object}  apperrors.Response
// @Router       /api/admin/presets [post]
func (a *app) handleCreatePreset(c *gin.Context) {
	var req types.CreatePresetRequest
	if err := bindJSON(c, &req); err != nil {
		apperrors.Respond(c, err)
		return
	}
	if err := security.ValidateText("name", req.Name, security.MaxNameLength); err != nil {
		apperrors.Respond(c, err)
		return
	}

	criteria, err := a.repo.ListCriteria(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	known := make(map[string]struct{}, len(criteria))
	for _, cr := range criteria {
		known[cr.ID] = struct{}{}
	}
	fields := make(map[string]string)
	for id := range req.Weights {
		if _, ok := known[id]; !ok {
			fields["weights."+id] = "is not a known criterion"
		}
	}
	if len(fields) > 0 {
		apperrors.Respond(c, apperrors.NewFieldValidationError(fields))
		return
	}

	preset := database.NewPreset(req.Name, req.Weights)
	if err := a.repo.CreatePreset(c.Request.Context(), preset); err != nil {
		apperrors.Respond(c, err)
		return
	}

	a.responses.Clear()
	encoding.JSON(c, http.StatusCreated, preset)
}

// handleRecompute godoc
// @Summary      Rebuild every cached score
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  types.RecomputeResponse
// @Router       /api/admin/recompute [post]
func (a *app) handleRecompute(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), recomputeTimeout)
	defer cancel()

	start := time.Now()
	result, err := a.ratings.RecomputeAll(ctx)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	encoding.JSON(c, http.StatusOK, types.RecomputeResponse{
		Scored:     len(result.Weighted),
		DurationMS: time.Since(start).Milliseconds(),
	})
}

// handleSchedulerStats godoc
// @Summary      Recompute scheduler state
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /api/admin/scheduler [get]
func (a *app) handleSchedulerStats(c *gin.Context) {
	if a.scheduler == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	stats := a.scheduler.Stats()
	stats["enabled"] = true
	c.JSON(http.StatusOK, stats)
}

// handleCacheStats godoc
// @Summary      Cache statistics
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /api/admin/cache/stats [get]
func (a *app) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"responses": a.responses.Stats(),
		"best_of":   a.bestOf.GetCacheStats(),
	})
}

// handleClearCache godoc
// @Summary      Drop cached responses and rankings
// @Tags         admin
// @Security     BearerAuth
// @Success      204
// @Router       /api/admin/cache [delete]
func (a *app) handleClearCache(c *gin.Context) {
	a.responses.Clear()
	a.bestOf.InvalidateCache()
	a.logger.CacheLogger("clear", "*", false, 0)
	c.Status(http.StatusNoContent)
}
