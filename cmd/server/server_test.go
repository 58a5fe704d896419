package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/cinecritic/internal/bestof"
	"github.com/ZanzyTHEbar/cinecritic/internal/config"
	"github.com/ZanzyTHEbar/cinecritic/internal/database"
	"github.com/ZanzyTHEbar/cinecritic/internal/encoding"
	"github.com/ZanzyTHEbar/cinecritic/internal/monitoring"
	"github.com/ZanzyTHEbar/cinecritic/internal/types"
)

const testPassword = "correct horse battery"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t      *testing.T
	app    *app
	router *gin.Engine
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Defaults()
	cfg.Server.Mode = gin.TestMode
	cfg.Database.DataDir = t.TempDir()
	cfg.Auth.JWTSecret = "test-secret-at-least-16-bytes"
	cfg.Auth.AdminPassword = testPassword
	cfg.Scheduler.Enabled = false
	cfg.RateLimit.IPLimitPerMin = 10000
	cfg.RateLimit.WriteLimitPerMin = 10000

	db, err := database.NewDB(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := monitoring.NewLoggerWithWriter(io.Discard, slog.LevelError)
	a, err := newApp(context.Background(), cfg, db, logger)
	require.NoError(t, err)
	t.Cleanup(a.close)

	r, err := setupRouter(a)
	require.NoError(t, err)

	return &testServer{t: t, app: a, router: r}
}

func (s *testServer) do(method, path string, body interface{}, auth bool) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := encoding.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login() {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/auth/login", types.LoginRequest{Password: testPassword}, false)
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	var resp types.LoginResponse
	require.NoError(s.t, encoding.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(s.t, resp.Token)
	s.token = resp.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, encoding.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) createCriterion(name string, weight int, parentID *string) database.Criterion {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/admin/criteria", types.CreateCriterionRequest{Name: name, Weight: weight, ParentID: parentID}, true)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[database.Criterion](s.t, w)
}

func (s *testServer) createTitle(name, mediaType string) database.Title {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/admin/titles", types.CreateTitleRequest{Name: name, MediaType: mediaType, Year: 1999}, true)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[database.Title](s.t, w)
}

func ptr[T any](v T) *T { return &v }

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"GET /health returns OK", http.MethodGet, "/health", http.StatusOK},
		{"GET /health/live returns OK", http.MethodGet, "/health/live", http.StatusOK},
		{"GET /health/services returns OK", http.MethodGet, "/health/services", http.StatusOK},
		{"POST /health is not routed", http.MethodPost, "/health", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, nil, false)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}

	w := s.do(http.MethodGet, "/health", nil, false)
	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, version, body["version"])
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
	}{
		{"missing token", http.MethodPost, "/api/admin/recompute", ""},
		{"garbage token", http.MethodPost, "/api/admin/recompute", "not-a-jwt"},
		{"missing token on delete", http.MethodDelete, "/api/admin/titles/abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.token = tt.token
			w := s.do(tt.method, tt.path, nil, tt.token != "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/auth/login", types.LoginRequest{Password: "wrong"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", map[string]string{}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.login()
	w = s.do(http.MethodPost, "/api/admin/recompute", nil, true)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestEvaluationFlow(t *testing.T) {
	s := newTestServer(t)
	s.login()

	story := s.createCriterion("Story", 60, nil)
	visuals := s.createCriterion("Visuals", 40, nil)
	plot := s.createCriterion("Plot", 1, &story.ID)
	camera := s.createCriterion("Cinematography", 1, &visuals.ID)

	matrix := s.createTitle("The Matrix", database.MediaTypeMovie)
	unrated := s.createTitle("Dark", database.MediaTypeTV)

	w := s.do(http.MethodPost, "/api/admin/evaluations", types.SubmitEvaluationRequest{
		EntityID: matrix.ID,
		Notes:    "first watch",
		Scores: []types.ScoreValue{
			{CriteriaID: plot.ID, Value: ptr(4.0)},
			{CriteriaID: camera.ID, Value: ptr(3.0)},
		},
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	t.Run("title list puts rated titles first", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/titles", nil, false)
		require.Equal(t, http.StatusOK, w.Code)
		titles := decode[[]types.TitleScore](t, w)
		require.Len(t, titles, 2)
		assert.Equal(t, matrix.ID, titles[0].ID)
		require.NotNil(t, titles[0].Score)
		assert.Equal(t, 3.6, *titles[0].Score)
		assert.Nil(t, titles[1].Score)
	})

	t.Run("title detail", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/titles/"+matrix.ID, nil, false)
		require.Equal(t, http.StatusOK, w.Code)
		detail := decode[types.TitleDetail](t, w)
		require.Len(t, detail.Evaluations, 1)
		assert.Equal(t, "first watch", detail.Evaluations[0].Notes)
		assert.Len(t, detail.Evaluations[0].Scores, 2)
	})

	t.Run("live compute with explicit ids", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/scores/compute", types.ComputeRequest{EntityIDs: []string{matrix.ID, unrated.ID}}, false)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[types.ComputeResponse](t, w)
		assert.Equal(t, map[string]float64{matrix.ID: 3.6}, resp.Weighted)
		assert.Equal(t, "Story", resp.Breakdown[matrix.ID][0].Name)
		assert.Empty(t, resp.Breakdown[unrated.ID])
	})

	t.Run("breakdown map keeps its shape when disabled", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/scores/compute", types.ComputeRequest{
			EntityIDs:        []string{matrix.ID, unrated.ID},
			IncludeBreakdown: ptr(false),
		}, false)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		body := decode[map[string]interface{}](t, w)
		breakdown, ok := body["breakdown"].(map[string]interface{})
		require.True(t, ok, w.Body.String())
		for _, id := range []string{matrix.ID, unrated.ID} {
			entry, ok := breakdown[id]
			require.True(t, ok, "missing breakdown for %s", id)
			assert.Empty(t, entry)
			assert.NotNil(t, entry)
		}
	})

	t.Run("empty id list scores nothing", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/scores/compute", types.ComputeRequest{EntityIDs: []string{}}, false)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decode[types.ComputeResponse](t, w).Weighted)
	})

	t.Run("preset reweights live", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/admin/presets", types.CreatePresetRequest{
			Name:    "Eye candy",
			Weights: map[string]int{story.ID: 0, visuals.ID: 100},
		}, true)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		preset := decode[database.Preset](t, w)

		w = s.do(http.MethodPost, "/api/scores/compute", types.ComputeRequest{PresetID: preset.ID, IncludeBreakdown: ptr(false)}, false)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[types.ComputeResponse](t, w)
		assert.Equal(t, 3.0, resp.Weighted[matrix.ID])
		require.Contains(t, resp.Breakdown, matrix.ID)
		assert.Empty(t, resp.Breakdown[matrix.ID])
	})

	t.Run("best-of ranks the rated title", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/best/movie", nil, false)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[bestof.Response](t, w)
		require.Len(t, resp.Entries, 1)
		assert.Equal(t, 1, resp.Entries[0].Rank)
		assert.Equal(t, matrix.ID, resp.Entries[0].EntityID)

		w = s.do(http.MethodGet, "/api/best/tv/rank/"+unrated.ID, nil, false)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("weight change is reflected in cached scores", func(t *testing.T) {
		w := s.do(http.MethodPatch, "/api/admin/criteria/"+story.ID, types.UpdateWeightRequest{Weight: ptr(0)}, true)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = s.do(http.MethodGet, "/api/titles/"+matrix.ID, nil, false)
		detail := decode[types.TitleDetail](t, w)
		require.NotNil(t, detail.Score)
		assert.Equal(t, 3.0, *detail.Score)
	})

	t.Run("search", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/titles/search?q=matrx", nil, false)
		require.Equal(t, http.StatusOK, w.Code)
		results := decode[[]types.SearchResult](t, w)
		require.Len(t, results, 1)
		assert.Equal(t, matrix.ID, results[0].ID)
	})
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t)
	s.login()

	category := s.createCriterion("Acting", 50, nil)
	title := s.createTitle("Heat", database.MediaTypeMovie)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"bad media type filter", http.MethodGet, "/api/titles?media_type=book", nil, http.StatusBadRequest},
		{"bad best-of type", http.MethodGet, "/api/best/book", nil, http.StatusBadRequest},
		{"search without query", http.MethodGet, "/api/titles/search", nil, http.StatusBadRequest},
		{"unknown title", http.MethodGet, "/api/titles/00000000-0000-0000-0000-000000000000", nil, http.StatusNotFound},
		{"title without name", http.MethodPost, "/api/admin/titles", types.CreateTitleRequest{MediaType: "movie"}, http.StatusBadRequest},
		{"sub of a sub", http.MethodPost, "/api/admin/criteria", types.CreateCriterionRequest{Name: "x", Weight: 1, ParentID: ptr("00000000-0000-0000-0000-000000000000")}, http.StatusBadRequest},
		{"rating a category", http.MethodPost, "/api/admin/evaluations", types.SubmitEvaluationRequest{
			EntityID: title.ID,
			Scores:   []types.ScoreValue{{CriteriaID: category.ID, Value: ptr(3.0)}},
		}, http.StatusBadRequest},
		{"score out of range", http.MethodPost, "/api/admin/evaluations", types.SubmitEvaluationRequest{
			EntityID: title.ID,
			Scores:   []types.ScoreValue{{CriteriaID: category.ID, Value: ptr(7.0)}},
		}, http.StatusBadRequest},
		{"preset naming unknown criterion", http.MethodPost, "/api/admin/presets", types.CreatePresetRequest{
			Name:    "x",
			Weights: map[string]int{"nope": 10},
		}, http.StatusBadRequest},
		{"unknown preset", http.MethodPost, "/api/scores/compute", types.ComputeRequest{PresetID: "00000000-0000-0000-0000-000000000000"}, http.StatusNotFound},
		{"delete unknown evaluation", http.MethodDelete, "/api/admin/evaluations/missing", nil, http.StatusNotFound},
		{"import without catalog", http.MethodPost, "/api/admin/titles/import", types.ImportTitleRequest{MediaType: "movie", ExternalID: "603"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, tt.body, true)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestBodyRequiresJSONContentType(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("password=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestCriteriaTree(t *testing.T) {
	s := newTestServer(t)
	s.login()

	story := s.createCriterion("Story", 60, nil)
	s.createCriterion("Plot", 2, &story.ID)
	s.createCriterion("Dialogue", 1, &story.ID)
	s.createCriterion("Sound", 20, nil)

	w := s.do(http.MethodGet, "/api/criteria", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	tree := decode[types.CriteriaTree](t, w)

	require.Len(t, tree.Categories, 2)
	assert.Equal(t, "Story", tree.Categories[0].Name)
	assert.Len(t, tree.Categories[0].Subs, 2)
	assert.Empty(t, tree.Categories[1].Subs)
	assert.Empty(t, tree.Orphans)

	w = s.do(http.MethodDelete, "/api/admin/criteria/"+story.ID, nil, true)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/criteria", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	tree = decode[types.CriteriaTree](t, w)
	require.Len(t, tree.Categories, 1)
	assert.Equal(t, "Sound", tree.Categories[0].Name)
	assert.Empty(t, tree.Orphans, "sub-criteria go with their category")
}

func TestPagesRender(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/", http.StatusOK},
		{"/best/movie", http.StatusOK},
		{"/best/book", http.StatusNotFound},
		{"/static/style.css", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := s.do(http.MethodGet, tt.path, nil, false)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	w := s.do(http.MethodGet, "/", nil, false)
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "nonce-")
}
