package security

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/cinecritic/internal/database"
	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestValidateText(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		max         int
		expectError string
	}{
		{name: "plain", input: "Great pacing", max: 20},
		{name: "multibyte counts runes", input: strings.Repeat("é", 5), max: 5},
		{name: "too long", input: strings.Repeat("a", 6), max: 5, expectError: "exceeds maximum length of 5 characters"},
		{name: "null byte", input: "bad\x00input", max: 20, expectError: "contains invalid characters"},
		{name: "invalid utf8", input: "bad\xff\xfe", max: 20, expectError: "contains invalid UTF-8 encoding"},
		{name: "no limit", input: strings.Repeat("a", 50000), max: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateText("notes", tt.input, tt.max)
			if tt.expectError == "" {
				assert.NoError(t, err)
				return
			}
			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, apperrors.CategoryValidation, appErr.Category)
			assert.Equal(t, tt.expectError, appErr.Fields["notes"])
		})
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	tests := []struct {
		name string
		hsts bool
	}{
		{"without hsts", false},
		{"with hsts", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(SecurityHeadersMiddleware(tt.hsts))
			router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, tt.hsts, w.Header().Get("Strict-Transport-Security") != "")
		})
	}
}

func TestCSPMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(CSPMiddleware(""))
	var seen []string
	router.GET("/", func(c *gin.Context) {
		seen = append(seen, GetNonce(c))
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		policy := w.Header().Get("Content-Security-Policy")
		assert.Contains(t, policy, "'nonce-"+seen[i]+"'")
		assert.Contains(t, policy, "frame-ancestors 'none'")
		assert.Empty(t, w.Header().Get("Content-Security-Policy-Report-Only"))
	}

	require.Len(t, seen, 2)
	assert.NotEmpty(t, seen[0])
	assert.NotEqual(t, seen[0], seen[1], "nonce is fresh per request")
}

func TestCSPMiddleware_ReportURI(t *testing.T) {
	router := gin.New()
	router.Use(CSPMiddleware("/csp-report"))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, strings.HasSuffix(w.Header().Get("Content-Security-Policy-Report-Only"), "report-uri /csp-report"))
}

func TestGetNonce_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", GetNonce(c))
}

func TestValidateContentType(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())
	router := gin.New()
	router.Use(sm.ValidateContentType)
	router.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"json", "application/json", `{}`, http.StatusOK},
		{"json with charset", "application/json; charset=utf-8", `{}`, http.StatusOK},
		{"xml", "application/xml", `<a/>`, http.StatusUnsupportedMediaType},
		{"missing type", "", `{}`, http.StatusUnsupportedMediaType},
		{"empty body", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	sm := NewSecurityMiddleware(SecurityConfig{RequestTimeout: 2 * time.Second})
	router := gin.New()
	router.Use(sm.RequestTimeout)

	var deadline time.Time
	var ok bool
	router.GET("/", func(c *gin.Context) {
		deadline, ok = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(2*time.Second), deadline, time.Second)
	assert.Equal(t, "2", w.Header().Get("X-Timeout"))
}

func TestAdminAuth(t *testing.T) {
	auth := database.NewAuthService("0123456789abcdef0123", "hunter2", time.Hour)
	valid, err := auth.GenerateAdminToken("ops")
	require.NoError(t, err)

	other := database.NewAuthService("another-secret-entirely", "", time.Hour)
	forged, err := other.GenerateAdminToken("ops")
	require.NoError(t, err)

	router := gin.New()
	router.Use(AdminAuth(auth))
	router.GET("/admin", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(AdminSubjectKey))
	})

	tests := []struct {
		name   string
		header string
		want   int
		body   string
	}{
		{name: "valid", header: "Bearer " + valid, want: http.StatusOK, body: "ops"},
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + valid, want: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + forged, want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer not.a.jwt", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}
