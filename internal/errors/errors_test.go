package errors

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		category ErrorCategory
		status   int
		code     string
	}{
		{"validation", NewValidationError("bad input", "weight"), CategoryValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", NewNotFoundError("title", "abc"), CategoryNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"unauthorized", NewUnauthorizedError("missing token", nil), CategoryUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"network", NewNetworkError("dial failed", fmt.Errorf("connection refused")), CategoryNetwork, http.StatusBadGateway, "NETWORK_ERROR"},
		{"timeout", NewTimeoutError("too slow", nil), CategoryTimeout, http.StatusGatewayTimeout, "TIMEOUT_ERROR"},
		{"rate limit", NewRateLimitError("60"), CategoryRateLimit, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
		{"external api", NewExternalAPIError("catalog", nil), CategoryExternalAPI, http.StatusBadGateway, "EXTERNAL_API_ERROR"},
		{"internal", NewInternalError("boom", nil), CategoryInternal, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"configuration", NewConfigurationError("missing secret", nil), CategoryConfiguration, http.StatusInternalServerError, "CONFIGURATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Equal(t, tt.code, tt.err.Code())
			assert.Contains(t, tt.err.Error(), "["+tt.code+"]")
		})
	}
}

func TestNotFoundMessage(t *testing.T) {
	err := NewNotFoundError("title", "abc")
	assert.Equal(t, `[NOT_FOUND] title "abc" not found`, err.Error())
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category ErrorCategory
	}{
		{"sentinel not found", ErrNotFound, CategoryNotFound},
		{"wrapped not found", fmt.Errorf("getting title: %w", ErrNotFound), CategoryNotFound},
		{"no rows", fmt.Errorf("query: %w", sql.ErrNoRows), CategoryNotFound},
		{"canceled", context.Canceled, CategoryTimeout},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), CategoryTimeout},
		{"refused", fmt.Errorf("dial tcp: connection refused"), CategoryNetwork},
		{"plain", fmt.Errorf("something odd"), CategoryInternal},
		{"wrapped app error", fmt.Errorf("outer: %w", NewValidationError("inner")), CategoryValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := ToAppError(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.category, appErr.Category)
		})
	}

	assert.Nil(t, ToAppError(nil))
}

func TestFromValidationErrors(t *testing.T) {
	type payload struct {
		Name   string `validate:"required"`
		Weight int    `validate:"min=0,max=100"`
	}

	v := validator.New()
	err := v.Struct(payload{Weight: 150})
	require.Error(t, err)

	appErr := FromValidationErrors(err)
	assert.Equal(t, CategoryValidation, appErr.Category)
	assert.Equal(t, "is required", appErr.Fields["Name"])
	assert.Equal(t, "must be at most 100", appErr.Fields["Weight"])

	appErr = ToAppError(err)
	assert.Len(t, appErr.Fields, 2)
}

func TestRespond(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/missing", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("lookup: %w", ErrNotFound))
	})
	router.GET("/limited", func(c *gin.Context) {
		Respond(c, NewRateLimitError("30"))
	})
	router.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	t.Run("error handler renders handler errors", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/missing", nil)
		req.Header.Set("X-Request-ID", "req-1")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)

		var body Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "NOT_FOUND", body.Code)
		assert.Equal(t, CategoryNotFound, body.Category)
		assert.Equal(t, "req-1", body.RequestID)
	})

	t.Run("rate limit sets retry header", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get("Retry-After"))
	})

	t.Run("success passes through", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRecoveryHandler(t *testing.T) {
	router := gin.New()
	router.Use(RecoveryHandler())
	router.GET("/panic", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	assert.NotContains(t, w.Body.String(), "kaboom", "panic values stay out of the response")
}

func TestRetryPolicy(t *testing.T) {
	assert.True(t, IsRetryableError(NewNetworkError("x", nil)))
	assert.True(t, IsRetryableError(NewExternalAPIError("catalog", nil)))
	assert.False(t, IsRetryableError(NewValidationError("x")))
	assert.False(t, IsRetryableError(NewNotFoundError("title", "1")))
	assert.False(t, IsRetryableError(nil))

	assert.Equal(t, 4*time.Second, GetRetryDelay(NewRateLimitError("1"), 2))
	assert.Equal(t, 800*time.Millisecond, GetRetryDelay(NewNetworkError("x", nil), 2))
	assert.Equal(t, 200*time.Millisecond, GetRetryDelay(NewValidationError("x"), 2))
}

type stubCloser struct {
	err    error
	closed bool
}

func (s *stubCloser) Close() error {
	s.closed = true
	return s.err
}

func TestSafeClose(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ok := &stubCloser{}
	SafeClose(ok, "cache")
	assert.True(t, ok.closed)
	assert.Empty(t, buf.String())

	failing := &stubCloser{err: fmt.Errorf("disk gone")}
	SafeClose(failing, "database")
	assert.True(t, failing.closed)
	assert.Contains(t, buf.String(), "resource=database")
	assert.Contains(t, buf.String(), "disk gone")

	assert.NotPanics(t, func() { SafeClose(nil, "nothing") })
}
