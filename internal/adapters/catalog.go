package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/cinecritic/internal/config"
	"github.com/ZanzyTHEbar/cinecritic/internal/database"
	"github.com/ZanzyTHEbar/cinecritic/internal/encoding"
	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
	"github.com/ZanzyTHEbar/cinecritic/internal/monitoring"
	"github.com/ZanzyTHEbar/cinecritic/internal/resilience"
)

// CatalogAPIName names the catalog in breakers, metrics and logs
const CatalogAPIName = "catalog"

// DefaultImageBase prefixes relative poster paths
const DefaultImageBase = "https://image.tmdb.org/t/p/w500"

// ErrCatalogDisabled is returned when no catalog base URL is configured
var ErrCatalogDisabled = errors.New("catalog import is not configured")

// catalogMovie is the subset of a movie record we map
type catalogMovie struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	Overview    string `json:"overview"`
	PosterPath  string `json:"poster_path"`
}

// catalogShow is the subset of a TV record we map
type catalogShow struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	FirstAirDate string `json:"first_air_date"`
	Overview     string `json:"overview"`
	PosterPath   string `json:"poster_path"`
}

// CatalogAdapter fetches title metadata from a TMDB-compatible API
type CatalogAdapter struct {
	baseURL   string
	apiKey    string
	imageBase string
	client    *http.Client
	breaker   *resilience.CircuitBreaker
	retry     resilience.RetryConfig
	health    *resilience.DegradationManager
	metrics   *monitoring.Metrics
	logger    *monitoring.Logger
}

// CatalogOption configures a CatalogAdapter
type CatalogOption func(*CatalogAdapter)

// WithHealth reports call outcomes to a degradation manager
func WithHealth(dm *resilience.DegradationManager) CatalogOption {
	return func(c *CatalogAdapter) { c.health = dm }
}

// WithCatalogMetrics records calls in metrics
func WithCatalogMetrics(m *monitoring.Metrics) CatalogOption {
	return func(c *CatalogAdapter) { c.metrics = m }
}

// WithCatalogLogger logs every upstream call
func WithCatalogLogger(l *monitoring.Logger) CatalogOption {
	return func(c *CatalogAdapter) { c.logger = l }
}

// WithImageBase overrides the poster URL prefix
func WithImageBase(base string) CatalogOption {
	return func(c *CatalogAdapter) { c.imageBase = strings.TrimSuffix(base, "/") }
}

// NewCatalogAdapter creates a catalog client. The circuit breaker comes from
// breakers so its state is shared and visible in stats.
func NewCatalogAdapter(cfg config.CatalogConfig, breakers *resilience.CircuitBreakerRegistry, opts ...CatalogOption) *CatalogAdapter {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RetryAttempts

	c := &CatalogAdapter{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		imageBase: DefaultImageBase,
		client:    resilience.NewHTTPClient(10, cfg.Timeout),
		retry:     retry,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = breakers.GetOrCreate(CatalogAPIName, resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
		OnStateChange: func(name string, from, to resilience.CircuitBreakerState) {
			if c.metrics == nil {
				return
			}
			switch to {
			case resilience.StateOpen:
				c.metrics.IncrementCircuitBreakerOpen()
			case resilience.StateClosed:
				c.metrics.IncrementCircuitBreakerClose()
			}
		},
	})
	if c.health != nil {
		c.health.RegisterService(CatalogAPIName)
	}
	return c
}

// Enabled reports whether a base URL is configured
func (c *CatalogAdapter) Enabled() bool {
	return c.baseURL != ""
}

// FetchTitle looks up one movie or show and maps it onto a new, unsaved Title
func (c *CatalogAdapter) FetchTitle(ctx context.Context, mediaType, externalID string) (*database.Title, error) {
	if !c.Enabled() {
		return nil, apperrors.NewConfigurationError(ErrCatalogDisabled.Error(), ErrCatalogDisabled)
	}
	if !database.ValidMediaType(mediaType) {
		return nil, apperrors.NewValidationError("invalid media type", mediaType)
	}
	if _, err := strconv.ParseUint(externalID, 10, 64); err != nil {
		return nil, apperrors.NewValidationError("external id must be numeric", externalID)
	}

	body, err := c.get(ctx, "/"+mediaType+"/"+externalID, externalID)
	if err != nil {
		return nil, err
	}

	var title *database.Title
	switch mediaType {
	case database.MediaTypeMovie:
		var m catalogMovie
		if err := encoding.Unmarshal(body, &m); err != nil {
			return nil, apperrors.NewExternalAPIError(CatalogAPIName, fmt.Errorf("decoding movie: %w", err))
		}
		title = database.NewTitle(m.Title, mediaType, yearOf(m.ReleaseDate))
		title.Overview = m.Overview
		title.PosterURL = c.posterURL(m.PosterPath)
	default:
		var s catalogShow
		if err := encoding.Unmarshal(body, &s); err != nil {
			return nil, apperrors.NewExternalAPIError(CatalogAPIName, fmt.Errorf("decoding show: %w", err))
		}
		title = database.NewTitle(s.Name, mediaType, yearOf(s.FirstAirDate))
		title.Overview = s.Overview
		title.PosterURL = c.posterURL(s.PosterPath)
	}

	if strings.TrimSpace(title.Name) == "" {
		return nil, apperrors.NewExternalAPIError(CatalogAPIName, errors.New("record has no name"))
	}
	title.ExternalID = externalID
	return title, nil
}

func (c *CatalogAdapter) get(ctx context.Context, path, externalID string) ([]byte, error) {
	endpoint := c.baseURL + path
	if c.apiKey != "" {
		endpoint += "?" + url.Values{"api_key": {c.apiKey}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("building catalog request", err)
	}
	req.Header.Set("Accept", "application/json")

	retry := c.retry
	retry.RetryableErrors = func(error) bool { return ctx.Err() == nil }

	start := time.Now()
	var resp *http.Response
	err = c.breaker.Call(func() error {
		var callErr error
		resp, callErr = resilience.RetryHTTP(ctx, retry, func() (*http.Response, error) {
			return c.client.Do(req)
		})
		return callErr
	})
	duration := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	success := err == nil && status == http.StatusOK
	c.record(path, status, duration, success, err)

	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		var cbErr *resilience.CircuitBreakerError
		switch {
		case errors.As(err, &cbErr):
			return nil, apperrors.NewExternalAPIError(CatalogAPIName, err)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, apperrors.NewTimeoutError("catalog request timed out", err)
		case errors.Is(err, context.Canceled):
			return nil, err
		}
		var httpErr *resilience.HTTPError
		if errors.As(err, &httpErr) {
			return nil, apperrors.NewExternalAPIError(CatalogAPIName, err)
		}
		return nil, apperrors.NewNetworkError("catalog unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NewNotFoundError("catalog title", externalID)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.NewConfigurationError("catalog rejected the API key", resilience.NewHTTPError(resp.StatusCode, resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.NewExternalAPIError(CatalogAPIName, resilience.NewHTTPError(resp.StatusCode, resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.NewNetworkError("reading catalog response", err)
	}
	return body, nil
}

func (c *CatalogAdapter) record(path string, status int, duration time.Duration, success bool, err error) {
	if c.metrics != nil {
		c.metrics.RecordExternalAPIRequest(CatalogAPIName, success)
	}
	if c.logger != nil {
		c.logger.ExternalAPILogger(CatalogAPIName, http.MethodGet, path, status, duration, success)
	}
	if c.health != nil {
		// a 404 is a healthy answer
		if err == nil && status < http.StatusInternalServerError {
			c.health.RecordResult(CatalogAPIName, nil)
		} else {
			if err == nil {
				err = resilience.NewHTTPError(status, "")
			}
			c.health.RecordResult(CatalogAPIName, err)
		}
	}
}

func (c *CatalogAdapter) posterURL(path string) string {
	switch {
	case path == "":
		return ""
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		return path
	default:
		return c.imageBase + "/" + strings.TrimPrefix(path, "/")
	}
}

// yearOf extracts the year from a YYYY-MM-DD date; unknown dates give 0
func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
