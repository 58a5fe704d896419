package resilience

import (
	"context"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ZanzyTHEbar/cinecritic/internal/errors"
)

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	MaxAttempts     int              `json:"max_attempts"`
	InitialDelay    time.Duration    `json:"initial_delay"`
	MaxDelay        time.Duration    `json:"max_delay"`
	BackoffFactor   float64          `json:"backoff_factor"`
	JitterEnabled   bool             `json:"jitter_enabled"`
	RetryableErrors func(error) bool `json:"-"`
}

// DefaultRetryConfig returns sensible defaults for retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffFactor:   2.0,
		JitterEnabled:   true,
		RetryableErrors: errors.IsRetryableError,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 1
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = c.InitialDelay
	}
	if c.RetryableErrors == nil {
		c.RetryableErrors = errors.IsRetryableError
	}
	return c
}

// RetryableFunc represents a function that can be retried
type RetryableFunc func() error

// RetryWithConfig runs fn until it succeeds, returns a non-retryable error,
// runs out of attempts, or ctx is done
func RetryWithConfig(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	config = config.normalized()
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !config.RetryableErrors(err) || attempt == config.MaxAttempts-1 {
			break
		}

		if err := sleep(ctx, retryDelay(config, attempt, err)); err != nil {
			return err
		}
	}

	return lastErr
}

// retryDelay backs off further for rate-limited errors, still capped at MaxDelay
func retryDelay(config RetryConfig, attempt int, err error) time.Duration {
	delay := calculateDelay(config, attempt)
	if errors.ToAppError(err).Category != errors.CategoryRateLimit {
		return delay
	}
	if limited := errors.GetRetryDelay(err, attempt+1); limited > delay {
		delay = limited
	}
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

// Retry executes fn with the default configuration
func Retry(ctx context.Context, fn RetryableFunc) error {
	return RetryWithConfig(ctx, DefaultRetryConfig(), fn)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// calculateDelay is InitialDelay * BackoffFactor^attempt, capped, plus up to 10% jitter
func calculateDelay(config RetryConfig, attempt int) time.Duration {
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt)))
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if config.JitterEnabled {
		if spread := int64(delay / 10); spread > 0 {
			delay += time.Duration(rand.Int63n(spread))
		}
	}
	return delay
}

// RetryableHTTPFunc performs one HTTP round trip
type RetryableHTTPFunc func() (*http.Response, error)

// RetryHTTP retries transport errors and retryable status codes. Bodies of
// discarded responses are closed. When attempts run out on a retryable status
// the last response is returned together with an *HTTPError.
func RetryHTTP(ctx context.Context, config RetryConfig, fn RetryableHTTPFunc) (*http.Response, error) {
	config = config.normalized()
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if lastResp != nil {
			drain(lastResp)
			lastResp = nil
		}

		resp, err := fn()
		if err != nil {
			if !config.RetryableErrors(err) {
				return nil, err
			}
			lastErr = err
		} else {
			if !IsRetryableHTTPStatus(resp.StatusCode) {
				return resp, nil
			}
			lastResp = resp
			lastErr = NewHTTPError(resp.StatusCode, resp.Status)
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		delay := calculateDelay(config, attempt)
		if lastResp != nil {
			if ra := retryAfter(lastResp); ra > delay && ra <= config.MaxDelay {
				delay = ra
			}
		}
		if err := sleep(ctx, delay); err != nil {
			if lastResp != nil {
				drain(lastResp)
			}
			return nil, err
		}
	}

	return lastResp, lastErr
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func retryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// IsRetryableHTTPStatus reports whether a status code should trigger a retry
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	if e.Status != "" {
		return "upstream returned " + e.Status
	}
	return "upstream returned status " + strconv.Itoa(e.StatusCode)
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, status string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Status: status}
}
