package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = errors.New("not found")

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryUnauthorized  ErrorCategory = "unauthorized"
	CategoryNetwork       ErrorCategory = "network"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryInternal      ErrorCategory = "internal"
	CategoryExternalAPI   ErrorCategory = "external_api"
	CategoryConfiguration ErrorCategory = "configuration"
)

// AppError wraps an errbuilder error with HTTP context
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory
	HTTPStatus int
	Timestamp  time.Time
	RequestID  string
	StackTrace string
	// Fields carries per-field messages for validation failures
	Fields map[string]string
}

// Response is the JSON body written for every failed request
type Response struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	Category  ErrorCategory     `json:"category"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Code returns the stable string code clients can switch on
func (e *AppError) Code() string {
	switch e.ErrBuilder.ErrCode() {
	case errbuilder.CodeInvalidArgument:
		return "VALIDATION_ERROR"
	case errbuilder.CodeNotFound:
		return "NOT_FOUND"
	case errbuilder.CodeUnauthenticated:
		return "UNAUTHORIZED"
	case errbuilder.CodeUnavailable:
		if e.Category == CategoryExternalAPI {
			return "EXTERNAL_API_ERROR"
		}
		return "NETWORK_ERROR"
	case errbuilder.CodeDeadlineExceeded:
		return "TIMEOUT_ERROR"
	case errbuilder.CodeResourceExhausted:
		return "RATE_LIMIT_EXCEEDED"
	case errbuilder.CodeInternal:
		return "INTERNAL_ERROR"
	case errbuilder.CodeFailedPrecondition:
		return "CONFIGURATION_ERROR"
	}
	return "UNKNOWN_ERROR"
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code(), e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// Response builds the client-facing body; causes and stack traces stay server side
func (e *AppError) Response() Response {
	return Response{
		Error:     e.ErrBuilder.Msg,
		Code:      e.Code(),
		Category:  e.Category,
		Fields:    e.Fields,
		RequestID: e.RequestID,
		Timestamp: e.Timestamp,
	}
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// NewValidationError creates a validation error using errbuilder
func NewValidationError(message string, details ...interface{}) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	if len(details) > 0 {
		errorMap := errbuilder.ErrorMap{}
		errorMap.Set("validation_details", fmt.Errorf("%v", details[0]))
		builder = builder.WithDetails(errbuilder.NewErrDetails(errorMap))
	}

	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewFieldValidationError reports several invalid fields at once
func NewFieldValidationError(fields map[string]string) *AppError {
	errMap := errbuilder.ErrorMap{}
	for field, message := range fields {
		errMap.Set(field, errors.New(message))
	}

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("Invalid request").
		WithDetails(errbuilder.NewErrDetails(errMap))

	appErr := NewAppError(builder, CategoryValidation, http.StatusBadRequest)
	appErr.Fields = fields
	return appErr
}

// FromValidationErrors converts validator failures into a field validation error.
// Field names use the json namespace registered on the validator.
func FromValidationErrors(err error) *AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewValidationError("Invalid request", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describeTag(fe)
	}
	return NewFieldValidationError(fields)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "uuid4", "uuid":
		return "must be a valid UUID"
	case "url":
		return "must be a valid URL"
	case "dive":
		return "contains an invalid element"
	}
	if fe.Param() != "" {
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
	return "failed " + fe.Tag()
}

// NewNotFoundError reports a missing resource
func NewNotFoundError(resource, id string) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("resource", errors.New(resource))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("%s %q not found", resource, id)).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewAppError(builder, CategoryNotFound, http.StatusNotFound)
}

// NewUnauthorizedError reports missing or rejected credentials
func NewUnauthorizedError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnauthenticated).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryUnauthorized, http.StatusUnauthorized)
}

// NewNetworkError creates a network error using errbuilder
func NewNetworkError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryNetwork, http.StatusBadGateway)
}

// NewTimeoutError creates a timeout error using errbuilder
func NewTimeoutError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryTimeout, http.StatusGatewayTimeout)
}

// NewRateLimitError creates a rate limit error using errbuilder
func NewRateLimitError(retryAfter string) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("retry_after", errors.New(retryAfter))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg("Rate limit exceeded").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
}

// NewExternalAPIError creates an external API error using errbuilder
func NewExternalAPIError(apiName string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("api_name", errors.New(apiName))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(fmt.Sprintf("%s API error", apiName)).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryExternalAPI, http.StatusBadGateway)
}

// NewInternalError creates an internal server error using errbuilder
func NewInternalError(message string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("internal_details", errors.New(message))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("Internal server error").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	appErr := NewAppError(builder, CategoryInternal, http.StatusInternalServerError)

	if gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode {
		appErr.StackTrace = captureStackTrace()
	}

	return appErr
}

// NewConfigurationError creates a configuration error using errbuilder
func NewConfigurationError(message string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("config_details", errors.New(message))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg("Configuration error").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryConfiguration, http.StatusInternalServerError)
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ErrorHandler is a Gin middleware that renders the last handler error
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		Respond(c, c.Errors.Last().Err)
	}
}

// Respond logs err and writes its structured body, aborting the chain
func Respond(c *gin.Context, err error) {
	appErr := ToAppError(err)
	if appErr.RequestID == "" {
		appErr.RequestID = c.GetHeader("X-Request-ID")
	}

	LogError(c, appErr)

	if appErr.Category == CategoryRateLimit {
		if retry := c.Writer.Header().Get("Retry-After"); retry == "" {
			c.Header("Retry-After", "60")
		}
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Response())
}

// RecoveryHandler provides panic recovery with structured error responses
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", recovered),
			fmt.Errorf("%v", recovered),
		)
		appErr.StackTrace = captureStackTrace()

		Respond(c, appErr)
	})
}

// ToAppError converts any error to an AppError
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	if errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
		builder := errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("Resource not found").
			WithCause(err)
		return NewAppError(builder, CategoryNotFound, http.StatusNotFound)
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return FromValidationErrors(verrs)
	}

	if errors.Is(err, context.Canceled) {
		return NewTimeoutError("Request cancelled", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("Request deadline exceeded", err)
	}

	errMsg := err.Error()

	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "no such host") ||
		strings.Contains(errMsg, "network is unreachable") {
		return NewNetworkError("Network connection failed", err)
	}

	if strings.Contains(errMsg, "timeout") {
		return NewTimeoutError("Request timeout", err)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// LogError logs an error with appropriate level and context
func LogError(c *gin.Context, err *AppError) {
	errorMsg := err.ErrBuilder.Msg

	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.Code(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", err.RequestID,
	)

	cause := err.ErrBuilder.Unwrap()

	switch err.Category {
	case CategoryValidation, CategoryRateLimit, CategoryNotFound, CategoryUnauthorized:
		if len(err.Fields) > 0 {
			logEntry.Warn(errorMsg, "fields", err.Fields)
		} else {
			logEntry.Warn(errorMsg)
		}
	case CategoryNetwork, CategoryTimeout, CategoryExternalAPI:
		if cause != nil {
			logEntry.Info(errorMsg, "cause", cause)
		} else {
			logEntry.Info(errorMsg)
		}
	default:
		if cause != nil {
			logEntry.Error(errorMsg, "cause", cause)
		} else {
			logEntry.Error(errorMsg)
		}
	}

	if err.StackTrace != "" && (gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode) {
		logEntry.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// IsRetryableError checks if an error should trigger a retry
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	switch ToAppError(err).Category {
	case CategoryNetwork, CategoryTimeout, CategoryExternalAPI, CategoryRateLimit:
		return true
	default:
		return false
	}
}

// GetRetryDelay returns appropriate retry delay based on error type
func GetRetryDelay(err error, attempt int) time.Duration {
	appErr := ToAppError(err)

	baseDelay := time.Duration(100*attempt) * time.Millisecond
	if appErr == nil {
		return baseDelay
	}

	switch appErr.Category {
	case CategoryRateLimit:
		return time.Duration(attempt*attempt) * time.Second
	case CategoryNetwork, CategoryTimeout:
		return baseDelay * time.Duration(1<<attempt)
	case CategoryExternalAPI:
		return baseDelay * time.Duration(attempt)
	default:
		return baseDelay
	}
}

// SafeClose safely closes a resource and logs any errors
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}

	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource",
			"resource", resourceName,
			"error", err)
	}
}
