package security

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/cinecritic/internal/database"
	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
)

// AdminSubjectKey is the gin context key holding the authenticated subject
const AdminSubjectKey = "admin_subject"

// Text limits for user-entered fields
const (
	MaxNameLength  = 200
	MaxNotesLength = 10000
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	AllowedTypes   []string
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   1 << 20,
		AllowedTypes:   []string{"application/json"},
	}
}

// SecurityMiddleware bundles the request hardening handlers
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultSecurityConfig().RequestTimeout
	}
	if len(config.AllowedTypes) == 0 {
		config.AllowedTypes = DefaultSecurityConfig().AllowedTypes
	}
	return &SecurityMiddleware{config: config}
}

// ValidateText rejects input that is too long (in runes), contains NUL bytes
// or is not valid UTF-8
func ValidateText(field, input string, maxLength int) error {
	if !utf8.ValidString(input) {
		return apperrors.NewFieldValidationError(map[string]string{field: "contains invalid UTF-8 encoding"})
	}
	if strings.ContainsRune(input, 0) {
		return apperrors.NewFieldValidationError(map[string]string{field: "contains invalid characters"})
	}
	if maxLength > 0 && utf8.RuneCountInString(input) > maxLength {
		return apperrors.NewFieldValidationError(map[string]string{
			field: fmt.Sprintf("exceeds maximum length of %d characters", maxLength),
		})
	}
	return nil
}

// ValidateContentType rejects bodies that are not one of the allowed media
// types. Requests without a body pass.
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	if c.Request.ContentLength == 0 && c.Request.Header.Get("Transfer-Encoding") == "" {
		c.Next()
		return
	}

	mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if err == nil {
		for _, allowed := range sm.config.AllowedTypes {
			if mediaType == allowed {
				if sm.config.MaxBodyBytes > 0 {
					c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sm.config.MaxBodyBytes)
				}
				c.Next()
				return
			}
		}
	}

	c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
		"error": "unsupported content type",
	})
}

// RequestTimeout puts a deadline on the request context
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// AdminAuth requires a valid admin Bearer token and stores its subject
func AdminAuth(auth *database.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			apperrors.Respond(c, apperrors.NewUnauthorizedError("missing bearer token", nil))
			return
		}

		subject, err := auth.ValidateAdminToken(strings.TrimSpace(token))
		if err != nil {
			slog.Warn("Rejected admin token", "ip", c.ClientIP(), "path", c.Request.URL.Path, "error", err)
			apperrors.Respond(c, apperrors.NewUnauthorizedError("invalid or expired token", err))
			return
		}

		c.Set(AdminSubjectKey, subject)
		c.Next()
	}
}
