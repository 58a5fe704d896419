package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
)

const nonceKey = "csp-nonce"

// GenerateNonce returns 16 random bytes, base64url encoded so the value
// needs no escaping inside HTML attributes
func GenerateNonce() (string, error) {
	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(nonceBytes), nil
}

// CSPMiddleware sets a per-request nonce CSP for the HTML pages. A non-empty
// reportURI adds a report-only copy of the policy.
func CSPMiddleware(reportURI string) gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce, err := GenerateNonce()
		if err != nil {
			apperrors.Respond(c, apperrors.NewInternalError("failed to generate CSP nonce", err))
			return
		}

		c.Set(nonceKey, nonce)

		policy := BuildCSPPolicy(nonce)
		c.Header("Content-Security-Policy", policy)
		if reportURI != "" {
			c.Header("Content-Security-Policy-Report-Only", policy+"; report-uri "+reportURI)
		}

		c.Next()
	}
}

// GetNonce retrieves the nonce from the Gin context
func GetNonce(c *gin.Context) string {
	if nonce, exists := c.Get(nonceKey); exists {
		if nonceStr, ok := nonce.(string); ok {
			return nonceStr
		}
	}
	return ""
}

// BuildCSPPolicy allows posters from any https host and nothing else off-site
func BuildCSPPolicy(nonce string) string {
	directives := []string{
		"default-src 'self'",
		fmt.Sprintf("script-src 'self' 'nonce-%s'", nonce),
		fmt.Sprintf("style-src 'self' 'nonce-%s'", nonce),
		"img-src 'self' data: https:",
		"font-src 'self' data:",
		"connect-src 'self'",
		"frame-ancestors 'none'",
		"base-uri 'self'",
		"form-action 'self'",
	}
	return strings.Join(directives, "; ")
}
