package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(cm *CompressionMiddleware) *gin.Engine {
	big := strings.Repeat(`{"name":"Heat","score":4.25},`, 100)

	router := gin.New()
	router.Use(cm.Handler())
	router.GET("/big", func(c *gin.Context) { c.Data(http.StatusOK, "application/json", []byte(big)) })
	router.GET("/small", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	router.GET("/png", func(c *gin.Context) { c.Data(http.StatusOK, "image/png", []byte(big)) })
	router.GET("/empty", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return router
}

func TestCompressionMiddleware(t *testing.T) {
	cm := NewCompressionMiddleware(DefaultCompressionConfig())
	router := newRouter(cm)

	tests := []struct {
		name           string
		path           string
		acceptEncoding string
		wantGzip       bool
		wantCode       int
	}{
		{"large json", "/big", "gzip, deflate", true, http.StatusOK},
		{"client refuses", "/big", "identity", false, http.StatusOK},
		{"explicit q=0", "/big", "gzip;q=0", false, http.StatusOK},
		{"below min size", "/small", "gzip", false, http.StatusOK},
		{"binary type", "/png", "gzip", false, http.StatusOK},
		{"no content", "/empty", "gzip", false, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if !tt.wantGzip {
				assert.Empty(t, w.Header().Get("Content-Encoding"))
				return
			}

			assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
			assert.Contains(t, w.Header().Values("Vary"), "Accept-Encoding")

			zr, err := gzip.NewReader(w.Body)
			require.NoError(t, err)
			body, err := io.ReadAll(zr)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(string(body), `{"name":"Heat"`))
			assert.Len(t, body, 100*len(`{"name":"Heat","score":4.25},`))
		})
	}
}

func TestCompressionStats(t *testing.T) {
	cm := NewCompressionMiddleware(DefaultCompressionConfig())
	router := newRouter(cm)

	for _, path := range []string{"/big", "/small"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept-Encoding", "gzip")
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	stats := cm.GetStats()
	assert.Equal(t, int64(2), stats["total_requests"])
	assert.Equal(t, int64(1), stats["compressed_requests"])
	assert.Less(t, stats["compression_ratio"].(float64), 0.5)
}
