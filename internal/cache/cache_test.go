package cache

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	hits, misses int64
}

func (m *countingMetrics) IncrementCacheHit()  { atomic.AddInt64(&m.hits, 1) }
func (m *countingMetrics) IncrementCacheMiss() { atomic.AddInt64(&m.misses, 1) }

func TestCache_Basic(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", []byte("v"))
	data, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), data)
	assert.Equal(t, 1, c.Size())

	c.Delete("k")
	assert.Equal(t, 0, c.Size())

	c.Set("a", nil)
	c.Set("b", nil)
	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	defer c.Close()

	c.Set("k", []byte("v"))
	time.Sleep(20 * time.Millisecond)

	stats := c.Stats()
	assert.Equal(t, 1, stats["expired_items"])

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size(), "expired items are dropped on read")

	c.Set("x", nil)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, c.removeExpired())
}

func TestCache_JSON(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()

	type payload struct {
		Score float64 `json:"score"`
	}
	require.NoError(t, c.SetJSON("p", payload{Score: 4.25}))

	var out payload
	require.True(t, c.GetJSON("p", &out))
	assert.Equal(t, 4.25, out.Score)

	c.Set("bad", []byte("{"))
	assert.False(t, c.GetJSON("bad", &out))
	_, ok := c.Get("bad")
	assert.False(t, ok, "undecodable values are evicted")
}

func TestCache_CloseIdempotent(t *testing.T) {
	c := NewCache(time.Minute)
	c.Close()
	assert.NotPanics(t, c.Close)
}

func TestCache_Concurrent(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key(string(rune('a' + i)))
			c.Set(key, []byte{byte(i)})
			c.Get(key)
			c.Stats()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, c.Size())
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c := NewCache(time.Minute)
	defer c.Close()
	metrics := &countingMetrics{}

	var calls int64
	router := gin.New()
	router.Use(c.Middleware(metrics, "/api/titles", "/api/best"))
	router.GET("/api/titles", func(ctx *gin.Context) {
		atomic.AddInt64(&calls, 1)
		ctx.JSON(http.StatusOK, gin.H{"n": atomic.LoadInt64(&calls)})
	})
	router.GET("/api/best/movie", func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "none"})
	})
	router.GET("/api/criteria", func(ctx *gin.Context) {
		atomic.AddInt64(&calls, 1)
		ctx.Status(http.StatusOK)
	})

	serve := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	first := serve("/api/titles")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := serve("/api/titles")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", second.Header().Get("Content-Type"))

	serve("/api/titles?media_type=tv")
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls), "query string is part of the key")

	serve("/api/best/movie")
	assert.Equal(t, "MISS", serve("/api/best/movie").Header().Get("X-Cache"), "errors are not cached")

	serve("/api/criteria")
	serve("/api/criteria")
	assert.Equal(t, int64(4), atomic.LoadInt64(&calls), "paths outside the prefixes bypass the cache")

	assert.Equal(t, int64(1), metrics.hits)
	assert.Equal(t, int64(4), metrics.misses)

	c.Clear()
	assert.Equal(t, "MISS", serve("/api/titles").Header().Get("X-Cache"))
}
