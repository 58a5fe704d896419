package cache

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/cinecritic/internal/encoding"
)

const cleanupInterval = 5 * time.Minute

// Metrics receives cache hit and miss events
type Metrics interface {
	IncrementCacheHit()
	IncrementCacheMiss()
}

// CacheItem represents a cached item with expiration
type CacheItem struct {
	Data        []byte
	ContentType string
	ExpiresAt   time.Time
}

// IsExpired checks if the cache item has expired
func (c *CacheItem) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// Cache provides thread-safe caching with TTL
type Cache struct {
	mu    sync.RWMutex
	items map[string]*CacheItem
	ttl   time.Duration

	stop      chan struct{}
	closeOnce sync.Once
}

// NewCache creates a new cache with the specified TTL and starts its janitor
func NewCache(ttl time.Duration) *Cache {
	cache := &Cache{
		items: make(map[string]*CacheItem),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache) removeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, item := range c.items {
		if item.IsExpired() {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Close stops the janitor goroutine
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
}

// Key hashes input into a fixed-length cache key
func Key(input string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(input)))
}

// Get retrieves an item from the cache
func (c *Cache) Get(key string) ([]byte, bool) {
	item, ok := c.getItem(key)
	if !ok {
		return nil, false
	}
	return item.Data, true
}

func (c *Cache) getItem(key string) (*CacheItem, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if item.IsExpired() {
		c.mu.Lock()
		if current, ok := c.items[key]; ok && current.IsExpired() {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return item, true
}

// Set stores an item in the cache
func (c *Cache) Set(key string, data []byte) {
	c.setItem(key, &CacheItem{Data: data})
}

func (c *Cache) setItem(key string, item *CacheItem) {
	item.ExpiresAt = time.Now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item
}

// GetJSON decodes a cached JSON value into v
func (c *Cache) GetJSON(key string, v interface{}) bool {
	data, ok := c.Get(key)
	if !ok {
		return false
	}
	if err := encoding.Unmarshal(data, v); err != nil {
		slog.Error("Failed to decode cached value", "error", err, "key", key)
		c.Delete(key)
		return false
	}
	return true
}

// SetJSON encodes v and caches it
func (c *Cache) SetJSON(key string, v interface{}) error {
	data, err := encoding.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache value: %w", err)
	}
	c.Set(key, data)
	return nil
}

// Delete removes an item from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*CacheItem)
}

// Size returns the number of items in the cache
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Stats returns cache statistics
func (c *Cache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	totalItems := len(c.items)
	expiredItems := 0

	for _, item := range c.items {
		if item.IsExpired() {
			expiredItems++
		}
	}

	return map[string]interface{}{
		"total_items":   totalItems,
		"expired_items": expiredItems,
		"active_items":  totalItems - expiredItems,
		"ttl_seconds":   c.ttl.Seconds(),
	}
}

// Middleware caches successful GET responses for paths under any of prefixes
func (c *Cache) Middleware(metrics Metrics, prefixes ...string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodGet || !hasPrefix(ctx.Request.URL.Path, prefixes) {
			ctx.Next()
			return
		}

		cacheKey := Key(ctx.Request.Method + " " + ctx.Request.URL.RequestURI())

		if item, found := c.getItem(cacheKey); found {
			slog.Debug("Cache hit", "key", cacheKey[:8]+"...")
			metrics.IncrementCacheHit()
			ctx.Header("X-Cache", "HIT")
			ctx.Data(http.StatusOK, item.ContentType, item.Data)
			ctx.Abort()
			return
		}

		slog.Debug("Cache miss", "key", cacheKey[:8]+"...")
		metrics.IncrementCacheMiss()
		ctx.Header("X-Cache", "MISS")

		wrapper := &responseWriter{ResponseWriter: ctx.Writer, body: &bytes.Buffer{}}
		ctx.Writer = wrapper
		ctx.Next()

		if wrapper.Status() == http.StatusOK && len(ctx.Errors) == 0 {
			c.setItem(cacheKey, &CacheItem{
				Data:        wrapper.body.Bytes(),
				ContentType: wrapper.Header().Get("Content-Type"),
			})
		}
	}
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// responseWriter wraps gin.ResponseWriter to capture response body
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
