package middleware

import (
	"bytes"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // smallest body worth compressing, in bytes
	CompressionLevel int      // gzip level, 1 (fastest) to 9 (smallest)
	ContentTypes     []string // response media types that get compressed
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
			"text/css",
		},
	}
}

// CompressionMiddleware gzips eligible responses
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	if config.MinSize <= 0 {
		config.MinSize = DefaultCompressionConfig().MinSize
	}
	if config.CompressionLevel < gzip.HuffmanOnly || config.CompressionLevel > gzip.BestCompression {
		config.CompressionLevel = gzip.DefaultCompression
	}
	if len(config.ContentTypes) == 0 {
		config.ContentTypes = DefaultCompressionConfig().ContentTypes
	}

	cm := &CompressionMiddleware{
		config: config,
		stats:  NewCompressionStats(),
	}
	cm.pool.New = func() interface{} {
		gz, _ := gzip.NewWriterLevel(nil, cm.config.CompressionLevel)
		return gz
	}
	return cm
}

// Handler returns the gin middleware. Bodies are buffered until MinSize is
// reached so small responses go out untouched.
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !acceptsGzip(c.Request) || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		w := &gzipResponseWriter{ResponseWriter: c.Writer, cm: cm}
		c.Writer = w
		defer func() {
			w.finish()
			c.Writer = w.ResponseWriter
		}()

		c.Next()
	}
}

func acceptsGzip(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(strings.TrimSpace(name), "gzip") {
			return strings.ReplaceAll(strings.TrimSpace(params), " ", "") != "q=0"
		}
	}
	return false
}

func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))
	for _, ct := range cm.config.ContentTypes {
		if mediaType == ct {
			return true
		}
	}
	return false
}

// gzipResponseWriter buffers the start of the body and decides once
type gzipResponseWriter struct {
	gin.ResponseWriter
	cm       *CompressionMiddleware
	buf      bytes.Buffer
	gz       *gzip.Writer
	decided  bool
	original int64
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	w.original += int64(len(data))

	if w.decided {
		if w.gz != nil {
			return w.gz.Write(data)
		}
		return w.ResponseWriter.Write(data)
	}

	w.buf.Write(data)
	if w.buf.Len() >= w.cm.config.MinSize {
		if err := w.decide(); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// Flush commits to a decision so streamed responses are not held back
func (w *gzipResponseWriter) Flush() {
	if !w.decided {
		_ = w.decide()
	}
	if w.gz != nil {
		_ = w.gz.Flush()
	}
	w.ResponseWriter.Flush()
}

func (w *gzipResponseWriter) decide() error {
	w.decided = true

	header := w.Header()
	status := w.ResponseWriter.Status()
	compress := w.buf.Len() >= w.cm.config.MinSize &&
		!w.ResponseWriter.Written() &&
		header.Get("Content-Encoding") == "" &&
		status != http.StatusNoContent && status != http.StatusNotModified &&
		w.cm.shouldCompress(header.Get("Content-Type"))

	if compress {
		header.Set("Content-Encoding", "gzip")
		header.Add("Vary", "Accept-Encoding")
		header.Del("Content-Length")

		w.gz = w.cm.pool.Get().(*gzip.Writer)
		w.gz.Reset(w.ResponseWriter)
	}

	if w.buf.Len() == 0 {
		return nil
	}
	pending := w.buf.Bytes()
	w.buf.Reset()
	if w.gz != nil {
		_, err := w.gz.Write(pending)
		return err
	}
	_, err := w.ResponseWriter.Write(pending)
	return err
}

func (w *gzipResponseWriter) finish() {
	if !w.decided {
		_ = w.decide()
	}

	if w.gz == nil {
		w.cm.stats.RecordRequest(w.original, w.original, false)
		return
	}

	_ = w.gz.Close()
	w.gz.Reset(nil)
	w.cm.pool.Put(w.gz)
	w.gz = nil

	w.cm.stats.RecordRequest(w.original, int64(w.ResponseWriter.Size()), true)
}

// Size reports uncompressed bytes so request logs stay comparable
func (w *gzipResponseWriter) Size() int {
	return int(w.original)
}

// Written is true once anything is buffered so handlers do not write twice
func (w *gzipResponseWriter) Written() bool {
	return w.original > 0 || w.ResponseWriter.Written()
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
	mutex              sync.RWMutex
}

// NewCompressionStats creates new compression statistics
func NewCompressionStats() *CompressionStats {
	return &CompressionStats{}
}

// RecordRequest records one response
func (cs *CompressionStats) RecordRequest(originalSize, sentSize int64, compressed bool) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.TotalRequests++
	cs.TotalBytes += originalSize
	if compressed {
		cs.CompressedRequests++
	}
	cs.CompressedBytes += sentSize
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	ratio := float64(1)
	if cs.TotalBytes > 0 {
		ratio = float64(cs.CompressedBytes) / float64(cs.TotalBytes)
	}

	return map[string]interface{}{
		"total_requests":      cs.TotalRequests,
		"compressed_requests": cs.CompressedRequests,
		"total_bytes":         cs.TotalBytes,
		"sent_bytes":          cs.CompressedBytes,
		"compression_ratio":   ratio,
		"compression_savings": 1.0 - ratio,
	}
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}
