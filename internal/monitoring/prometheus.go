package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromMetrics exports request and recompute metrics on a dedicated registry
type PromMetrics struct {
	registry          *prometheus.Registry
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	recomputeTotal    *prometheus.CounterVec
	recomputeDuration *prometheus.HistogramVec
	scoredTitles      prometheus.Gauge
}

// NewPromMetrics creates the collectors and registers them with a fresh registry
func NewPromMetrics() *PromMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PromMetrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		recomputeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "score_recompute_total",
				Help: "Score recompute runs by scope and outcome.",
			},
			[]string{"scope", "outcome"},
		),
		recomputeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "score_recompute_duration_seconds",
				Help:    "Duration of score recompute runs.",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15},
			},
			[]string{"scope"},
		),
		scoredTitles: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scored_titles",
				Help: "Titles with a score after the last full recompute.",
			},
		),
	}
}

// Middleware records request counts and latency by matched route
func (p *PromMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		p.requestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		p.requestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveRecompute records one recompute run
func (p *PromMetrics) ObserveRecompute(scope string, duration time.Duration, scored int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.recomputeTotal.WithLabelValues(scope, outcome).Inc()
	p.recomputeDuration.WithLabelValues(scope).Observe(duration.Seconds())
	if err == nil && scope == "all" {
		p.scoredTitles.Set(float64(scored))
	}
}

// Handler serves the registry in the Prometheus text format
func (p *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry exposes the underlying registry for tests and extra collectors
func (p *PromMetrics) Registry() *prometheus.Registry {
	return p.registry
}
