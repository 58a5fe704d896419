package main

import (
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ZanzyTHEbar/cinecritic/docs"
	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
	"github.com/ZanzyTHEbar/cinecritic/internal/frontend"
	"github.com/ZanzyTHEbar/cinecritic/internal/monitoring"
	"github.com/ZanzyTHEbar/cinecritic/internal/security"
)

// Endpoint names for write rate limits
const (
	endpointTitles      = "titles"
	endpointCriteria    = "criteria"
	endpointEvaluations = "evaluations"
	endpointPresets     = "presets"
	endpointRecompute   = "recompute"
	endpointLogin       = "login"
)

// cachedPrefixes are public GET paths served from the response cache
var cachedPrefixes = []string{"/api/titles", "/api/best", "/api/criteria", "/api/presets"}

func setupRouter(a *app) (*gin.Engine, error) {
	r := gin.New()

	r.Use(apperrors.RecoveryHandler())
	r.Use(apperrors.ErrorHandler())
	r.Use(monitoring.MonitoringMiddleware(a.metrics, a.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(a.logger))
	r.Use(a.prom.Middleware())
	r.Use(a.compression.Handler())
	r.Use(security.SecurityHeadersMiddleware(a.cfg.Server.Mode == gin.ReleaseMode))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(a.security.RequestTimeout)

	// Operational endpoints
	r.GET("/health", a.handleHealth)
	r.GET("/health/live", monitoring.HealthHandler(a.metrics, version))
	r.GET("/health/services", a.handleServiceHealth)
	r.GET("/metrics", a.handleMetrics)
	r.GET("/metrics/prometheus", gin.WrapH(a.prom.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if a.cfg.Server.Mode == gin.DebugMode {
		// net/http/pprof registers its handlers on the default mux
		r.Any("/debug/pprof/*profile", gin.WrapH(http.DefaultServeMux))
	}

	api := r.Group("/api")
	api.Use(a.limiter.IPRateLimitMiddleware())
	api.Use(a.security.ValidateContentType)
	api.Use(a.responses.Middleware(a.metrics, cachedPrefixes...))
	{
		api.GET("/titles", a.handleListTitles)
		api.GET("/titles/search", a.handleSearchTitles)
		api.GET("/titles/:id", a.handleGetTitle)
		api.POST("/scores/compute", a.handleComputeScores)
		api.GET("/criteria", a.handleListCriteria)
		api.GET("/best/:mediaType", a.handleBestOf)
		api.GET("/best/:mediaType/rank/:id", a.handleBestOfRank)
		api.GET("/presets", a.handleListPresets)
		api.POST("/auth/login", a.limiter.EndpointRateLimitMiddleware(endpointLogin), a.handleLogin)
	}

	admin := api.Group("/admin")
	admin.Use(security.AdminAuth(a.auth))
	{
		admin.POST("/titles", a.limiter.EndpointRateLimitMiddleware(endpointTitles), a.handleCreateTitle)
		admin.POST("/titles/import", a.limiter.EndpointRateLimitMiddleware(endpointTitles), a.handleImportTitle)
		admin.DELETE("/titles/:id", a.limiter.EndpointRateLimitMiddleware(endpointTitles), a.handleDeleteTitle)

		admin.POST("/criteria", a.limiter.EndpointRateLimitMiddleware(endpointCriteria), a.handleCreateCriterion)
		admin.PATCH("/criteria/:id", a.limiter.EndpointRateLimitMiddleware(endpointCriteria), a.handleUpdateCriterion)
		admin.DELETE("/criteria/:id", a.limiter.EndpointRateLimitMiddleware(endpointCriteria), a.handleDeleteCriterion)

		admin.POST("/evaluations", a.limiter.EndpointRateLimitMiddleware(endpointEvaluations), a.handleSubmitEvaluation)
		admin.DELETE("/evaluations/:id", a.limiter.EndpointRateLimitMiddleware(endpointEvaluations), a.handleDeleteEvaluation)

		admin.POST("/presets", a.limiter.EndpointRateLimitMiddleware(endpointPresets), a.handleCreatePreset)

		admin.POST("/recompute", a.limiter.EndpointRateLimitMiddleware(endpointRecompute), a.handleRecompute)
		admin.GET("/scheduler", a.handleSchedulerStats)
		admin.GET("/cache/stats", a.handleCacheStats)
		admin.DELETE("/cache", a.handleClearCache)
		admin.GET("/ratelimit/stats", a.limiter.HandleAdminRateLimits())
		admin.DELETE("/ratelimit/ip/:ip", a.limiter.HandleAdminInvalidateIP())
	}

	pages, err := frontend.NewHandler(a.ratings, a.repo, a.bestOf)
	if err != nil {
		return nil, err
	}
	site := r.Group("/")
	site.Use(security.CSPMiddleware(""))
	if err := pages.Register(site); err != nil {
		return nil, err
	}

	return r, nil
}
