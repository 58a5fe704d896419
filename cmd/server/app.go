package main

import (
	"context"
	"log/slog"

	"github.com/ZanzyTHEbar/cinecritic/internal/adapters"
	"github.com/ZanzyTHEbar/cinecritic/internal/bestof"
	"github.com/ZanzyTHEbar/cinecritic/internal/cache"
	"github.com/ZanzyTHEbar/cinecritic/internal/config"
	"github.com/ZanzyTHEbar/cinecritic/internal/database"
	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
	"github.com/ZanzyTHEbar/cinecritic/internal/middleware"
	"github.com/ZanzyTHEbar/cinecritic/internal/monitoring"
	"github.com/ZanzyTHEbar/cinecritic/internal/ratelimit"
	"github.com/ZanzyTHEbar/cinecritic/internal/ratings"
	"github.com/ZanzyTHEbar/cinecritic/internal/resilience"
	"github.com/ZanzyTHEbar/cinecritic/internal/scheduler"
	"github.com/ZanzyTHEbar/cinecritic/internal/security"
)

// app holds every long-lived dependency of the server
type app struct {
	cfg    config.Config
	db     *database.DB
	repo   *database.Repository
	auth   *database.AuthService
	logger *monitoring.Logger

	ratings   *ratings.Service
	bestOf    *bestof.Service
	responses *cache.Cache

	metrics *monitoring.Metrics
	prom    *monitoring.PromMetrics

	redis   *ratelimit.RedisClient
	limiter *ratelimit.RateLimiter

	breakers    *resilience.CircuitBreakerRegistry
	degradation *resilience.DegradationManager
	catalog     *adapters.CatalogAdapter

	compression *middleware.CompressionMiddleware
	security    *security.SecurityMiddleware
	scheduler   *scheduler.Scheduler
}

// newApp wires services around an open database. Redis failures degrade to
// in-memory rate limiting.
func newApp(ctx context.Context, cfg config.Config, db *database.DB, logger *monitoring.Logger) (*app, error) {
	a := &app{
		cfg:         cfg,
		db:          db,
		repo:        database.NewRepository(db),
		auth:        database.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AdminPassword, cfg.Auth.TokenTTL),
		logger:      logger,
		metrics:     monitoring.NewMetrics(),
		prom:        monitoring.NewPromMetrics(),
		responses:   cache.NewCache(cfg.Cache.ResponseTTL),
		breakers:    resilience.NewCircuitBreakerRegistry(),
		degradation: resilience.NewDegradationManager(resilience.DefaultDegradationConfig()),
		compression: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
	}

	secCfg := security.DefaultSecurityConfig()
	secCfg.RequestTimeout = cfg.Server.RequestTimeout
	a.security = security.NewSecurityMiddleware(secCfg)

	redisClient, err := ratelimit.NewRedisClient(ctx, cfg.RateLimit)
	if err != nil {
		slog.Warn("Redis unavailable, continuing with in-memory rate limiting", "error", err)
	}
	a.redis = redisClient
	a.limiter = ratelimit.NewRateLimiter(redisClient, ratelimit.ConfigFrom(cfg.RateLimit), a.metrics)

	catalogOpts := []adapters.CatalogOption{
		adapters.WithHealth(a.degradation),
		adapters.WithCatalogMetrics(a.metrics),
		adapters.WithCatalogLogger(logger),
	}
	if cfg.Catalog.ImageBase != "" {
		catalogOpts = append(catalogOpts, adapters.WithImageBase(cfg.Catalog.ImageBase))
	}
	a.catalog = adapters.NewCatalogAdapter(cfg.Catalog, a.breakers, catalogOpts...)

	a.ratings = ratings.NewService(a.repo,
		ratings.WithMetrics(a.metrics),
		ratings.WithPromMetrics(a.prom),
		ratings.WithLogger(logger),
	)
	a.bestOf = bestof.NewService(a.repo, cfg.Cache.BestOfTTL)

	a.ratings.OnRecompute("bestof", a.bestOf.Refresh)
	a.ratings.OnRecompute("response-cache", func(context.Context) error {
		a.responses.Clear()
		return nil
	})

	if cfg.Scheduler.Enabled {
		loc, err := cfg.Location()
		if err != nil {
			a.close()
			return nil, err
		}
		a.scheduler, err = scheduler.New(cfg.Scheduler.Spec, loc, func(ctx context.Context) error {
			_, err := a.ratings.RecomputeAll(ctx)
			return err
		}, logger)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	return a, nil
}

// start runs the initial recompute and starts background jobs
func (a *app) start(ctx context.Context) {
	if _, err := a.ratings.RecomputeAll(ctx); err != nil {
		slog.Error("Initial recompute failed", "error", err)
	}
	a.bestOf.WarmCache(ctx)
	if a.scheduler != nil {
		a.scheduler.Start()
		slog.Info("Recompute scheduler started", "spec", a.cfg.Scheduler.Spec, "next_run", a.scheduler.NextRun())
	}
}

// stop halts background jobs, waiting at most until ctx is done
func (a *app) stop(ctx context.Context) {
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			slog.Warn("Scheduler did not stop cleanly", "error", err)
		}
	}
	a.close()
}

// close releases in-process resources; the database is closed by its owner
func (a *app) close() {
	a.limiter.Close()
	a.responses.Close()
	a.bestOf.Close()
	apperrors.SafeClose(a.redis, "redis")
}
