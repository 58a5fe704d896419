// @title           CineCritic API
// @version         1.0
// @description     Weighted movie and TV reviews: criteria, evaluations, scores and best-of rankings.
// @BasePath        /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/cinecritic/internal/config"
	"github.com/ZanzyTHEbar/cinecritic/internal/database"
	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
	"github.com/ZanzyTHEbar/cinecritic/internal/monitoring"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := monitoring.NewLogger(cfg.SlogLevel())
	slog.SetDefault(logger.Logger)
	gin.SetMode(cfg.Server.Mode)

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		return err
	}
	defer apperrors.SafeClose(db, "database")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, db, logger)
	if err != nil {
		return err
	}

	r, err := setupRouter(a)
	if err != nil {
		a.close()
		return err
	}

	a.start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.RequestTimeout,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "port", cfg.Server.Port, "mode", cfg.Server.Mode, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		a.close()
		return err
	case <-ctx.Done():
	}
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	a.stop(shutdownCtx)

	slog.Info("Server exited")
	return nil
}
