package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plantdesk/plantdesk/internal/auth"
	"github.com/plantdesk/plantdesk/internal/config"
	"github.com/plantdesk/plantdesk/internal/database"
	"github.com/plantdesk/plantdesk/internal/handler"
	"github.com/plantdesk/plantdesk/internal/logger"
	"github.com/plantdesk/plantdesk/internal/metrics"
	"github.com/plantdesk/plantdesk/internal/middleware"
	"github.com/plantdesk/plantdesk/internal/pool"
	"github.com/plantdesk/plantdesk/internal/router"
	"github.com/plantdesk/plantdesk/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", "0.1.0").Msg("starting plantdesk auth server")

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database, cfg.Pool)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to PostgreSQL")

	var m *metrics.Metrics
	var poolOpts []pool.Option
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
		poolOpts = append(poolOpts, pool.WithObserver(m))
	}

	// Open the application pool. Failing to reach MinConnections is fatal.
	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	p, err := db.NewPool(startCtx, cfg.Pool, poolOpts...)
	cancelStart()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize connection pool")
	}
	defer p.Shutdown()
	log.Info().
		Int("min", cfg.Pool.MinConnections).
		Int("max", cfg.Pool.MaxConnections).
		Msg("connection pool ready")

	var opts []service.Option
	if m != nil {
		m.WatchPool(cfg.Metrics.Namespace, p)
		opts = append(opts, service.WithRecorder(m))
	}

	// Redis is optional; it backs rate limiting and the health report
	var (
		counter middleware.WindowCounter
		pinger  handler.Pinger
	)
	if cfg.Redis.Enabled {
		rdb, err := database.NewRedis(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()
		counter, pinger = rdb, rdb
		log.Info().Msg("connected to Redis")
	}

	tokenSvc, err := auth.NewTokenService(cfg.Security.Tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token service")
	}

	authSvc := service.NewAuthService(p, service.PostgresStores, cfg.Security, log, opts...)
	log.Info().
		Int("max_login_attempts", cfg.Security.Lockout.MaxLoginAttempts).
		Int("lockout_minutes", cfg.Security.Lockout.DurationMinutes).
		Str("password_scheme", cfg.Security.Password.Scheme).
		Msg("auth service initialized")

	h := handler.New(p, pinger, log, cfg, authSvc, tokenSvc)
	mw := middleware.New(counter, log, cfg, middleware.WithAccounts(authSvc))
	r := router.New(h, mw, cfg, tokenSvc, m)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	stats := p.Stats()
	log.Info().Int("live", stats.Live).Int("in_use", stats.InUse).Msg("server stopped")
}
