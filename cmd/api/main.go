// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

// Command api is the entry point for the Averia identity server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from .env / environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Build the token codec, session stores, lockout guard, and revocation registry.
//  7. Wire HTTP handlers and the authentication gate.
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/averia/identity/internal/api"
	"github.com/averia/identity/internal/platform/config"
	"github.com/averia/identity/internal/platform/constants"
	"github.com/averia/identity/internal/platform/migration"
	pgstore "github.com/averia/identity/internal/platform/postgres"
	redisstore "github.com/averia/identity/internal/platform/redis"
	"github.com/averia/identity/internal/platform/sec"
	"github.com/averia/identity/internal/users/auth"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	// Local .env files are a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Application-lifetime context. Cancellation stops the background
	// goroutines (rate limit cleanup, revocation pruning) on shutdown.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Startup context with a 30s deadline so misconfiguration is caught
	// quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(appCtx, 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.Run(log, cfg.DatabaseURL, cfg.MigrationPath), "run migrations")

	// ── 6. Security Components ────────────────────────────────────────────
	codec, err := sec.NewTokenCodec(cfg.JWTSecret, constants.AuthIssuer)
	must(log, err, "initialize token codec")

	lockout := auth.NewLockoutGuard(cfg.LockoutMaxAttempts, cfg.LockoutDuration, log)

	revoked := auth.NewRevocationRegistry(codec, log)
	go revoked.PruneLoop(appCtx, constants.RevocationPruneInterval)

	// Sessions: Redis primary with an in-process fallback for degraded mode.
	sessions := auth.NewFailoverSessionStore(
		auth.NewRedisSessionStore(rdb, cfg.RefreshTokenTTL),
		auth.NewMemorySessionStore(),
		constants.SessionBackendTimeout,
		log,
	)

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pool.Ping(context.Background())
		},
		CheckCache: func() error {
			return rdb.Ping(context.Background()).Err()
		},
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	userRepository := auth.NewUserRepository(pool)
	verifyCodes := auth.NewVerificationCodeStore(rdb)
	resetCodes := auth.NewResetCodeStore(rdb)

	authService := auth.NewService(
		userRepository,
		sessions,
		verifyCodes,
		resetCodes,
		codec,
		lockout,
		revoked,
		cfg.AccessTokenTTL,
		cfg.RefreshTokenTTL,
		log,
	)
	authHandler := auth.NewHandler(authService, cfg.AccessTokenTTL)

	gate := auth.NewGate(codec, sessions, revoked, userRepository, cfg.AccessTokenTTL, log)

	// ── 9. HTTP Server ────────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      authHandler,
	}

	server := api.NewServer(appCtx, cfg, log, gate, handlers)

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
