// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

// Command api is the entry point for the Dashtam HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Build the event bus and bind the registry-driven handlers.
//  7. Wire domain services and HTTP handlers.
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

	"github.com/dashtam/dashtam/internal/api"
	"github.com/dashtam/dashtam/internal/auth"
	"github.com/dashtam/dashtam/internal/event"
	"github.com/dashtam/dashtam/internal/platform/config"
	"github.com/dashtam/dashtam/internal/platform/constants"
	"github.com/dashtam/dashtam/internal/platform/email"
	"github.com/dashtam/dashtam/internal/platform/geoip"
	"github.com/dashtam/dashtam/internal/platform/migration"
	pgstore "github.com/dashtam/dashtam/internal/platform/postgres"
	redisstore "github.com/dashtam/dashtam/internal/platform/redis"
	"github.com/dashtam/dashtam/internal/platform/sec"
	"github.com/dashtam/dashtam/internal/session"
	"github.com/dashtam/dashtam/internal/sse"
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

	log.Info("[Dashtam] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
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

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Security Services ──────────────────────────────────────────────
	jwtSvc, err := sec.NewTokenService(cfg.JWTSecret, constants.AuthIssuer)
	must(log, err, "initialize jwt service")

	// ── 7. Event Bus & Handlers ───────────────────────────────────────────
	bus := event.NewInMemoryBus(log)

	var emailSender email.Sender
	if cfg.PostmarkToken != "" {
		emailSender = email.NewPostmarkSender(cfg.PostmarkToken, cfg.EmailFrom)
	} else {
		emailSender = email.NewDevSender(cfg.DevEmailDir)
		log.Info("email_dev_sender_enabled", slog.String("dir", cfg.DevEmailDir))
	}

	// ── 8. Session Service ────────────────────────────────────────────────
	userRepository := auth.NewPostgresUserRepository(pool)
	sessionRepository := session.NewPostgresRepository(pool)
	sessionCache := session.NewRedisCache(rdb)
	geoResolver := geoip.NewStaticResolver(nil)

	sessionService := session.NewService(
		sessionRepository,
		sessionCache,
		auth.NewDirectory(userRepository),
		geoResolver,
		bus,
		log,
	)

	// Registry-driven binding: one Subscribe per registry row and flag.
	event.BindHandlers(bus,
		event.NewLoggingHandler(log),
		event.NewAuditHandler(pool),
		event.NewEmailHandler(emailSender, "https://"+constants.AuthIssuer),
		event.NewSessionHandler(sessionService),
	)

	// ── 9. SSE Fan-out ────────────────────────────────────────────────────
	ssePublisher := sse.NewPublisher(rdb, cfg.SSEEnableRetention, log)
	sse.BindFanout(bus, sse.NewFanoutHandler(ssePublisher))
	sseSubscriber := sse.NewSubscriber(rdb, log)

	// ── 10. Auth Service ──────────────────────────────────────────────────
	authService := auth.NewService(auth.Deps{
		Users:              userRepository,
		RefreshTokens:      auth.NewPostgresRefreshTokenRepository(pool),
		VerificationTokens: auth.NewVerificationTokenRepository(pool),
		ResetTokens:        auth.NewResetTokenRepository(pool),
		SecurityConfig:     auth.NewPostgresSecurityConfigRepository(pool),
		ResetLimiter:       auth.NewRedisResetRateLimiter(rdb),
		Sessions:           sessionService,
		Tokens:             jwtSvc,
		Bus:                bus,
		Logger:             log,
		AccessTokenTTL:     cfg.AccessTokenTTL,
		RefreshTokenTTL:    cfg.RefreshTokenTTL,
	})

	// ── 11. Health handlers (wired with real dependency checkers) ─────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 12. HTTP Server ───────────────────────────────────────────────────
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      auth.NewHandler(authService),
		Session:   session.NewHandler(sessionService),
		Events:    sse.NewHandler(sseSubscriber),
	}

	server := api.NewServer(serverCtx, cfg, log, jwtSvc, sessionService, handlers)

	// ── 13. Graceful Shutdown ─────────────────────────────────────────────
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
