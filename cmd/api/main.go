// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Gatekeeper HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Install tracing (OTLP/HTTP when an endpoint is configured).
//  4. Open the identity store (SQLite, or PostgreSQL with migrations).
//  5. Choose the rate-limit backend (Redis when configured, memory otherwise).
//  6. Wire services and HTTP handlers.
//  7. Start HTTP server with graceful shutdown.
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
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/taibuivan/gatekeeper/internal/api"
	"github.com/taibuivan/gatekeeper/internal/platform/config"
	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	"github.com/taibuivan/gatekeeper/internal/platform/cookie"
	"github.com/taibuivan/gatekeeper/internal/platform/mail"
	"github.com/taibuivan/gatekeeper/internal/platform/middleware"
	"github.com/taibuivan/gatekeeper/internal/platform/migration"
	pgstore "github.com/taibuivan/gatekeeper/internal/platform/postgres"
	redisstore "github.com/taibuivan/gatekeeper/internal/platform/redis"
	"github.com/taibuivan/gatekeeper/internal/platform/sec"
	"github.com/taibuivan/gatekeeper/internal/platform/sqlite"
	"github.com/taibuivan/gatekeeper/internal/platform/telemetry"
	"github.com/taibuivan/gatekeeper/internal/ratelimit"
	"github.com/taibuivan/gatekeeper/internal/users/identity"
	"github.com/taibuivan/gatekeeper/internal/users/oauth"
	"github.com/taibuivan/gatekeeper/migrations"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Gatekeeper] service_initializing")

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

	for _, warning := range cfg.Warnings() {
		log.Warn("configuration_warning", slog.String("detail", warning))
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.Bool("sqlite", cfg.UsesSQLite()),
		slog.Any("oauth_providers", cfg.EnabledProviders()),
	)

	// Root context for background workers; cancelled on shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	startupCtx, startupCancel := context.WithTimeout(rootCtx, 30*time.Second)
	defer startupCancel()

	// ── 3. Tracing ────────────────────────────────────────────────────────
	shutdownTelemetry, err := telemetry.Setup(startupCtx, constants.AppName, constants.AppVersion, cfg.OTelEndpoint)
	must(log, err, "initialize telemetry")
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.Error("telemetry shutdown error", slog.Any("error", err))
		}
	}()

	// ── 4. Identity Store ─────────────────────────────────────────────────
	var (
		store  identity.Store
		checks []api.HealthCheck
	)

	if cfg.UsesSQLite() {
		db, err := sqlite.Open(startupCtx, cfg.SQLitePath())
		must(log, err, "open sqlite")
		defer func() {
			log.Info("closing sqlite database")
			_ = db.Close()
		}()

		sqliteStore, err := identity.NewSQLiteStore(startupCtx, db)
		must(log, err, "apply sqlite schema")
		store = sqliteStore
	} else {
		pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
		must(log, err, "connect to postgres")
		defer func() {
			log.Info("closing postgres pool")
			pool.Close()
		}()

		must(log, migration.RunUp(cfg.DatabaseURL, migrations.FS, log), "run migrations")
		store = identity.NewPostgresStore(pool)
	}
	checks = append(checks, api.HealthCheck{Name: "database", Probe: store.Ping})

	// ── 5. Rate Limiting ──────────────────────────────────────────────────
	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		must(log, err, "connect to redis")
		defer func() {
			log.Info("closing redis client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis close error", slog.Any("error", cerr))
			}
		}()

		limiter = ratelimit.NewRedisLimiter(rdb, constants.RedisPrefixRateLimit)
		checks = append(checks, api.HealthCheck{Name: "redis", Probe: func(ctx context.Context) error {
			return redisstore.Ping(ctx, rdb)
		}})
	} else {
		memoryLimiter := ratelimit.NewMemoryLimiter()
		go memoryLimiter.Run(rootCtx, cfg.RateLimit.SweepInterval)
		limiter = memoryLimiter
	}

	governor := ratelimit.NewGovernor(limiter, ratelimit.Policy{
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Window:      cfg.RateLimit.Window,
	})

	throttle := middleware.NewThrottle(constants.DefaultThrottleRPS, constants.DefaultThrottleBurst)
	go throttle.Run(rootCtx)

	// ── 6. Security Primitives ────────────────────────────────────────────
	tokens, err := sec.NewTokenService(cfg.SessionSecret, constants.AuthIssuer, cfg.SessionTTL)
	must(log, err, "initialize session tokens")

	hasher := sec.NewHasher(cfg.Auth.BcryptCost, int64(runtime.NumCPU()))

	var mailer mail.Sender
	switch {
	case cfg.SMTP.Host != "":
		mailer = mail.NewSMTPSender(mail.SMTPSettings{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	case cfg.IsDevelopment():
		log.Warn("smtp_not_configured", slog.String("fallback", "log"))
		mailer = mail.NewLogSender(log)
	default:
		log.Warn("smtp_not_configured", slog.String("fallback", "disabled"))
		mailer = mail.DisabledSender{}
	}

	// ── 7. Domain Wiring ──────────────────────────────────────────────────
	identityService := identity.NewService(store, hasher, tokens, mailer, identity.Options{
		Features: identity.Features{
			PasswordEnabled:      cfg.Auth.PasswordEnabled,
			EmailCodeEnabled:     cfg.Auth.EmailCodeEnabled,
			PasswordRequireEmail: cfg.Auth.PasswordRequireEmail,
		},
		AppURL:      cfg.AppURL,
		MailTimeout: cfg.MailSendTimeout,
	})

	cookies := cookie.Jar{Secure: !cfg.IsDevelopment()}

	var oauthHandler *oauth.Handler
	if providers := buildProviders(log, cfg); len(providers) > 0 {
		oauthHandler = oauth.NewHandler(identityService, providers, cookies, cfg.AppURL)
	}

	identityHandler := identity.NewHandler(identityService, identity.HandlerOptions{
		Cookies:   cookies,
		Guard:     governor.Guard,
		Providers: cfg.EnabledProviders(),
	})

	liveness, readiness := api.NewHealthHandlers(checks, log)

	// ── 8. HTTP Server ────────────────────────────────────────────────────
	server := api.NewServer(cfg, log, tokens, throttle, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Identity:  identityHandler,
		OAuth:     oauthHandler,
	})

	// ── 9. Graceful Shutdown ──────────────────────────────────────────────
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

	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	exitCode := 0
	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		exitCode = 1
	}

	// Let queued login codes and reset links reach the relay.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.MailSendTimeout)
	if err := identityService.Drain(drainCtx); err != nil {
		log.Warn("mail_drain_incomplete", slog.Any("error", err))
	}
	drainCancel()

	rootCancel()
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	log.Info("server stopped cleanly")
}

// buildProviders constructs the enabled OAuth providers. The callback is served
// under APP_URL, which fronts the API.
func buildProviders(log *slog.Logger, cfg *config.Config) []*oauth.Provider {
	appURL := strings.TrimRight(cfg.AppURL, "/")

	providers := make([]*oauth.Provider, 0, 3)
	for _, name := range cfg.EnabledProviders() {
		registration := cfg.Providers()[name]
		provider, err := oauth.New(name, oauth.Credentials{
			ClientID:     registration.ClientID,
			ClientSecret: registration.ClientSecret,
			RedirectURL:  appURL + "/api/auth/oauth/" + name + "/callback",
		}, oauth.Endpoints{})
		must(log, err, "configure oauth provider "+name)
		providers = append(providers, provider)
	}
	return providers
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is limited to startup wiring. After startup, all errors are returned and
// handled explicitly.
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
