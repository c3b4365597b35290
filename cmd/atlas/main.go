package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/app"
	"github.com/atlas-ops/atlas-ops/internal/assets"
	"github.com/atlas-ops/atlas-ops/internal/auth"
	"github.com/atlas-ops/atlas-ops/internal/observability"
	"github.com/atlas-ops/atlas-ops/internal/onboarding"
	"github.com/atlas-ops/atlas-ops/internal/platform/cache"
	"github.com/atlas-ops/atlas-ops/internal/platform/db"
	"github.com/atlas-ops/atlas-ops/internal/shared"
	"github.com/atlas-ops/atlas-ops/internal/users"
	"github.com/atlas-ops/atlas-ops/internal/vendors"
	"github.com/atlas-ops/atlas-ops/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// Refresh tokens and the stats cache live in Redis.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	statsCache := cache.NewStatsCache(redisClient, cfg.StatsCacheTTL)
	auditLogger := shared.NewAuditLogger(dbpool)

	metrics := observability.NewMetrics()

	usersRepo := users.NewRepository(dbpool)
	gate := access.NewGate(access.DefaultMatrix(), access.NewResolver(usersRepo))
	guard := access.NewGuard(usersRepo)
	guards := access.Middleware{Logger: logger, Denials: metrics}

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL)
	refreshStore := auth.NewRefreshStore(redisClient, cfg.RefreshTokenTTL)
	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, issuer, refreshStore)
	authHandler := auth.NewHandler(logger, authService)
	authMiddleware := auth.NewMiddleware(logger, issuer, authService)

	usersService := users.NewService(usersRepo, gate, guard, statsCache)
	usersHandler := users.NewHandler(logger, usersService, guards)

	assetsRepo := assets.NewRepository(dbpool)
	assetsService := assets.NewService(logger, assetsRepo, gate, statsCache, auditLogger)
	assetsHandler := assets.NewHandler(logger, assetsService, guards)

	vendorsRepo := vendors.NewRepository(dbpool)
	vendorsService := vendors.NewService(vendorsRepo, gate, statsCache)
	vendorsHandler := vendors.NewHandler(logger, vendorsService, guards)

	onboardingRepo := onboarding.NewRepository(dbpool)
	onboardingService := onboarding.NewService(onboardingRepo, gate, statsCache)
	onboardingHandler := onboarding.NewHandler(logger, onboardingService, guards)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AuthMiddleware:    authMiddleware,
		AccessMiddleware:  guards,
		AuthHandler:       authHandler,
		UsersHandler:      usersHandler,
		AssetsHandler:     assetsHandler,
		VendorsHandler:    vendorsHandler,
		OnboardingHandler: onboardingHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
