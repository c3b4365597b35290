package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/atlas-ops/atlas-ops/internal/app"
	"github.com/atlas-ops/atlas-ops/internal/assets"
	"github.com/atlas-ops/atlas-ops/internal/onboarding"
	"github.com/atlas-ops/atlas-ops/internal/platform/db"
	"github.com/atlas-ops/atlas-ops/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	mailClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mailClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	onboardingJob := jobs.NewOnboardingScanJob(onboarding.NewRepository(pool), mailClient, logger, nil)
	warrantyJob := jobs.NewWarrantyScanJob(assets.NewRepository(pool), logger, nil)

	onboardingTask, err := jobs.NewOnboardingScanTask(jobs.OnboardingScanPayload{DueSoonDays: 7})
	if err != nil {
		logger.Error("build onboarding scan task", slog.Any("error", err))
		os.Exit(1)
	}
	warrantyTask, err := jobs.NewWarrantyScanTask(jobs.WarrantyScanPayload{WindowDays: 30})
	if err != nil {
		logger.Error("build warranty scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOnboardingScan, Handler: onboardingJob.Handle},
			{Type: jobs.TaskWarrantyScan, Handler: warrantyJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 7 * * *", Task: onboardingTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 7 * * *", Task: warrantyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
