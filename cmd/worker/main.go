package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/storehub-platform/storehub/internal/access"
	"github.com/storehub-platform/storehub/internal/app"
	"github.com/storehub-platform/storehub/internal/memberships"
	"github.com/storehub-platform/storehub/internal/observability"
	"github.com/storehub-platform/storehub/internal/platform/cache"
	"github.com/storehub-platform/storehub/internal/platform/db"
	"github.com/storehub-platform/storehub/internal/roles"
	"github.com/storehub-platform/storehub/internal/shared"
	"github.com/storehub-platform/storehub/jobs"
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

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	decisionCache := access.NewCache(redisClient, cfg.DecisionCacheTTL)

	rolesRepo := roles.NewRepository(pool)
	membershipsRepo := memberships.NewRepository(pool)

	sweeper := jobs.NewSweeper(membershipsRepo, auditLogger, decisionCache, logger)
	scanner := jobs.NewScanner(rolesRepo, membershipsRepo, metrics, logger)

	sweepTask, err := jobs.NewMembershipExpirySweepTask(time.Now().UTC())
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	scanTask, err := jobs.NewRoleIntegrityScanTask(time.Now().UTC())
	if err != nil {
		logger.Error("build scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskMembershipExpirySweep, Handler: sweeper.HandleTask},
			{Type: jobs.TaskRoleIntegrityScan, Handler: scanner.HandleTask},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
