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
	auditLogger := shared.NewAuditLogger(dbpool)

	decisionCache := access.NewCache(redisClient, cfg.DecisionCacheTTL)
	if err := decisionCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("subscribe cache invalidation", slog.Any("error", err))
	}

	rolesRepo := roles.NewRepository(dbpool)
	membershipsRepo := memberships.NewRepository(dbpool)

	accessService := access.NewService(membershipsRepo, rolesRepo, decisionCache, metrics, logger)
	guard := access.NewGuard(accessService, metrics)
	accessHandler := access.NewHandler(logger, accessService)

	rolesService := roles.NewService(rolesRepo, auditLogger, decisionCache, logger)
	rolesHandler := roles.NewHandler(logger, rolesService, guard)

	membershipsService := memberships.NewService(membershipsRepo, rolesRepo, auditLogger, decisionCache, logger)
	membershipsHandler := memberships.NewHandler(logger, membershipsService, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		RolesHandler:       rolesHandler,
		MembershipsHandler: membershipsHandler,
		AccessHandler:      accessHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
