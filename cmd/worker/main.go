package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/hr-analytics/internal/app"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
	jobmetrics "github.com/odyssey-erp/hr-analytics/internal/jobs"
	"github.com/odyssey-erp/hr-analytics/internal/platform/cache"
	"github.com/odyssey-erp/hr-analytics/internal/platform/db"
	"github.com/odyssey-erp/hr-analytics/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, ReadOnly: true})
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

	service := hranalytics.NewService(hranalytics.NewRepository(pool), hranalytics.NewCache(redisClient, cfg.HRCacheTTL))
	metrics := jobmetrics.NewMetrics(nil)

	redisOpts := asynq.RedisClientOpt{Addr: redisClient.Options().Addr, Password: redisClient.Options().Password, DB: redisClient.Options().DB}
	client := jobs.NewClient(redisOpts)
	defer client.Close()

	warmup := jobs.NewWarmupJob(service, logger, metrics)
	refresh := &jobs.StatsRefreshJob{Refresher: service, Warmups: client, Logger: logger, Metrics: metrics}

	warmupTask, err := jobs.NewWarmupTask(jobs.WarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	refreshTask, err := jobs.NewStatsRefreshTask("scheduled")
	if err != nil {
		logger.Error("build stats refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskHRWarmup, Handler: warmup.Handle},
			{Type: jobs.TaskHRStatsRefresh, Handler: refresh.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.HRWarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
			{Spec: cfg.HRStatsRefreshCron, Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("hr analytics worker started", slog.String("warmup_cron", cfg.HRWarmupCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
