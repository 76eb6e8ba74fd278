package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/drm-suite/payables/internal/app"
	jobmetrics "github.com/drm-suite/payables/internal/jobs"
	"github.com/drm-suite/payables/jobs"
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

	if err := cfg.RequireSharedStore(); err != nil {
		logger.Error("worker store", slog.Any("error", err), slog.String("store", cfg.StoreDriver))
		os.Exit(1)
	}

	deps, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}
	defer deps.Close(logger)

	metrics := jobmetrics.NewMetrics(nil)
	refreshJob := jobs.NewRefreshAlertsJob(deps.Service, logger, metrics)
	orderJob := jobs.NewScheduleFromOrderJob(deps.Service, logger, metrics)

	refreshTask, err := jobs.NewRefreshAlertsTask(cfg.RefreshConcurrency)
	if err != nil {
		logger.Error("build refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDisbursementRefreshAlerts, Handler: refreshJob.Handle},
			{Type: jobs.TaskDisbursementScheduleFromOrder, Handler: orderJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RefreshCron, Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("refresh_cron", cfg.RefreshCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
