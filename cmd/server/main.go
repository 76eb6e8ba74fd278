package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/drm-suite/payables/internal/app"
	disbursementhttp "github.com/drm-suite/payables/internal/disbursement/http"
	"github.com/drm-suite/payables/internal/observability"
	"github.com/drm-suite/payables/internal/shared"
	"github.com/drm-suite/payables/jobs"
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

	deps, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}
	defer deps.Close(logger)

	metrics := observability.NewMetrics()

	disbursementHandler := disbursementhttp.NewHandler(logger, deps.Service)
	if deps.Redis != nil {
		disbursementHandler.WithIdempotency(shared.NewIdempotencyStore(deps.Redis, cfg.IdempotencyRetention))
	}

	var jobHandler *jobs.Handler
	if deps.Redis != nil {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("queue client close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
		if cfg.RequireSharedStore() == nil {
			jobHandler.WithEnqueuer(client)
		} else {
			logger.Warn("job submission disabled: the worker cannot see the memory store")
		}
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	if cfg.RequireSharedStore() != nil {
		refresher, err := app.NewLocalRefresher(cfg, deps.Service, logger)
		if err != nil {
			logger.Error("schedule local refresh", slog.Any("error", err))
			os.Exit(1)
		}
		refresher.Start()
		defer func() { <-refresher.Stop().Done() }()
		logger.Info("alert refresh runs in-process", slog.String("refresh_cron", cfg.RefreshCron))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		DisbursementHandler: disbursementHandler,
		JobHandler:          jobHandler,
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
