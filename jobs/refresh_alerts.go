package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/drm-suite/payables/internal/jobs"
)

const defaultRefreshConcurrency = 4

// AlertRefresher refreshes disbursement alerts across tenants.
type AlertRefresher interface {
	RefreshAllTenants(ctx context.Context, concurrency int) (map[string]int, error)
}

// RefreshAlertsJob advances overdue schedules and updates alert fields.
type RefreshAlertsJob struct {
	Refresher AlertRefresher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewRefreshAlertsJob initialises the refresh handler.
func NewRefreshAlertsJob(refresher AlertRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *RefreshAlertsJob {
	return &RefreshAlertsJob{Refresher: refresher, Logger: logger, Metrics: metrics}
}

// Handle executes a refresh run.
func (j *RefreshAlertsJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Refresher == nil {
		return errors.New("refresh alerts: handler not configured")
	}
	var payload RefreshAlertsPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Concurrency <= 0 {
		payload.Concurrency = defaultRefreshConcurrency
	}

	start := time.Now()
	tracker := j.Metrics.Track(TaskDisbursementRefreshAlerts)
	logger := j.logger().With(slog.Int("concurrency", payload.Concurrency))
	logger.Info("starting alert refresh")

	counts, err := j.Refresher.RefreshAllTenants(ctx, payload.Concurrency)
	if err != nil {
		logger.Error("alert refresh failed", slog.Any("error", err))
		return tracker.End(err)
	}
	total := 0
	for tenant, n := range counts {
		total += n
		j.Metrics.AddAlertChanges(tenant, n)
	}
	logger.Info("completed alert refresh",
		slog.Int("tenants", len(counts)),
		slog.Int("changed", total),
		slog.Duration("duration", time.Since(start)),
	)
	return tracker.End(nil)
}

func (j *RefreshAlertsJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDisbursementRefreshAlerts))
	}
	return slog.Default().With(slog.String("job", TaskDisbursementRefreshAlerts))
}
