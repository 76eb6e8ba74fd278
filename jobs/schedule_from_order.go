package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/drm-suite/payables/internal/disbursement"
	jobmetrics "github.com/drm-suite/payables/internal/jobs"
	"github.com/drm-suite/payables/internal/shared"
)

// OrderScheduler creates disbursement schedules from order events.
type OrderScheduler interface {
	CreateFromOrder(ctx context.Context, ev disbursement.OrderEvent) (disbursement.Schedule, error)
}

// ScheduleFromOrderJob consumes order events.
type ScheduleFromOrderJob struct {
	Scheduler OrderScheduler
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewScheduleFromOrderJob initialises the order event handler.
func NewScheduleFromOrderJob(scheduler OrderScheduler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ScheduleFromOrderJob {
	return &ScheduleFromOrderJob{Scheduler: scheduler, Logger: logger, Metrics: metrics}
}

// Handle creates a schedule for the order in the task payload. Malformed or
// invalid events are not retried.
func (j *ScheduleFromOrderJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Scheduler == nil {
		return errors.New("schedule from order: handler not configured")
	}
	var ev disbursement.OrderEvent
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskDisbursementScheduleFromOrder)
	sched, err := j.Scheduler.CreateFromOrder(ctx, ev)
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			j.logger().Warn("rejected order event", slog.String("order_no", ev.OrderNo), slog.Any("error", err))
			return tracker.End(fmt.Errorf("%v: %w", err, asynq.SkipRetry))
		}
		return tracker.End(err)
	}
	j.logger().Info("schedule generated",
		slog.String("tenant", sched.TenantID),
		slog.String("order_no", ev.OrderNo),
		slog.String("number", sched.Number),
	)
	return tracker.End(nil)
}

func (j *ScheduleFromOrderJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDisbursementScheduleFromOrder))
	}
	return slog.Default().With(slog.String("job", TaskDisbursementScheduleFromOrder))
}
