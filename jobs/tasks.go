package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/drm-suite/payables/internal/disbursement"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDisbursementRefreshAlerts recomputes disbursement alerts for every tenant.
	TaskDisbursementRefreshAlerts = "disbursement:refresh_alerts"
	// TaskDisbursementScheduleFromOrder derives a disbursement schedule from a placed order.
	TaskDisbursementScheduleFromOrder = "disbursement:schedule_from_order"
)

// RefreshAlertsPayload configures a refresh run.
type RefreshAlertsPayload struct {
	Concurrency int `json:"concurrency"`
}

// NewRefreshAlertsTask constructs the periodic refresh task.
func NewRefreshAlertsTask(concurrency int) (*asynq.Task, error) {
	data, err := json.Marshal(RefreshAlertsPayload{Concurrency: concurrency})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDisbursementRefreshAlerts, data), nil
}

// NewScheduleFromOrderTask wraps an order event into a task.
func NewScheduleFromOrderTask(ev disbursement.OrderEvent) (*asynq.Task, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDisbursementScheduleFromOrder, data), nil
}
