package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// localRefreshTimeout bounds one in-process refresh run.
const localRefreshTimeout = time.Minute

// TenantRefresher recomputes alerts for every tenant.
type TenantRefresher interface {
	RefreshAllTenants(ctx context.Context, concurrency int) (map[string]int, error)
}

// NewLocalRefresher schedules RefreshAllTenants on REFRESH_CRON inside the
// current process. The API server uses it with the memory store, which the
// worker process cannot reach. The caller starts and stops the returned cron.
func NewLocalRefresher(cfg *Config, refresher TenantRefresher, logger *slog.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(cfg.Location()))
	_, err := c.AddFunc(cfg.RefreshCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), localRefreshTimeout)
		defer cancel()
		counts, err := refresher.RefreshAllTenants(ctx, cfg.RefreshConcurrency)
		if err != nil {
			logger.Error("local alert refresh", slog.Any("error", err))
			return
		}
		changed := 0
		for _, n := range counts {
			changed += n
		}
		logger.Info("local alert refresh", slog.Int("tenants", len(counts)), slog.Int("changed", changed))
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
