package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/drm-suite/payables/internal/disbursement"
	"github.com/drm-suite/payables/internal/platform/cache"
	"github.com/drm-suite/payables/internal/platform/db"
	"github.com/drm-suite/payables/internal/shared"
	"github.com/drm-suite/payables/migrations"
)

// Dependencies bundles the long-lived resources shared by the server and
// the worker.
type Dependencies struct {
	Service *disbursement.Service
	Redis   *redis.Client
	Pool    *pgxpool.Pool
}

// Bootstrap connects the configured store and summary cache and builds the
// disbursement service. Redis is optional: when it cannot be reached the
// summary is computed on every request.
func Bootstrap(ctx context.Context, cfg *Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	var repo disbursement.Repository
	var approvals disbursement.ApprovalRecorder
	switch cfg.StoreDriver {
	case StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return nil, err
		}
		deps.Pool = pool
		if cfg.MigrateOnStart {
			if err := db.Migrate(ctx, pool, migrations.Files); err != nil {
				pool.Close()
				return nil, fmt.Errorf("app: migrate: %w", err)
			}
		}
		repo = disbursement.NewPostgresRepository(pool)
		approvals = shared.NewApprovalRecorder(pool, logger)
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		repo = disbursement.NewMemoryRepository()
		approvals = shared.LogApprovalRecorder{Logger: logger}
	}

	var summaryCache disbursement.SummaryCache
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, summary cache disabled", slog.Any("error", err))
	} else {
		deps.Redis = client
		summaryCache = cache.NewCache(client, "payables:disbursement", cfg.SummaryCacheTTL)
	}

	svc := disbursement.NewService(repo, approvals, summaryCache, logger)
	svc.SetAmountLocale(cfg.Locale())
	svc.SetLocation(cfg.Location())
	deps.Service = svc
	return deps, nil
}

// Close releases pooled connections.
func (d *Dependencies) Close(logger *slog.Logger) {
	if d == nil {
		return
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// ShutdownTimeout bounds graceful shutdown of the HTTP server.
const ShutdownTimeout = 10 * time.Second
