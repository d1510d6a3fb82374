package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rohittupe/prediction-service/config"
	"github.com/rohittupe/prediction-service/internal/core"
	"github.com/rohittupe/prediction-service/internal/data"
	"github.com/rohittupe/prediction-service/internal/domain/job"
)

// JobBackend is a job store together with its retention cleanup operations.
type JobBackend interface {
	core.JobStore
	core.JobReaper
}

var (
	_ JobBackend = (*data.MemoryJobStore)(nil)
	_ JobBackend = (*data.RedisJobStore)(nil)
	_ JobBackend = (*data.PostgresJobStore)(nil)
)

// Infrastructure holds the connections opened for the configured store backend.
type Infrastructure struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

// Close releases any open connections.
func (i *Infrastructure) Close() error {
	if i == nil {
		return nil
	}
	var errs []error
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Ping checks every open connection. With no connections it always succeeds.
func (i *Infrastructure) Ping(ctx context.Context) error {
	if i == nil {
		return nil
	}
	if i.DB != nil {
		if err := i.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// ConnectInfrastructure opens only the connections the configured backend needs.
// Postgres migrations are applied when enabled.
func ConnectInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{}
	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	switch cfg.Jobs.Store {
	case config.StorePostgres:
		db, err := ConnectDB(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		infra.DB = db
		if cfg.Postgres.RunMigrationsOnStart {
			if err := RunMigrations(ctx, db, logger); err != nil {
				return nil, errors.Join(err, infra.Close())
			}
		} else {
			logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
		}
	case config.StoreRedis:
		client, err := ConnectRedis(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		infra.Redis = client
	case config.StoreMemory:
	default:
		return nil, fmt.Errorf("unsupported job store %q", cfg.Jobs.Store)
	}
	return infra, nil
}

// StoreDeps groups dependencies for NewJobBackend.
type StoreDeps struct {
	Backend   config.StoreBackend
	Infra     *Infrastructure
	Retention job.RetentionProvider
	KeyPrefix string // Redis key prefix
}

// NewJobBackend builds the job store selected by deps.Backend.
//
//nolint:ireturn // the backend is chosen at runtime.
func NewJobBackend(deps StoreDeps) (JobBackend, error) {
	infra := deps.Infra
	if infra == nil {
		infra = &Infrastructure{}
	}

	switch deps.Backend {
	case config.StoreMemory:
		s, err := data.NewMemoryJobStore(data.MemoryJobStoreOptions{Retention: deps.Retention})
		if err != nil {
			return nil, fmt.Errorf("memory job store: %w", err)
		}
		return s, nil
	case config.StoreRedis:
		s, err := data.NewRedisJobStore(data.RedisJobStoreOptions{
			Client:    infra.Redis,
			Retention: deps.Retention,
			KeyPrefix: deps.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("redis job store: %w", err)
		}
		return s, nil
	case config.StorePostgres:
		s, err := data.NewPostgresJobStore(data.PostgresJobStoreOptions{
			DB:        infra.DB,
			Retention: deps.Retention,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres job store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported job store %q", deps.Backend)
	}
}
