package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // "pgx" driver for database/sql
	"github.com/redis/go-redis/v9"

	"github.com/rohittupe/prediction-service/config"
	"github.com/rohittupe/prediction-service/internal/migrate"
)

// DatabaseConfig groups what ConnectDB and ConnectRedis need.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

func (c DatabaseConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// ConnectDB opens a pooled Postgres handle through the pgx stdlib driver and pings it
// within DBConfig.ConnectTimeout.
func ConnectDB(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	pg := cfg.DBConfig
	pg.Sanitize()

	db, err := sql.Open("pgx", pg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(pg.MaxOpenConns)
	db.SetMaxIdleConns(pg.MaxIdleConns)
	db.SetConnMaxLifetime(pg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, closeAfter(fmt.Errorf("ping postgres: %w", err), db.Close)
	}

	cfg.logger().InfoContext(ctx, "postgres connected",
		"host", pg.Host,
		"port", pg.Port,
		"database", pg.Name,
		"max_open_conns", pg.MaxOpenConns,
	)
	return db, nil
}

// ConnectRedis builds a client for the configured topology and pings it.
//
//nolint:ireturn // the concrete client depends on RedisConfig.Mode.
func ConnectRedis(ctx context.Context, cfg DatabaseConfig) (redis.UniversalClient, error) {
	rc := cfg.RedisConfig
	rc.Sanitize()

	opts, err := redisOptions(rc)
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	switch rc.Mode() {
	case config.RedisModeCluster:
		client = redis.NewClusterClient(opts.Cluster())
	case config.RedisModeSentinel:
		client = redis.NewFailoverClient(opts.Failover())
	default:
		client = redis.NewClient(opts.Simple())
	}

	pingCtx, cancel := context.WithTimeout(ctx, rc.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, closeAfter(fmt.Errorf("ping redis (%s): %w", rc.Mode(), err), client.Close)
	}

	cfg.logger().InfoContext(ctx, "redis connected",
		"mode", string(rc.Mode()),
		"addrs", strings.Join(opts.Addrs, ","),
		"key_prefix", rc.KeyPrefix,
	)
	return client, nil
}

// redisOptions resolves RedisConfig into UniversalOptions. A redis:// URI supplies
// credentials, DB and TLS; explicit node lists take precedence for the address set.
func redisOptions(rc config.RedisConfig) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{
		Password:    rc.Password,
		DB:          rc.DB,
		DialTimeout: rc.ConnectTimeout,
	}

	if rc.URI != "" {
		if isRedisURL(rc.URI) {
			parsed, err := redis.ParseURL(rc.URI)
			if err != nil {
				return nil, fmt.Errorf("parse REDIS_URI: %w", err)
			}
			opts.Addrs = []string{parsed.Addr}
			opts.Username = parsed.Username
			if parsed.Password != "" {
				opts.Password = parsed.Password
			}
			opts.DB = parsed.DB
			opts.TLSConfig = parsed.TLSConfig
		} else {
			opts.Addrs = []string{rc.URI}
		}
	}

	switch rc.Mode() {
	case config.RedisModeSentinel:
		if len(rc.SentinelNodes) == 0 {
			return nil, errors.New("redis sentinel mode needs at least one sentinel node")
		}
		opts.Addrs = rc.SentinelNodes
		opts.MasterName = rc.SentinelMasterName
		opts.SentinelPassword = rc.SentinelPassword
	case config.RedisModeCluster:
		if len(rc.ClusterNodes) > 0 {
			opts.Addrs = rc.ClusterNodes
		}
	}

	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("redis %s mode needs at least one address", rc.Mode())
	}
	return opts, nil
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}

// closeAfter joins a close failure onto err.
func closeAfter(err error, closeFn func() error) error {
	if cerr := closeFn(); cerr != nil {
		return errors.Join(err, fmt.Errorf("close: %w", cerr))
	}
	return err
}

// RunMigrations applies the embedded prediction_jobs migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}
	return nil
}
