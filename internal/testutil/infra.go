package testutil

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/rohittupe/prediction-service/config"
	"github.com/rohittupe/prediction-service/internal/migrate"
)

// TB is the subset of testing.TB the infra helpers need.
type TB interface {
	Helper()
	Skip(args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

// Local docker-compose test profile ports.
const (
	testDBPort    = "55432"
	testRedisAddr = "localhost:56379"
	testRedisDB   = 1
)

// TestDBConfig reads TEST_DB_* variables with the same keys as the service's DB_*.
// The port defaults to the test profile's 55432.
func TestDBConfig() (config.DBConfig, error) {
	vars := env.ToMap(os.Environ())
	if vars["TEST_DB_PORT"] == "" {
		vars["TEST_DB_PORT"] = testDBPort
	}
	cfg, err := env.ParseAsWithOptions[config.DBConfig](env.Options{
		Prefix:      "TEST_DB_",
		Environment: vars,
	})
	if err != nil {
		return cfg, err
	}
	cfg.Sanitize()
	return cfg, nil
}

// SetupTestDB connects to the test database, migrates it and truncates
// prediction_jobs before and after the test. Without a reachable database the
// test is skipped, or failed when TEST_REQUIRE_DB or TEST_REQUIRE_INFRA is set.
func SetupTestDB(t TB) *sql.DB {
	t.Helper()

	cfg, err := TestDBConfig()
	if err != nil {
		t.Fatal("test db config:", err)
	}
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		unavailable(t, needs("DB"), "test database:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		unavailable(t, needs("DB"), "test database:", err)
	}
	if err := migrate.Run(ctx, db); err != nil {
		_ = db.Close()
		t.Fatal("migrate test database:", err)
	}

	CleanupTestDB(t, db)
	t.Cleanup(func() {
		CleanupTestDB(t, db)
		if err := db.Close(); err != nil {
			t.Logf("close test db: %v", err)
		}
	})
	return db
}

// CleanupTestDB deletes every prediction job.
func CleanupTestDB(t TB, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "DELETE FROM prediction_jobs"); err != nil {
		t.Fatalf("clean prediction_jobs: %v", err)
	}
}

// SetupTestRedis returns a client on a flushed scratch DB (TEST_REDIS_DB, default 1)
// at REDIS_ADDR. It skips or fails like SetupTestDB, keyed on TEST_REQUIRE_REDIS.
func SetupTestRedis(t TB) *redis.Client {
	t.Helper()

	addr := orDefault(os.Getenv("REDIS_ADDR"), testRedisAddr)
	client := redis.NewClient(&redis.Options{Addr: addr, DB: redisDB(t)})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		unavailable(t, needs("REDIS"), "test redis at "+addr+":", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush test redis: %v", err)
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("close test redis: %v", err)
		}
	})
	return client
}

func redisDB(t TB) int {
	raw := os.Getenv("TEST_REDIS_DB")
	if raw == "" {
		return testRedisDB
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		t.Logf("ignoring TEST_REDIS_DB=%q", raw)
		return testRedisDB
	}
	return n
}

func unavailable(t TB, required bool, args ...any) {
	t.Helper()
	if required {
		t.Fatal(args...)
	}
	t.Skip(args...)
}

// needs reports whether TEST_REQUIRE_<what> or TEST_REQUIRE_INFRA is truthy.
func needs(what string) bool {
	return truthy(os.Getenv("TEST_REQUIRE_"+what)) || truthy(os.Getenv("TEST_REQUIRE_INFRA"))
}

func truthy(v string) bool {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "yes") {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
