package config

import (
	"errors"
	"fmt"

	"github.com/rohittupe/prediction-service/internal/domain/job"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Postgres and Redis connection configuration
//   - http.go: HTTP server configuration
//   - jobs.go: job store, runner, reaper and predictor configuration
//   - observability.go: logging, metrics and failure notifications
type AppConfig struct {
	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Job lifecycle configuration
	Jobs      JobsConfig
	Runner    RunnerConfig
	Reaper    ReaperConfig
	Predictor PredictorConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Postgres.Sanitize()
	c.Redis.Sanitize()
	c.HTTP.Sanitize()
	c.Jobs.Sanitize()
	c.Runner.Sanitize()
	c.Reaper.Sanitize()
	c.Predictor.Sanitize()
	c.Observability.Sanitize()
}

// Validate reports configuration that Sanitize cannot repair.
func (c *AppConfig) Validate() error {
	var errs []error
	if !c.Jobs.Store.Valid() {
		errs = append(errs, fmt.Errorf("invalid JOB_STORE %q (valid options: memory, redis, postgres)", c.Jobs.Store))
	}
	if _, err := c.Jobs.Retention(); err != nil {
		errs = append(errs, err)
	}
	if c.Jobs.Store == StoreRedis {
		switch c.Redis.Mode() {
		case RedisModeSentinel:
			if len(c.Redis.SentinelNodes) == 0 {
				errs = append(errs, errors.New("REDIS_SENTINEL_NODES is required when REDIS_USE_SENTINEL is set"))
			}
		case RedisModeCluster:
			if len(c.Redis.ClusterNodes) == 0 && c.Redis.URI == "" {
				errs = append(errs, errors.New("REDIS_CLUSTER_NODES or REDIS_URI is required when REDIS_USE_CLUSTER is set"))
			}
		case RedisModeDirect:
			if c.Redis.URI == "" {
				errs = append(errs, errors.New("REDIS_URI is required"))
			}
		}
	}
	return errors.Join(errs...)
}

// Retention returns the retention policy derived from the env configuration.
func (c *JobsConfig) Retention() (job.RetentionPolicy, error) {
	return job.NewRetentionPolicy(c.CompletedTTL, c.FailedTTL, c.PendingMaxAge)
}
