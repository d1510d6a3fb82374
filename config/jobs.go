package config

import (
	"strings"
	"time"
)

// StoreBackend selects the JobStore implementation.
type StoreBackend string

const (
	// StoreMemory keeps jobs in process memory. Jobs are lost on restart.
	StoreMemory StoreBackend = "memory"
	// StoreRedis keeps jobs in Redis hashes with native expiry.
	StoreRedis StoreBackend = "redis"
	// StorePostgres keeps jobs in the prediction_jobs table.
	StorePostgres StoreBackend = "postgres"
)

// Valid reports whether b names a known backend.
func (b StoreBackend) Valid() bool {
	switch b {
	case StoreMemory, StoreRedis, StorePostgres:
		return true
	}
	return false
}

// JobsConfig contains job store and retention configuration.
type JobsConfig struct {
	Store StoreBackend `env:"JOB_STORE" envDefault:"memory"`

	// CompletedTTL is how long a completed job stays readable after it finished.
	CompletedTTL time.Duration `env:"JOB_COMPLETED_TTL" envDefault:"1h"`

	// FailedTTL is how long a failed job stays readable after it finished.
	FailedTTL time.Duration `env:"JOB_FAILED_TTL" envDefault:"1h"`

	// PendingMaxAge is how long a job may stay pending before the reaper fails it.
	PendingMaxAge time.Duration `env:"JOB_PENDING_MAX_AGE" envDefault:"10m"`

	// PolicyFile optionally points at a YAML retention policy that overrides the TTLs above
	// and is reloaded when it changes.
	PolicyFile string `env:"JOB_POLICY_FILE"`
}

// Sanitize normalises the backend name and trims the policy path.
func (c *JobsConfig) Sanitize() {
	c.Store = StoreBackend(strings.ToLower(strings.TrimSpace(string(c.Store))))
	if c.Store == "" {
		c.Store = StoreMemory
	}
	c.PolicyFile = strings.TrimSpace(c.PolicyFile)
}

// RunnerConfig contains job runner configuration.
type RunnerConfig struct {
	// MaxConcurrency bounds simultaneous predictions; 0 means unbounded.
	MaxConcurrency int `env:"RUNNER_MAX_CONCURRENCY" envDefault:"0"`

	// StoreTimeout bounds each terminal store write made by the runner.
	StoreTimeout time.Duration `env:"RUNNER_STORE_TIMEOUT" envDefault:"5s"`

	// ShutdownTimeout bounds how long shutdown waits for in-flight jobs.
	ShutdownTimeout time.Duration `env:"RUNNER_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Sanitize applies guardrails to runner configuration.
func (c *RunnerConfig) Sanitize() {
	if c.MaxConcurrency < 0 {
		c.MaxConcurrency = 0
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
}

// ReaperConfig contains job reaper configuration.
// Retention windows come from the active retention policy, not from here.
type ReaperConfig struct {
	// Enabled runs the periodic reaper alongside the HTTP server.
	Enabled bool `env:"REAPER_ENABLED" envDefault:"true"`

	// Interval is how often the reaper runs cleanup operations.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`

	// BatchSize is the maximum number of jobs to process per operation.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration.
func (c *ReaperConfig) Sanitize() {
	if c.Interval < time.Second {
		c.Interval = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
}

// PredictorConfig contains predictor configuration.
type PredictorConfig struct {
	// FailureRate is the probability that a prediction fails with a simulated error.
	FailureRate float64 `env:"PREDICTOR_FAILURE_RATE" envDefault:"0"`
}

// Sanitize clamps FailureRate into [0,1].
func (c *PredictorConfig) Sanitize() {
	c.FailureRate = min(max(c.FailureRate, 0), 1)
}
