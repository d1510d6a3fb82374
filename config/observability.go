package config

import (
	"log/slog"
	"strings"
	"time"
)

const defaultObservabilityName = "prediction-service"

// ObservabilityConfig groups configuration that controls logging, metrics, and failure fan-out.
type ObservabilityConfig struct {
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error", or offsets like "warn+2").
// "warning" is accepted as warn and anything unparseable falls back to info.
func (c *ObservabilityConfig) SlogLevel() slog.Level {
	name := c.LogLevel
	if name == "warning" {
		name = "warn"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ObservabilityMetricsConfig controls the /metrics endpoint and the optional StatsD sink.
type ObservabilityMetricsConfig struct {
	// Enabled serves the in-process registry on GET /metrics.
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	StatsdEnabled bool   `env:"STATSD_ENABLED" envDefault:"false"`
	StatsdAddress string `env:"STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	StatsdPrefix  string `env:"STATSD_PREFIX"  envDefault:"prediction_service"`
}

// Sanitize trims the StatsD settings and turns StatsD off when no address remains.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.StatsdPrefix = strings.Trim(strings.TrimSpace(c.StatsdPrefix), ".")
	c.StatsdEnabled = c.StatsdEnabled && c.StatsdAddress != ""
}

// IsStatsdEnabled reports whether metrics should also be pushed over UDP.
func (c *ObservabilityMetricsConfig) IsStatsdEnabled() bool {
	return c.StatsdEnabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls outbound job failure notifications.
type ObservabilityNotificationsConfig struct {
	Timeout    time.Duration `env:"NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	// NotifyWarnings also forwards failures caused by rejected input.
	NotifyWarnings bool                    `env:"NOTIFICATIONS_INCLUDE_WARNINGS" envDefault:"false"`
	Slack          SlackNotificationConfig `envPrefix:"SLACK_"`
}

// Sanitize restores the default timeout and forbids negative retries.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.RetryLimit = max(c.RetryLimit, 0)
	c.Slack.sanitize()
}

// SlackNotificationConfig controls Slack webhook fan-out. It is active whenever WebhookURL is set.
type SlackNotificationConfig struct {
	WebhookURL      string `env:"WEBHOOK_URL"`
	Channel         string `env:"CHANNEL"`
	Username        string `env:"USERNAME"          envDefault:"prediction-service"`
	StatusURLPrefix string `env:"STATUS_URL_PREFIX"`
}

// Enabled reports whether a webhook is configured.
func (c *SlackNotificationConfig) Enabled() bool {
	return c.WebhookURL != ""
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.StatusURLPrefix = strings.TrimRight(strings.TrimSpace(c.StatusURLPrefix), "/")
	if c.Username == "" {
		c.Username = defaultObservabilityName
	}
}
