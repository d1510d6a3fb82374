package bootstrap

import (
	"log/slog"
	"time"

	"github.com/rohittupe/prediction-service/config"
	"github.com/rohittupe/prediction-service/internal/observability/metrics"
	"github.com/rohittupe/prediction-service/internal/observability/notify"
	"github.com/rohittupe/prediction-service/internal/observability/notify/slack"
	"github.com/rohittupe/prediction-service/internal/observability/statsd"
	"github.com/rohittupe/prediction-service/internal/service/failurenotifier"
)

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// Registry backs GET /metrics. Nil when metrics are disabled.
	Registry *metrics.Registry
	// Statsd is the UDP client. Nil when StatsD is disabled.
	Statsd *statsd.Client
	// Sink fans out to every enabled backend; nil when none is enabled.
	Sink            statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// Close releases the StatsD socket.
func (o ObservabilityContainer) Close() error {
	return o.Statsd.Close()
}

// BuildObservability configures metrics and notification adapters.
func BuildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var out ObservabilityContainer
	var sinks []statsd.Sink

	if cfg.Metrics.Enabled {
		out.Registry = metrics.NewRegistry(cfg.Metrics.StatsdPrefix)
		sinks = append(sinks, out.Registry)
	}

	if cfg.Metrics.IsStatsdEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.StatsdPrefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.Statsd = client
			sinks = append(sinks, client)
		}
	}

	switch len(sinks) {
	case 0:
	case 1:
		out.Sink = sinks[0]
	default:
		out.Sink = statsd.NewMulti(sinks...)
	}

	out.FailureNotifier = buildFailureNotifier(obsLogger, cfg.Notifications)
	return out
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	sinks := map[string]notify.Sink{}

	if cfg.Slack.Enabled() {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:      cfg.Slack.WebhookURL,
			Channel:         cfg.Slack.Channel,
			Username:        cfg.Slack.Username,
			Timeout:         cfg.Timeout,
			RetryLimit:      cfg.RetryLimit,
			StatusURLPrefix: cfg.Slack.StatusURLPrefix,
		})
		if err != nil {
			logger.Error("slack notifier disabled", "error", err)
		} else {
			sinks["slack"] = client
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:          logger.With("component", "failure_notifier"),
		Sinks:           sinks,
		IncludeWarnings: cfg.NotifyWarnings,
		DeliveryTimeout: cfg.Timeout * time.Duration(cfg.RetryLimit+1),
	})
}
