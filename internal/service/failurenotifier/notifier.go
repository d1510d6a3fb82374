// Package failurenotifier fans prediction job failures out to the configured alert sinks.
package failurenotifier

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rohittupe/prediction-service/internal/observability/notify"
)

const defaultDeliveryTimeout = 10 * time.Second

// Options configures a Service.
type Options struct {
	Logger *slog.Logger
	// Sinks maps a sink name, used in logs, to its implementation. Nil sinks are ignored.
	Sinks map[string]notify.Sink
	// IncludeWarnings also delivers warning-severity failures.
	IncludeWarnings bool
	// DeliveryTimeout bounds one fan-out across all sinks.
	DeliveryTimeout time.Duration
}

// Service delivers job failures to every sink concurrently.
type Service struct {
	logger          *slog.Logger
	names           []string
	sinks           map[string]notify.Sink
	includeWarnings bool
	timeout         time.Duration
}

// NewService builds a Service. A Service with no sinks is valid and does nothing.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}
	timeout := opts.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}

	sinks := make(map[string]notify.Sink, len(opts.Sinks))
	for name, sink := range opts.Sinks {
		if sink != nil {
			sinks[name] = sink
		}
	}

	return &Service{
		logger:          logger,
		names:           slices.Sorted(maps.Keys(sinks)),
		sinks:           sinks,
		includeWarnings: opts.IncludeWarnings,
		timeout:         timeout,
	}
}

// Enabled reports whether any sink is registered.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}

// Accepts reports whether a failure of the given severity would be delivered.
func (s *Service) Accepts(sev notify.Severity) bool {
	if !s.Enabled() {
		return false
	}
	return sev != notify.SeverityWarning || s.includeWarnings
}

// Notify delivers failure to every sink and blocks until all of them return or the
// delivery timeout expires. Sink errors are logged, never returned.
func (s *Service) Notify(ctx context.Context, failure notify.JobFailure) {
	if failure.Severity == "" {
		failure.Severity = notify.SeverityCritical
	}
	if !s.Accepts(failure.Severity) {
		return
	}
	if failure.FailedAt.IsZero() {
		failure.FailedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var g errgroup.Group
	for _, name := range s.names {
		sink := s.sinks[name]
		g.Go(func() error {
			if err := sink.Notify(ctx, failure); err != nil {
				s.logger.WarnContext(ctx, "failure notification not delivered",
					"sink", name,
					"job_id", failure.JobID,
					"error", err,
				)
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err == nil {
		s.logger.DebugContext(ctx, "failure notification delivered", "job_id", failure.JobID, "sinks", len(s.names))
	}
}
