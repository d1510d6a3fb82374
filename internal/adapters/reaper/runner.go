// Package reaper runs retention sweeps against the configured job store, either on a
// schedule next to the HTTP server or once from the admin CLI.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rohittupe/prediction-service/config"
	"github.com/rohittupe/prediction-service/internal/core"
	"github.com/rohittupe/prediction-service/internal/domain/job"
	"github.com/rohittupe/prediction-service/internal/observability/statsd"
	"github.com/rohittupe/prediction-service/internal/service"
)

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Store     core.JobReaper
	Retention job.RetentionProvider
	Config    config.ReaperConfig
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// Runner drives a service.ReaperService.
type Runner struct {
	svc    *service.ReaperService
	logger *slog.Logger
}

// NewRunner wires a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Store == nil {
		return nil, errors.New("job store is required")
	}
	if opts.Retention == nil {
		return nil, errors.New("retention provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Reaper:    opts.Store,
		Retention: opts.Retention,
		Config:    opts.Config,
		Logger:    logger,
		Metrics:   opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}
	return &Runner{svc: svc, logger: logger.With("component", "reaper")}, nil
}

// Run sweeps on the configured interval until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	return r.svc.Run(ctx)
}

// Sweep performs one pass and logs what it did.
func (r *Runner) Sweep(ctx context.Context) (service.SweepReport, error) {
	report, err := r.svc.RunOnce(ctx)
	r.logger.InfoContext(ctx, "retention sweep finished",
		"abandoned", report.Abandoned,
		"deleted_completed", report.DeletedCompleted,
		"deleted_failed", report.DeletedFailed,
		"completed_ttl", report.Policy.CompletedTTL,
		"failed_ttl", report.Policy.FailedTTL,
		"pending_max_age", report.Policy.PendingMaxAge,
		"elapsed", report.Elapsed,
		"error", err,
	)
	return report, err
}
