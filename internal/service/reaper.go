package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/rohittupe/prediction-service/config"
	"github.com/rohittupe/prediction-service/internal/core"
	"github.com/rohittupe/prediction-service/internal/domain/job"
	"github.com/rohittupe/prediction-service/internal/domain/model"
	obserrors "github.com/rohittupe/prediction-service/internal/observability/errors"
	"github.com/rohittupe/prediction-service/internal/observability/metrics"
	"github.com/rohittupe/prediction-service/internal/observability/statsd"
)

// AbandonedJobMessage is recorded on pending jobs the reaper fails.
const AbandonedJobMessage = "job abandoned before completion"

// Reaper metric names.
const (
	MetricReaperSweeps        = "reaper.sweeps"
	MetricReaperSweepDuration = "reaper.sweep_duration"
	MetricReaperJobs          = "reaper.jobs_processed"
	MetricReaperLastSuccess   = "reaper.last_success_epoch"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Reaper    core.JobReaper        // Required: store cleanup operations
	Retention job.RetentionProvider // Required: retention windows, read on every pass
	Config    config.ReaperConfig   // Optional: interval and batch size
	Logger    *slog.Logger          // Optional: structured logger
	Metrics   statsd.Sink           // Optional: metrics sink
}

// SweepReport summarizes one retention pass.
type SweepReport struct {
	Policy           job.RetentionPolicy
	Abandoned        int64 // pending jobs failed as abandoned
	DeletedCompleted int64
	DeletedFailed    int64
	Elapsed          time.Duration
}

// Total returns the number of jobs the sweep touched.
func (r SweepReport) Total() int64 {
	return r.Abandoned + r.DeletedCompleted + r.DeletedFailed
}

// ReaperService applies the retention policy to a job store on an interval.
// Stale pending jobs are failed first so the same pass never deletes them.
type ReaperService struct {
	reaper    core.JobReaper
	retention job.RetentionProvider
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewReaperService constructs a ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Reaper == nil {
		return nil, errors.New("JobReaper is required")
	}
	if opts.Retention == nil {
		return nil, errors.New("RetentionProvider is required")
	}

	s := &ReaperService{
		reaper:    opts.Reaper,
		retention: opts.Retention,
		interval:  opts.Config.Interval,
		batchSize: opts.Config.BatchSize,
		metrics:   opts.Metrics,
	}
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	if s.batchSize <= 0 {
		s.batchSize = 1000
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With("component", "reaper_service")
	} else {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// Run sweeps once after a short random delay, then on every interval tick until ctx ends.
// Sweep errors are logged and do not stop the loop. Returns nil when ctx is canceled.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "reaper started", "interval", s.interval, "batch_size", s.batchSize)

	// Spread instances that start together across the first tenth of the interval.
	if jitter := s.interval / 10; jitter > 0 {
		if err := wait(ctx, rand.N(jitter)); err != nil {
			return stopReason(err)
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logSweepError(ctx, err)
		}
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper stopped", "reason", ctx.Err())
			return stopReason(ctx.Err())
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single pass against the retention policy currently in force.
// Every operation runs even when an earlier one fails; their errors are joined.
func (s *ReaperService) RunOnce(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	policy := s.retention.Current()
	report := SweepReport{Policy: policy}

	ops := []struct {
		name  string
		label string
		dst   *int64
		batch func(context.Context) (int64, error)
	}{
		{"fail_pending", "fail stale pending jobs", &report.Abandoned, func(ctx context.Context) (int64, error) {
			return s.reaper.FailStalePending(ctx, core.FailStalePendingParams{
				MaxAge: policy.PendingMaxAge, BatchSize: s.batchSize, Message: AbandonedJobMessage,
			})
		}},
		{"delete_completed", "delete expired completed jobs", &report.DeletedCompleted, func(ctx context.Context) (int64, error) {
			return s.reaper.DeleteExpired(ctx, core.DeleteExpiredParams{
				State: model.JobStateCompleted, OlderThan: policy.CompletedTTL, BatchSize: s.batchSize,
			})
		}},
		{"delete_failed", "delete expired failed jobs", &report.DeletedFailed, func(ctx context.Context) (int64, error) {
			return s.reaper.DeleteExpired(ctx, core.DeleteExpiredParams{
				State: model.JobStateFailed, OlderThan: policy.FailedTTL, BatchSize: s.batchSize,
			})
		}},
	}

	var (
		errs        []error
		onlyCancels = true
	)
	for _, op := range ops {
		n, err := drain(ctx, op.batch)
		*op.dst = n
		s.recordOperation(op.name, n, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", op.label, err))
			onlyCancels = onlyCancels && isContextErr(err)
			continue
		}
		if n > 0 {
			s.logger.InfoContext(ctx, "reaper operation applied", "operation", op.name, "count", n)
		}
	}
	report.Elapsed = time.Since(start)

	err := errors.Join(errs...)
	s.recordSweep(report, err)
	switch {
	case err == nil:
		return report, nil
	case onlyCancels:
		return report, context.Canceled
	default:
		return report, fmt.Errorf("retention sweep: %w", err)
	}
}

// drain repeats a batched operation until a batch affects nothing.
func drain(ctx context.Context, batch func(context.Context) (int64, error)) (int64, error) {
	var total int64
	for {
		n, err := batch(ctx)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func (s *ReaperService) recordOperation(name string, n int64, err error) {
	if s.metrics == nil || isContextErr(err) {
		return
	}
	tags := map[string]string{"operation": name, "outcome": outcome(n, err)}
	if err != nil {
		tags["error_class"] = obserrors.Classify(err)
		s.metrics.Count(MetricReaperJobs, 0, tags)
		return
	}
	s.metrics.Count(MetricReaperJobs, n, tags)
}

func (s *ReaperService) recordSweep(report SweepReport, err error) {
	if s.metrics == nil {
		return
	}
	tags := map[string]string{"outcome": outcome(report.Total(), err)}
	s.metrics.Count(MetricReaperSweeps, 1, tags)
	s.metrics.Timing(MetricReaperSweepDuration, report.Elapsed, metrics.CloneTags(tags))
	if err == nil {
		s.metrics.Gauge(MetricReaperLastSuccess, float64(time.Now().Unix()), nil)
	}
}

func outcome(n int64, err error) string {
	switch {
	case err != nil:
		return metrics.OutcomeFailed
	case n == 0:
		return metrics.OutcomeSkipped
	default:
		return metrics.OutcomeOK
	}
}

func (s *ReaperService) logSweepError(ctx context.Context, err error) {
	if isContextErr(err) {
		s.logger.DebugContext(ctx, "reaper sweep interrupted", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, "reaper sweep failed", "error", err)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// stopReason maps a plain cancel to a clean exit and keeps deadline errors.
func stopReason(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
