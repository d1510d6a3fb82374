// Package jobrunner executes scheduled prediction jobs off the request path.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rohittupe/prediction-service/internal/core"
	"github.com/rohittupe/prediction-service/internal/domain/model"
	apperrors "github.com/rohittupe/prediction-service/internal/errors"
	obserrors "github.com/rohittupe/prediction-service/internal/observability/errors"
	"github.com/rohittupe/prediction-service/internal/observability/metrics"
	"github.com/rohittupe/prediction-service/internal/observability/notify"
	"github.com/rohittupe/prediction-service/internal/observability/statsd"
	"github.com/rohittupe/prediction-service/internal/service/failurenotifier"
)

const defaultStoreTimeout = 5 * time.Second

// Failure messages recorded on jobs the runner could not execute.
const (
	MessagePanic        = "internal error during prediction"
	MessageShuttingDown = "service shutting down before prediction started"
)

// ErrRunnerClosed is returned by Shutdown when called more than once.
var ErrRunnerClosed = errors.New("job runner already shut down")

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Store     core.JobStore
	Predictor core.Predictor
	Logger    *slog.Logger

	// MaxConcurrency bounds how many predictions run at once; 0 means unbounded.
	// The bound is applied inside each job goroutine, so Schedule never waits on it.
	MaxConcurrency int
	// StoreTimeout bounds each Complete/Fail call; defaults to 5s.
	StoreTimeout time.Duration

	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// Runner runs each scheduled job in its own goroutine and records exactly one terminal transition.
type Runner struct {
	store        core.JobStore
	predictor    core.Predictor
	logger       *slog.Logger
	sem          *semaphore.Weighted
	storeTimeout time.Duration
	metrics      statsd.Sink
	notifier     *failurenotifier.Service

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

var _ core.JobScheduler = (*Runner)(nil)

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Store == nil {
		return nil, errors.New("job store is required")
	}
	if opts.Predictor == nil {
		return nil, errors.New("predictor is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}

	r := &Runner{
		store:        opts.Store,
		predictor:    opts.Predictor,
		logger:       logger.With("component", "job_runner"),
		storeTimeout: timeout,
		metrics:      opts.Metrics,
		notifier:     opts.FailureNotifier,
	}
	if opts.MaxConcurrency > 0 {
		r.sem = semaphore.NewWeighted(int64(opts.MaxConcurrency))
	}
	return r, nil
}

// Schedule starts the prediction for jobID in a new goroutine and returns immediately.
// After Shutdown, the job is failed in the background instead of run so it never
// stays pending. Those failures are not sent to the failure notifier.
func (r *Runner) Schedule(jobID string, req model.PredictionRequest) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("job scheduled after shutdown", "job_id", jobID)
		go r.reject(jobID, time.Now())
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	metrics.RecordJob(r.metrics, metrics.JobEvent{
		Stage:   metrics.StageScheduled,
		Outcome: metrics.OutcomeOK,
	})
	go r.execute(jobID, req.Clone())
}

// Shutdown stops accepting new work and waits for in-flight jobs to finish or ctx to end.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.InfoContext(ctx, "job runner drained")
		return nil
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "job runner shutdown timed out", "in_flight", r.inFlight.Load())
		return fmt.Errorf("drain job runner: %w", ctx.Err())
	}
}

// Accepting reports whether Schedule still runs new jobs.
func (r *Runner) Accepting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

// InFlight returns the number of jobs scheduled but not yet finished.
func (r *Runner) InFlight() int64 {
	return r.inFlight.Load()
}

func (r *Runner) execute(jobID string, req model.PredictionRequest) {
	defer r.wg.Done()
	start := time.Now()

	r.trackInFlight(1)
	defer r.trackInFlight(-1)

	result, err := r.predict(jobID, req)
	if err != nil {
		r.fail(jobID, req, err, start)
		return
	}
	r.complete(jobID, result, start)
}

// predict holds a concurrency slot for the prediction only. Store writes and
// failure notifications run after the slot is released.
func (r *Runner) predict(jobID string, req model.PredictionRequest) (model.PredictionResult, error) {
	if r.sem == nil {
		return r.compute(jobID, req)
	}
	// Background never cancels, so Acquire only returns once a slot frees.
	_ = r.sem.Acquire(context.Background(), 1)
	defer r.sem.Release(1)
	return r.compute(jobID, req)
}

// compute calls the predictor and converts a panic into an error.
func (r *Runner) compute(jobID string, req model.PredictionRequest) (res model.PredictionResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("prediction panicked",
				"job_id", jobID,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			res = model.PredictionResult{}
			err = &panicError{value: rec}
		}
	}()
	return r.predictor.Compute(context.Background(), req)
}

func (r *Runner) complete(jobID string, result model.PredictionResult, start time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), r.storeTimeout)
	defer cancel()

	err := r.store.Complete(ctx, jobID, result)
	if err != nil {
		r.logTransitionError(ctx, "complete job error", jobID, err)
	}
	r.emit(metrics.StageCompleted, start, err)
}

func (r *Runner) fail(jobID string, req model.PredictionRequest, cause error, start time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), r.storeTimeout)
	defer cancel()

	msg := failureMessage(cause)
	err := r.store.Fail(ctx, jobID, msg)
	if err != nil {
		r.logTransitionError(ctx, "fail job error", jobID, err, "original_error", cause)
	} else {
		r.logger.InfoContext(ctx, "prediction job failed", "job_id", jobID, "error", msg)
	}
	r.emit(metrics.StageFailed, start, err)
	if err == nil {
		r.notify(ctx, jobID, req, msg, cause)
	}
}

// reject fails a job scheduled after Shutdown.
func (r *Runner) reject(jobID string, start time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), r.storeTimeout)
	defer cancel()

	err := r.store.Fail(ctx, jobID, MessageShuttingDown)
	if err != nil {
		r.logTransitionError(ctx, "fail job error", jobID, err)
	}
	r.emit(metrics.StageFailed, start, err)
}

func (r *Runner) logTransitionError(ctx context.Context, msg, jobID string, err error, args ...any) {
	args = append([]any{"job_id", jobID, "error", err}, args...)
	if errors.Is(err, model.ErrJobAlreadyTerminal) {
		r.logger.WarnContext(ctx, msg, args...)
		return
	}
	r.logger.ErrorContext(ctx, msg, args...)
}

func (r *Runner) emit(stage string, start time.Time, err error) {
	metrics.RecordJob(r.metrics, metrics.JobEvent{
		Stage:   stage,
		Outcome: metrics.OutcomeOf(err),
		Elapsed: time.Since(start),
		Cause:   err,
	})
}

func (r *Runner) trackInFlight(delta int64) {
	n := r.inFlight.Add(delta)
	if r.metrics != nil {
		r.metrics.Gauge(metrics.MetricJobsInFlight, float64(n), nil)
	}
}

func (r *Runner) notify(ctx context.Context, jobID string, req model.PredictionRequest, msg string, cause error) {
	severity := notify.SeverityCritical
	if apperrors.IsValidation(cause) {
		severity = notify.SeverityWarning
	}
	if !r.notifier.Accepts(severity) {
		return
	}
	r.notifier.Notify(ctx, notify.JobFailure{
		JobID:    jobID,
		MemberID: req.MemberID,
		Reason:   msg,
		Class:    obserrors.Classify(cause),
		Severity: severity,
		FailedAt: time.Now().UTC(),
		Source:   "job_runner",
	})
}

// failureMessage returns the text stored on a failed job.
func failureMessage(err error) string {
	var pe *panicError
	if errors.As(err, &pe) {
		return MessagePanic
	}
	if msg := apperrors.GetMessage(err); msg != "" {
		return msg
	}
	return "prediction failed"
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
