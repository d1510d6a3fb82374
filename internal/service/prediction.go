package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/rohittupe/prediction-service/internal/core"
	"github.com/rohittupe/prediction-service/internal/domain/model"
	apperrors "github.com/rohittupe/prediction-service/internal/errors"
)

// Client-facing messages.
const (
	MessageJobNotFound    = "Job ID not found"
	MessageResultNotReady = "Result not ready"
)

// PredictionServiceOptions groups dependencies for PredictionService.
type PredictionServiceOptions struct {
	Store     core.JobStore     // Required: job store
	Scheduler core.JobScheduler // Required: runs predictions off the request path
	Predictor core.Predictor    // Required: used by PredictNow
	Logger    *slog.Logger      // Optional: structured logger
}

// SubmitResult is returned by Submit. It never carries a prediction result.
type SubmitResult struct {
	JobID string
	State model.JobState
}

// StatusResult is returned by Status.
type StatusResult struct {
	JobID string
	State model.JobState
}

// PredictionService coordinates job intake and retrieval.
//
// This service manages:
// - Shape validation before any job exists.
// - Creating a pending job and handing it to the scheduler.
// - Reading job state and results without waiting on the runner.
type PredictionService struct {
	store     core.JobStore
	scheduler core.JobScheduler
	predictor core.Predictor
	logger    *slog.Logger
}

// NewPredictionService constructs a new PredictionService.
func NewPredictionService(opts PredictionServiceOptions) (*PredictionService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Scheduler == nil {
		return nil, errors.New("JobScheduler is required")
	}
	if opts.Predictor == nil {
		return nil, errors.New("Predictor is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PredictionService{
		store:     opts.Store,
		scheduler: opts.Scheduler,
		predictor: opts.Predictor,
		logger:    logger.With("component", "prediction_service"),
	}, nil
}

// Submit validates the request shape, records a pending job and schedules it.
// It returns as soon as the job is scheduled.
func (s *PredictionService) Submit(ctx context.Context, req model.PredictionRequest) (SubmitResult, error) {
	if err := validateShape(req); err != nil {
		return SubmitResult{}, err
	}

	id, err := s.store.Create(ctx)
	if err != nil {
		return SubmitResult{}, storeError(err, "failed to create job")
	}

	s.scheduler.Schedule(id, req.Clone())
	s.logger.DebugContext(ctx, "prediction job submitted", "job_id", id, "member_id", req.MemberID)

	return SubmitResult{JobID: id, State: model.JobStatePending}, nil
}

// Status returns the current state of a job.
func (s *PredictionService) Status(ctx context.Context, id string) (StatusResult, error) {
	j, err := s.lookup(ctx, id)
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{JobID: j.ID, State: j.State}, nil
}

// Result returns the stored result of a completed job.
// Pending jobs yield a not-ready error and failed jobs yield a job-failed error carrying the stored reason.
func (s *PredictionService) Result(ctx context.Context, id string) (model.PredictionResult, error) {
	j, err := s.lookup(ctx, id)
	if err != nil {
		return model.PredictionResult{}, err
	}

	switch j.State {
	case model.JobStateCompleted:
		if j.Result == nil {
			return model.PredictionResult{}, apperrors.Internal("completed job has no result")
		}
		return *j.Result, nil
	case model.JobStateFailed:
		return model.PredictionResult{}, apperrors.JobFailed(j.ErrorMessage())
	default:
		return model.PredictionResult{}, apperrors.NotReady(MessageResultNotReady)
	}
}

// PredictNow computes a prediction inline without creating a job.
func (s *PredictionService) PredictNow(ctx context.Context, req model.PredictionRequest) (model.PredictionResult, error) {
	if err := validateShape(req); err != nil {
		return model.PredictionResult{}, err
	}

	res, err := s.predictor.Compute(ctx, req)
	if err == nil {
		return res, nil
	}
	if apperrors.GetCode(err) != "" {
		return model.PredictionResult{}, err
	}
	s.logger.WarnContext(ctx, "inline prediction failed", "member_id", req.MemberID, "error", err)
	return model.PredictionResult{}, apperrors.Internal(err.Error())
}

func (s *PredictionService) lookup(ctx context.Context, id string) (model.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Job{}, apperrors.NotFound(MessageJobNotFound)
	}

	j, err := s.store.Get(ctx, id)
	switch {
	case err == nil:
		return j, nil
	case errors.Is(err, model.ErrJobNotFound):
		return model.Job{}, apperrors.NotFound(MessageJobNotFound)
	default:
		return model.Job{}, storeError(err, "failed to load job")
	}
}

func validateShape(req model.PredictionRequest) error {
	err := req.Validate()
	if err == nil {
		return nil
	}
	var fe *model.FieldError
	if errors.As(err, &fe) {
		return apperrors.BadRequestField(fe.Field, fe.Message)
	}
	return apperrors.BadRequest(err.Error())
}

// storeError keeps errors the store already classified and wraps the rest.
func storeError(err error, message string) error {
	switch {
	case apperrors.GetCode(err) != "":
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, message)
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, message)
	default:
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, message)
	}
}
