package core

import (
	"context"
	"time"

	"github.com/rohittupe/prediction-service/internal/domain/model"
)

// This file contains the port definitions (hexagonal architecture) between the
// prediction service, the job runner and the job stores.

// JobStore is the authoritative, concurrency-safe record of prediction jobs.
// Implementations hand out copies only; no caller may hold a mutable reference into the store.
type JobStore interface {
	// Create mints a fresh job identity and records it as pending.
	Create(ctx context.Context) (string, error)
	// Complete transitions a pending job to completed and stores its result.
	// It returns ErrJobNotFound for unknown ids and ErrJobAlreadyTerminal if the job already finished.
	Complete(ctx context.Context, id string, result model.PredictionResult) error
	// Fail transitions a pending job to failed and stores the failure reason.
	// It has the same guards as Complete.
	Fail(ctx context.Context, id, message string) error
	// Get returns a copy of the job, or ErrJobNotFound.
	Get(ctx context.Context, id string) (model.Job, error)
}

// FailStalePendingParams groups parameters for JobReaper.FailStalePending.
type FailStalePendingParams struct {
	MaxAge    time.Duration
	BatchSize int
	Message   string
}

// DeleteExpiredParams groups parameters for JobReaper.DeleteExpired.
type DeleteExpiredParams struct {
	State     model.JobState
	OlderThan time.Duration
	BatchSize int
}

// JobReaper is implemented by stores that support periodic retention cleanup.
type JobReaper interface {
	// FailStalePending fails up to BatchSize pending jobs created more than MaxAge ago.
	FailStalePending(ctx context.Context, params FailStalePendingParams) (int64, error)
	// DeleteExpired removes up to BatchSize jobs in State whose completion is older than OlderThan.
	DeleteExpired(ctx context.Context, params DeleteExpiredParams) (int64, error)
}

// Predictor computes a prediction result for a request.
type Predictor interface {
	Compute(ctx context.Context, req model.PredictionRequest) (model.PredictionResult, error)
}

// JobScheduler runs a prediction for a pending job off the request path.
// Schedule must return without waiting for the prediction.
type JobScheduler interface {
	Schedule(jobID string, req model.PredictionRequest)
}
