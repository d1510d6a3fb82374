// Package model defines the core data types shared by the prediction job system.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobState represents the lifecycle state of a prediction job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobState string

const (
	// JobStatePending indicates the job was accepted and its prediction has not finished.
	JobStatePending JobState = "pending"
	// JobStateCompleted indicates the prediction finished and a result is stored.
	JobStateCompleted JobState = "completed"
	// JobStateFailed indicates the prediction failed and an error message is stored.
	JobStateFailed JobState = "failed"
)

// StatusProcessing is the client-facing status reported for pending jobs.
const StatusProcessing = "processing"

// Job store sentinels.
var (
	// ErrJobNotFound is returned when a job id is unknown (or was evicted).
	ErrJobNotFound = errors.New("job not found")
	// ErrJobAlreadyTerminal is returned when completing or failing a job that already finished.
	ErrJobAlreadyTerminal = errors.New("job already in a terminal state")
	// ErrInvalidJobState is returned when a persisted state string is not recognized.
	ErrInvalidJobState = errors.New("invalid job state")
)

// Valid returns true if the JobState is known.
func (s JobState) Valid() bool {
	return s == JobStatePending || s == JobStateCompleted || s == JobStateFailed
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Status returns the client-facing status string: "processing", "completed" or "failed".
func (s JobState) Status() string {
	if s == JobStatePending {
		return StatusProcessing
	}
	return string(s)
}

// UnmarshalText implements encoding.TextUnmarshaler for JobState.
func (s *JobState) UnmarshalText(text []byte) error {
	v := JobState(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidJobState, string(text))
	}
	*s = v
	return nil
}

// Job is a unit of asynchronous prediction work.
// Result is set iff State is completed; Error is set iff State is failed.
type Job struct {
	ID          string            `json:"job_id"`
	State       JobState          `json:"state"`
	Result      *PredictionResult `json:"result,omitempty"`
	Error       *string           `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// NewPendingJob builds a pending job with the given identity and creation time.
func NewPendingJob(id string, createdAt time.Time) Job {
	return Job{ID: id, State: JobStatePending, CreatedAt: createdAt}
}

// Clone returns a deep copy so callers never share pointers with a store's internal state.
func (j Job) Clone() Job {
	out := j
	if j.Result != nil {
		r := *j.Result
		out.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	if j.CompletedAt != nil {
		c := *j.CompletedAt
		out.CompletedAt = &c
	}
	return out
}

// ErrorMessage returns the stored failure reason, or "" if none.
func (j Job) ErrorMessage() string {
	if j.Error == nil {
		return ""
	}
	return *j.Error
}

// Consistent reports whether the job satisfies the result/error/state invariant.
func (j Job) Consistent() bool {
	switch j.State {
	case JobStatePending:
		return j.Result == nil && j.Error == nil
	case JobStateCompleted:
		return j.Result != nil && j.Error == nil && j.CompletedAt != nil
	case JobStateFailed:
		return j.Result == nil && j.Error != nil && j.CompletedAt != nil
	default:
		return false
	}
}
