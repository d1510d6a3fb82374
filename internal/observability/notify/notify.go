// Package notify defines the contract between the job runner and outbound failure alerts.
package notify

import (
	"context"
	"time"
)

// Severity grades a job failure for routing.
type Severity string

const (
	// SeverityCritical marks failures the service caused (panics, store errors, simulated faults).
	SeverityCritical Severity = "critical"
	// SeverityWarning marks failures caused by the request itself, such as negative amounts.
	SeverityWarning Severity = "warning"
)

// JobFailure describes one prediction job that ended in the failed state.
type JobFailure struct {
	JobID    string
	MemberID string
	// Reason is the message stored on the job and returned by GET /result.
	Reason string
	// Class is a metric-safe error classification.
	Class    string
	Severity Severity
	FailedAt time.Time
	// Source names the component that observed the failure.
	Source string
}

// Sink delivers failure alerts somewhere outside the process.
type Sink interface {
	Notify(ctx context.Context, failure JobFailure) error
}

// Func lets a plain function act as a Sink.
type Func func(ctx context.Context, failure JobFailure) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, failure JobFailure) error {
	if f == nil {
		return nil
	}
	return f(ctx, failure)
}
