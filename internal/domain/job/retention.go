// Package job holds the job lifecycle policies shared by the stores and the reaper.
package job

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rohittupe/prediction-service/internal/domain/model"
)

// ErrInvalidRetention indicates a retention duration is not positive.
var ErrInvalidRetention = errors.New("retention durations must be positive")

// RetentionPolicy bounds how long jobs are kept.
// Terminal jobs are evicted once CompletedAt plus the TTL for their state has passed.
// Pending jobs older than PendingMaxAge are considered abandoned.
type RetentionPolicy struct {
	CompletedTTL  time.Duration `yaml:"completed_ttl"`
	FailedTTL     time.Duration `yaml:"failed_ttl"`
	PendingMaxAge time.Duration `yaml:"pending_max_age"`
}

// NewRetentionPolicy constructs a validated RetentionPolicy.
func NewRetentionPolicy(completedTTL, failedTTL, pendingMaxAge time.Duration) (RetentionPolicy, error) {
	p := RetentionPolicy{CompletedTTL: completedTTL, FailedTTL: failedTTL, PendingMaxAge: pendingMaxAge}
	if err := p.Validate(); err != nil {
		return RetentionPolicy{}, err
	}
	return p, nil
}

// Validate reports an error if any duration is not positive.
func (p RetentionPolicy) Validate() error {
	switch {
	case p.CompletedTTL <= 0:
		return fmt.Errorf("%w: completed_ttl=%s", ErrInvalidRetention, p.CompletedTTL)
	case p.FailedTTL <= 0:
		return fmt.Errorf("%w: failed_ttl=%s", ErrInvalidRetention, p.FailedTTL)
	case p.PendingMaxAge <= 0:
		return fmt.Errorf("%w: pending_max_age=%s", ErrInvalidRetention, p.PendingMaxAge)
	}
	return nil
}

// TTLFor returns the retention window for a terminal state, or 0 for pending.
func (p RetentionPolicy) TTLFor(state model.JobState) time.Duration {
	switch state {
	case model.JobStateCompleted:
		return p.CompletedTTL
	case model.JobStateFailed:
		return p.FailedTTL
	default:
		return 0
	}
}

// ExpiresAt returns when a terminal job becomes eligible for eviction.
// The second result is false for pending jobs.
func (p RetentionPolicy) ExpiresAt(j model.Job) (time.Time, bool) {
	if !j.State.IsTerminal() || j.CompletedAt == nil {
		return time.Time{}, false
	}
	return j.CompletedAt.Add(p.TTLFor(j.State)), true
}

// Expired reports whether a terminal job is past its retention window at now.
func (p RetentionPolicy) Expired(j model.Job, now time.Time) bool {
	at, ok := p.ExpiresAt(j)
	return ok && !now.Before(at)
}

// Stale reports whether a pending job has outlived PendingMaxAge at now.
func (p RetentionPolicy) Stale(j model.Job, now time.Time) bool {
	return j.State == model.JobStatePending && now.Sub(j.CreatedAt) > p.PendingMaxAge
}

// PendingKeyTTL is the upper bound a pending record may live in a store with native expiry.
// It covers the pending window plus the longest terminal window.
func (p RetentionPolicy) PendingKeyTTL() time.Duration {
	return p.PendingMaxAge + max(p.CompletedTTL, p.FailedTTL)
}

// RetentionProvider supplies the retention policy currently in force.
type RetentionProvider interface {
	Current() RetentionPolicy
}

// DynamicRetention holds a RetentionPolicy that can be swapped at runtime.
// Reads never block.
type DynamicRetention struct {
	p atomic.Pointer[RetentionPolicy]
}

// NewDynamicRetention constructs a DynamicRetention seeded with p.
func NewDynamicRetention(p RetentionPolicy) (*DynamicRetention, error) {
	d := &DynamicRetention{}
	if err := d.Update(p); err != nil {
		return nil, err
	}
	return d, nil
}

// Current returns the policy in force.
func (d *DynamicRetention) Current() RetentionPolicy {
	if d == nil {
		return RetentionPolicy{}
	}
	if p := d.p.Load(); p != nil {
		return *p
	}
	return RetentionPolicy{}
}

// Update replaces the policy after validating it. An invalid policy leaves the old one in place.
func (d *DynamicRetention) Update(p RetentionPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	d.p.Store(&p)
	return nil
}
