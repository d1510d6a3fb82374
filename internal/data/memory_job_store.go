package data

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rohittupe/prediction-service/internal/core"
	"github.com/rohittupe/prediction-service/internal/domain/job"
	"github.com/rohittupe/prediction-service/internal/domain/model"
)

// MemoryJobStoreOptions configures a MemoryJobStore.
type MemoryJobStoreOptions struct {
	// Retention drives access-triggered eviction of expired terminal jobs. Required.
	Retention job.RetentionProvider
	// Clock defaults to SystemClock.
	Clock Clock
	// NewID defaults to uuid.NewString.
	NewID func() string
}

// MemoryJobStore keeps jobs in a process-local map guarded by a RWMutex.
// Each transition is applied under the write lock, so readers never observe a half-updated job.
type MemoryJobStore struct {
	retention job.RetentionProvider
	clock     Clock
	newID     func() string

	mu   sync.RWMutex
	jobs map[string]model.Job
}

var (
	_ core.JobStore  = (*MemoryJobStore)(nil)
	_ core.JobReaper = (*MemoryJobStore)(nil)
)

// NewMemoryJobStore constructs an empty in-memory store.
func NewMemoryJobStore(opts MemoryJobStoreOptions) (*MemoryJobStore, error) {
	if opts.Retention == nil {
		return nil, ErrRetentionRequired
	}
	s := &MemoryJobStore{
		retention: opts.Retention,
		clock:     opts.Clock,
		newID:     opts.NewID,
		jobs:      make(map[string]model.Job),
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// Create inserts a pending job under a fresh identity. It never fails.
func (s *MemoryJobStore) Create(_ context.Context) (string, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for {
		if _, taken := s.jobs[id]; !taken && id != "" {
			break
		}
		id = s.newID()
	}
	s.jobs[id] = model.NewPendingJob(id, now)
	return id, nil
}

// Complete transitions a pending job to completed.
func (s *MemoryJobStore) Complete(_ context.Context, id string, result model.PredictionResult) error {
	return s.transition(id, func(j *model.Job) {
		r := result
		j.State = model.JobStateCompleted
		j.Result = &r
	})
}

// Fail transitions a pending job to failed.
func (s *MemoryJobStore) Fail(_ context.Context, id, message string) error {
	return s.transition(id, func(j *model.Job) {
		msg := message
		j.State = model.JobStateFailed
		j.Error = &msg
	})
}

func (s *MemoryJobStore) transition(id string, apply func(*model.Job)) error {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return model.ErrJobNotFound
	}
	if j.State.IsTerminal() {
		return model.ErrJobAlreadyTerminal
	}
	apply(&j)
	j.CompletedAt = &now
	s.jobs[id] = j
	return nil
}

// Get returns a copy of the job. Terminal jobs past their retention window are evicted
// on access and reported as not found.
func (s *MemoryJobStore) Get(_ context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return model.Job{}, model.ErrJobNotFound
	}

	now := s.clock.Now()
	if s.retention.Current().Expired(j, now) {
		s.mu.Lock()
		if cur, still := s.jobs[id]; still && s.retention.Current().Expired(cur, now) {
			delete(s.jobs, id)
		}
		s.mu.Unlock()
		return model.Job{}, model.ErrJobNotFound
	}
	return j.Clone(), nil
}

// FailStalePending fails pending jobs created more than params.MaxAge ago.
func (s *MemoryJobStore) FailStalePending(ctx context.Context, params core.FailStalePendingParams) (int64, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, j := range s.jobs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if params.BatchSize > 0 && n >= int64(params.BatchSize) {
			break
		}
		if j.State != model.JobStatePending || now.Sub(j.CreatedAt) <= params.MaxAge {
			continue
		}
		msg := params.Message
		j.State = model.JobStateFailed
		j.Error = &msg
		j.CompletedAt = &now
		s.jobs[id] = j
		n++
	}
	return n, nil
}

// DeleteExpired removes jobs in params.State that finished at least params.OlderThan ago.
func (s *MemoryJobStore) DeleteExpired(ctx context.Context, params core.DeleteExpiredParams) (int64, error) {
	now := s.clock.Now()
	cutoff := now.Add(-params.OlderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, j := range s.jobs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if params.BatchSize > 0 && n >= int64(params.BatchSize) {
			break
		}
		if j.State != params.State || j.CompletedAt == nil || j.CompletedAt.After(cutoff) {
			continue
		}
		delete(s.jobs, id)
		n++
	}
	return n, nil
}

// Len returns the number of jobs currently held, including expired ones not yet evicted.
func (s *MemoryJobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
