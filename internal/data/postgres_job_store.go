package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rohittupe/prediction-service/internal/core"
	"github.com/rohittupe/prediction-service/internal/domain/job"
	"github.com/rohittupe/prediction-service/internal/domain/model"
	apperrors "github.com/rohittupe/prediction-service/internal/errors"
)

// PostgresJobStoreOptions configures a PostgresJobStore.
type PostgresJobStoreOptions struct {
	DB        *sql.DB
	Retention job.RetentionProvider
	Clock     Clock
	NewID     func() string
}

// PostgresJobStore keeps jobs in the prediction_jobs table.
// Transitions are single conditional UPDATEs, so the state check and the write are atomic.
type PostgresJobStore struct {
	db        *sql.DB
	retention job.RetentionProvider
	clock     Clock
	newID     func() string
}

var (
	_ core.JobStore  = (*PostgresJobStore)(nil)
	_ core.JobReaper = (*PostgresJobStore)(nil)
)

// NewPostgresJobStore constructs a PostgresJobStore.
func NewPostgresJobStore(opts PostgresJobStoreOptions) (*PostgresJobStore, error) {
	if opts.DB == nil {
		return nil, ErrDBMissing
	}
	if opts.Retention == nil {
		return nil, ErrRetentionRequired
	}
	s := &PostgresJobStore{
		db:        opts.DB,
		retention: opts.Retention,
		clock:     opts.Clock,
		newID:     opts.NewID,
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// Create inserts a pending row, retrying with a fresh id on a primary key collision.
func (s *PostgresJobStore) Create(ctx context.Context) (string, error) {
	now := s.clock.Now().UTC()
	for range maxCreateAttempts {
		id := s.newID()
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO prediction_jobs (id, state, created_at) VALUES ($1, 'pending', $2)`,
			id, now)
		if err == nil {
			return id, nil
		}
		if apperrors.IsUniqueViolation(err) {
			continue
		}
		return "", fmt.Errorf("insert job: %w", apperrors.MapDBError(err))
	}
	return "", fmt.Errorf("insert job: no free id after %d attempts", maxCreateAttempts)
}

// Complete transitions a pending job to completed.
func (s *PostgresJobStore) Complete(ctx context.Context, id string, result model.PredictionResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return s.transition(ctx, id, `
		WITH updated AS (
			UPDATE prediction_jobs
			SET state = 'completed', result = $2::jsonb, completed_at = $3
			WHERE id = $1 AND state = 'pending'
			RETURNING 1
		)
		SELECT EXISTS (SELECT 1 FROM updated), EXISTS (SELECT 1 FROM prediction_jobs WHERE id = $1)
	`, string(payload))
}

// Fail transitions a pending job to failed.
func (s *PostgresJobStore) Fail(ctx context.Context, id, message string) error {
	return s.transition(ctx, id, `
		WITH updated AS (
			UPDATE prediction_jobs
			SET state = 'failed', error = $2, completed_at = $3
			WHERE id = $1 AND state = 'pending'
			RETURNING 1
		)
		SELECT EXISTS (SELECT 1 FROM updated), EXISTS (SELECT 1 FROM prediction_jobs WHERE id = $1)
	`, message)
}

func (s *PostgresJobStore) transition(ctx context.Context, id, query, outcome string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.ErrJobNotFound
	}
	var updated, exists bool
	if err := s.db.QueryRowContext(ctx, query, id, outcome, s.clock.Now().UTC()).Scan(&updated, &exists); err != nil {
		return fmt.Errorf("transition job: %w", apperrors.MapDBError(err))
	}
	switch {
	case updated:
		return nil
	case exists:
		return model.ErrJobAlreadyTerminal
	default:
		return model.ErrJobNotFound
	}
}

// Get returns the job with the given id. Expired terminal jobs are deleted and reported as not found.
func (s *PostgresJobStore) Get(ctx context.Context, id string) (model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Job{}, model.ErrJobNotFound
	}

	var (
		j           model.Job
		state       string
		result      []byte
		errMsg      sql.NullString
		completedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, state, result, error, created_at, completed_at
		FROM prediction_jobs
		WHERE id = $1
	`, id).Scan(&j.ID, &state, &result, &errMsg, &j.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, model.ErrJobNotFound
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("get job: %w", apperrors.MapDBError(err))
	}

	if err := j.State.UnmarshalText([]byte(state)); err != nil {
		return model.Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	j.CreatedAt = j.CreatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		j.CompletedAt = &t
	}
	if errMsg.Valid {
		msg := errMsg.String
		j.Error = &msg
	}
	if len(result) > 0 {
		var r model.PredictionResult
		if err := json.Unmarshal(result, &r); err != nil {
			return model.Job{}, fmt.Errorf("decode job %s result: %w", id, err)
		}
		j.Result = &r
	}

	if s.retention.Current().Expired(j, s.clock.Now()) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM prediction_jobs WHERE id = $1`, id); err != nil {
			return model.Job{}, fmt.Errorf("evict job: %w", apperrors.MapDBError(err))
		}
		return model.Job{}, model.ErrJobNotFound
	}
	return j, nil
}
