package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rohittupe/prediction-service/internal/core"
	"github.com/rohittupe/prediction-service/internal/data/pgxutil"
	"github.com/rohittupe/prediction-service/internal/domain/model"
)

// Advisory locks serializing reaper passes across instances sharing one database.
var (
	lockFailPending   = pgxutil.LockKey{Namespace: 2100, ID: 1}
	lockDeleteExpired = pgxutil.LockKey{Namespace: 2100, ID: 2}
)

const failStalePendingSQL = `
UPDATE prediction_jobs
SET state = 'failed', error = $1, completed_at = $2
WHERE id IN (
	SELECT id FROM prediction_jobs
	WHERE state = 'pending' AND created_at < $3
	ORDER BY created_at
	LIMIT $4
	FOR UPDATE SKIP LOCKED
)`

const deleteExpiredSQL = `
DELETE FROM prediction_jobs
WHERE id IN (
	SELECT id FROM prediction_jobs
	WHERE state = $1 AND completed_at <= $2
	ORDER BY completed_at
	LIMIT $3
)`

// FailStalePending marks up to params.BatchSize pending jobs older than params.MaxAge as
// failed. It returns 0 without waiting when another instance is running the same step.
func (s *PostgresJobStore) FailStalePending(ctx context.Context, params core.FailStalePendingParams) (int64, error) {
	if params.BatchSize <= 0 {
		return 0, fmt.Errorf("batch size must be greater than zero")
	}
	now := s.clock.Now().UTC()
	return s.lockedExec(ctx, lockFailPending, failStalePendingSQL,
		params.Message, now, now.Add(-params.MaxAge), params.BatchSize)
}

// DeleteExpired deletes up to params.BatchSize jobs in params.State whose completion is
// older than params.OlderThan.
func (s *PostgresJobStore) DeleteExpired(ctx context.Context, params core.DeleteExpiredParams) (int64, error) {
	if !params.State.IsTerminal() {
		return 0, fmt.Errorf("%w: %s", model.ErrInvalidJobState, params.State)
	}
	if params.BatchSize <= 0 {
		return 0, fmt.Errorf("batch size must be greater than zero")
	}
	cutoff := s.clock.Now().UTC().Add(-params.OlderThan)
	return s.lockedExec(ctx, lockDeleteExpired, deleteExpiredSQL,
		string(params.State), cutoff, params.BatchSize)
}

func (s *PostgresJobStore) lockedExec(ctx context.Context, key pgxutil.LockKey, query string, args ...any) (int64, error) {
	var affected int64
	_, err := pgxutil.WithXactLock(ctx, s.db, key, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reaper query: %w", err)
	}
	return affected, nil
}
