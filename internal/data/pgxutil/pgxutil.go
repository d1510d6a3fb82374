// Package pgxutil holds transaction helpers for the Postgres job store.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LockKey identifies a two-part Postgres advisory lock.
type LockKey struct {
	Namespace int32
	ID        int32
}

// WithTx runs fn inside a transaction. fn's error triggers a rollback; otherwise the
// transaction commits.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// WithXactLock runs fn in a transaction that holds key for its lifetime. When another
// session holds the lock it returns false without running fn.
func WithXactLock(ctx context.Context, db *sql.DB, key LockKey, fn func(*sql.Tx) error) (bool, error) {
	var locked bool
	err := WithTx(ctx, db, nil, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			"SELECT pg_try_advisory_xact_lock($1, $2)", key.Namespace, key.ID,
		).Scan(&locked); err != nil {
			return fmt.Errorf("try advisory lock %d/%d: %w", key.Namespace, key.ID, err)
		}
		if !locked {
			return nil
		}
		return fn(tx)
	})
	return locked, err
}
