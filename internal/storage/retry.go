package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Multi-statement writes (dedup merges, escalations, oversight decisions,
// preset switches) retry this many times on a transient conflict.
const (
	txRetries   = 3
	txBaseDelay = 20 * time.Millisecond
)

// Postgres SQLSTATE codes the storage layer reacts to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// errRollback ends an inTx callback without committing and without
// reporting an error to the caller.
var errRollback = errors.New("storage: rollback")

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isTransient reports whether a transaction failed only because it lost a
// race with another one and can be run again.
func isTransient(err error) bool {
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

// inTx runs fn in a transaction and commits it. The whole transaction is
// run again, with jittered exponential backoff, when Postgres aborts it
// with a serialization failure or deadlock. fn must reset any state it
// captures, since it may run more than once.
func (db *DB) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	delay := txBaseDelay
	for attempt := 0; ; attempt++ {
		err := db.runTx(ctx, op, fn)
		if err == nil || !isTransient(err) || attempt == txRetries {
			return err
		}
		db.logger.Debug("storage: retrying transaction", "op", op, "attempt", attempt+1, "error", err)
		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
}

func (db *DB) runTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin %s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		if errors.Is(err, errRollback) {
			return nil
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit %s: %w", op, err)
	}
	return nil
}
