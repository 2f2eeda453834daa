// README: Serializable transaction runner with retry on serialization conflicts.
package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"courier/internal/retry"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"

	// ActiveStageConstraint guards one non-terminal progress stage per driver.
	ActiveStageConstraint = "driver_progress_stages_one_active"
)

// IsRetryable reports whether err means the transaction lost a race and can be
// replayed from the start.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return true
	case sqlStateUniqueViolation:
		return pgErr.ConstraintName == ActiveStageConstraint
	}
	return false
}

type Transactor struct {
	pool     *pgxpool.Pool
	attempts int
	backoff  time.Duration
}

func NewTransactor(pool *pgxpool.Pool, attempts int, backoff time.Duration) *Transactor {
	return &Transactor{pool: pool, attempts: attempts, backoff: backoff}
}

// Serializable runs fn in a SERIALIZABLE transaction, replaying it on
// serialization failures up to the configured attempt bound.
func (t *Transactor) Serializable(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	policy := retry.Policy{Attempts: t.attempts, Backoff: t.backoff, Retryable: IsRetryable}
	return retry.Do(ctx, policy, func(ctx context.Context) error {
		return t.once(ctx, fn)
	})
}

func (t *Transactor) once(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
