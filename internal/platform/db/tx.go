package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Transactor runs fn inside a single database transaction. Repositories see
// the transaction through the context passed to fn.
type Transactor interface {
	WithinTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context) error) error
}

// maxTxAttempts bounds retries of transactions aborted by a serialization
// failure or deadlock.
const maxTxAttempts = 3

type pgTransactor struct {
	pool *pgxpool.Pool
}

func NewTransactor(pool *pgxpool.Pool) Transactor {
	return &pgTransactor{pool: pool}
}

type beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

func (t *pgTransactor) WithinTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context) error) error {
	// Nested calls join the outer transaction.
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	var b beginner = t.pool
	if c := ConnFromContext(ctx); c != nil {
		b = c
	}

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = runTx(ctx, b, opts, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		zerolog.Ctx(ctx).Debug().Err(err).Int("attempt", attempt).Msg("retrying transaction")
	}
	return err
}

func runTx(ctx context.Context, b beginner, opts pgx.TxOptions, fn func(ctx context.Context) error) (err error) {
	tx, err := b.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				zerolog.Ctx(ctx).Warn().Err(rbErr).Msg("rollback failed")
			}
		}
	}()

	if err = fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
