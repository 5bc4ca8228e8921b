package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "marquee/pkg/domain-errors"
	"marquee/pkg/platform/tx"
)

const defaultPayoutTxTimeout = 5 * time.Second

// payoutPostgresTx scopes the payout commit (key consumption, history entry,
// audit entry) to one database transaction. The function receives a context
// carrying the open *sql.Tx; stores join it via pkg/platform/tx.
type payoutPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newPayoutPostgresTx(db *sql.DB) *payoutPostgresTx {
	return &payoutPostgresTx{db: db}
}

func (t *payoutPostgresTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultPayoutTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dbTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, dbTx)); err != nil {
		return err
	}

	return dbTx.Commit()
}

// memoryTx is the no-database runner: memory stores are individually safe and
// have no cross-store transaction to join.
type memoryTx struct{}

func (memoryTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}
