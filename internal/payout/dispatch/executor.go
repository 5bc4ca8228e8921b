// Package dispatch submits transfers to the external payments processor.
// The dispatch call is the only non-idempotent external effect in the payout
// path; everything around it is arranged so it runs at most once per
// idempotency key.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"marquee/internal/payout/models"
	"marquee/internal/payout/ports"
	"marquee/internal/processor"
	dErrors "marquee/pkg/domain-errors"
)

type Executor struct {
	api      ports.TransferAPI
	logger   *slog.Logger
	duration prometheus.Histogram
}

type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

func WithDurationMetric(h prometheus.Histogram) Option {
	return func(e *Executor) {
		e.duration = h
	}
}

func New(api ports.TransferAPI, opts ...Option) (*Executor, error) {
	if api == nil {
		return nil, fmt.Errorf("transfer API is required")
	}

	e := &Executor{api: api}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Dispatch submits one transfer under a freshly minted idempotency key and
// returns the processor's transfer record. A processor rejection surfaces as
// CodeDispatch with the processor's structured detail verbatim; no local
// state is touched on any path. Callers must not mint another idempotency key
// for the same logical payout until the payout history confirms this attempt
// did not land.
func (e *Executor) Dispatch(ctx context.Context, destination string, amountCents int64) (*models.TransferResult, error) {
	if destination == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "disbursement destination is required")
	}
	if amountCents <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "disbursement amount must be positive")
	}

	idempotencyKey := uuid.NewString()

	start := time.Now()
	result, err := e.api.CreateTransfer(ctx, idempotencyKey, destination, amountCents)
	if e.duration != nil {
		e.duration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		var apiErr *processor.APIError
		if errors.As(err, &apiErr) {
			return nil, dErrors.Wrap(err, dErrors.CodeDispatch,
				fmt.Sprintf("%s: %s", apiErr.Code, apiErr.Detail))
		}
		// Transport failure: the transfer may or may not have been accepted.
		// The caller must treat this as unknown, not failed.
		return nil, dErrors.Wrap(err, dErrors.CodeDispatch, "transfer submission failed with unknown outcome")
	}

	result.IdempotencyKey = idempotencyKey
	result.AmountCents = amountCents
	result.Destination = destination

	if e.logger != nil {
		e.logger.InfoContext(ctx, "transfer dispatched",
			"transfer_id", result.TransferID,
			"status", result.Status,
			"amount_cents", amountCents,
		)
	}

	return result, nil
}
