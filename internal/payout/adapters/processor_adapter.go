// Package adapters bridges the processor client into the payout ports.
package adapters

import (
	"context"
	"time"

	"marquee/internal/payout/models"
	"marquee/internal/processor"
	"marquee/pkg/platform/circuit"
	"marquee/pkg/platform/sentinel"
)

// ProcessorAdapter implements ports.LedgerAPI and ports.TransferAPI on top of
// the processor HTTP client. Ledger reads run behind a circuit breaker: an
// aggregation walks many pages, and once the processor starts failing there is
// no point hammering it for the rest of the walk. Transfers are never guarded;
// a dispatch either runs or the caller decides, nothing in between.
type ProcessorAdapter struct {
	client  *processor.Client
	breaker *circuit.Breaker
}

type Option func(*ProcessorAdapter)

func WithBreaker(b *circuit.Breaker) Option {
	return func(a *ProcessorAdapter) {
		a.breaker = b
	}
}

func NewProcessorAdapter(client *processor.Client, opts ...Option) *ProcessorAdapter {
	a := &ProcessorAdapter{client: client}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *ProcessorAdapter) ListPayments(ctx context.Context, since time.Time, cursor string) (*models.PaymentPage, error) {
	if a.breaker != nil && a.breaker.IsOpen() {
		return nil, sentinel.ErrUnavailable
	}

	page, err := a.client.ListPayments(ctx, since, cursor)
	if err != nil {
		if a.breaker != nil {
			a.breaker.RecordFailure()
		}
		return nil, err
	}
	if a.breaker != nil {
		a.breaker.RecordSuccess()
	}

	out := &models.PaymentPage{NextCursor: page.NextCursor}
	for _, p := range page.Payments {
		out.Records = append(out.Records, models.PaymentRecord{
			ID:          p.ID,
			AmountCents: p.AmountCents,
			Memo:        p.Memo,
			CreatedAt:   p.CreatedAt,
		})
	}
	return out, nil
}

func (a *ProcessorAdapter) CreateTransfer(ctx context.Context, idempotencyKey, destinationID string, amountCents int64) (*models.TransferResult, error) {
	tr, err := a.client.CreateTransfer(ctx, idempotencyKey, destinationID, amountCents)
	if err != nil {
		return nil, err
	}
	return &models.TransferResult{
		TransferID: tr.ID,
		Status:     tr.Status,
	}, nil
}
