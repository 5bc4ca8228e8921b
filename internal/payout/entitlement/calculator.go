// Package entitlement computes a partner's net payable balance.
package entitlement

import (
	"context"
	"fmt"
	"math"

	"marquee/internal/payout/ports"
	dErrors "marquee/pkg/domain-errors"
)

type Calculator struct {
	history              ports.HistoryStore
	shareFraction        float64
	minDisbursementCents int64
}

func New(history ports.HistoryStore, shareFraction float64, minDisbursementCents int64) (*Calculator, error) {
	if history == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if shareFraction <= 0 || shareFraction > 1 {
		return nil, fmt.Errorf("share fraction must be in (0, 1], got %v", shareFraction)
	}
	if minDisbursementCents < 0 {
		return nil, fmt.Errorf("minimum disbursement must be non-negative, got %d", minDisbursementCents)
	}
	return &Calculator{
		history:              history,
		shareFraction:        shareFraction,
		minDisbursementCents: minDisbursementCents,
	}, nil
}

// ComputeEligible nets prior disbursements out of the recipient's revenue
// share. entitlement = round(gross * fraction); eligible = entitlement - paid.
// The computation is a pure read: two calls with no intervening payout return
// the same result.
func (c *Calculator) ComputeEligible(ctx context.Context, grossCents int64, recipient string) (int64, error) {
	entitlement := int64(math.Round(float64(grossCents) * c.shareFraction))

	paid, err := c.history.SumByRecipient(ctx, recipient)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sum prior payouts")
	}

	eligible := entitlement - paid
	if eligible < c.minDisbursementCents {
		return 0, dErrors.New(dErrors.CodeInsufficientBalance,
			fmt.Sprintf("eligible balance %d cents is below the %d cent minimum", eligible, c.minDisbursementCents))
	}
	return eligible, nil
}
