// Package notify delivers informational payout notifications. Delivery is
// fire-and-forget; a failed notification never affects the payout itself.
package notify

import (
	"context"
	"log/slog"
)

// LogNotifier records notifications in the structured log. It stands in for
// the email/webhook channel until finance picks a delivery target.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) PayoutCompleted(ctx context.Context, recipient string, amountCents int64, transferID string) {
	if n.logger == nil {
		return
	}
	n.logger.InfoContext(ctx, "payout completed",
		"recipient", recipient,
		"amount_cents", amountCents,
		"transfer_id", transferID,
	)
}
