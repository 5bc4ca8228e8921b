// Package ports defines shared interfaces for the payout module. Interfaces
// live here when consumed by more than one service to avoid duplication.
package ports

import (
	"context"
	"time"

	"marquee/internal/payout/models"
)

// KeyStore persists authorization keys. Implementations return sentinel
// errors (pkg/platform/sentinel); services translate them into domain errors.
type KeyStore interface {
	// Create persists a new ACTIVE key. ErrConflict on duplicate key ID.
	Create(ctx context.Context, key *models.AuthorizationKey) error

	// FindByID returns the key, or ErrNotFound if absent (including consumed
	// keys, which are deleted rows).
	FindByID(ctx context.Context, keyID string) (*models.AuthorizationKey, error)

	// Consume deletes the key. Returns ErrNotFound when the row is already
	// gone: that is the compare half of the compare-and-commit that prevents
	// a racing request from double-spending a key. Must only be called inside
	// the payout commit transaction.
	Consume(ctx context.Context, keyID string) error

	// ListActive returns all issued keys, newest first.
	ListActive(ctx context.Context) ([]*models.AuthorizationKey, error)
}

// HistoryStore persists the append-only payout history.
type HistoryStore interface {
	// Append writes one immutable history entry. ErrConflict if an entry for
	// the same key ID already exists.
	Append(ctx context.Context, entry *models.PayoutHistoryEntry) error

	// SumByRecipient returns total minor units ever disbursed to a recipient.
	SumByRecipient(ctx context.Context, recipient string) (int64, error)

	// ListByRecipient returns entries for one recipient, newest first. An
	// empty recipient returns everything.
	ListByRecipient(ctx context.Context, recipient string) ([]*models.PayoutHistoryEntry, error)

	// FindByKeyID reports whether a disbursement for this authorization
	// already landed; the idempotency guard consults it before any dispatch.
	FindByKeyID(ctx context.Context, keyID string) (*models.PayoutHistoryEntry, error)
}

// AuditStore persists the append-only forensic audit log.
type AuditStore interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
	ListRecent(ctx context.Context, limit int) ([]*models.AuditLogEntry, error)
}

// LedgerAPI is the external processor's transaction listing, one page at a
// time. Pagination is sequential; the cursor from page N is required for N+1.
type LedgerAPI interface {
	ListPayments(ctx context.Context, since time.Time, cursor string) (*models.PaymentPage, error)
}

// TransferAPI submits disbursements to the external processor.
type TransferAPI interface {
	CreateTransfer(ctx context.Context, idempotencyKey, destinationID string, amountCents int64) (*models.TransferResult, error)
}

// TxRunner scopes a function to one local transaction. Stores called with the
// returned context join that transaction via pkg/platform/tx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// RecipientLocker serializes disbursement per recipient so two concurrent
// requests cannot both read a stale paid total and over-pay.
type RecipientLocker interface {
	// Lock blocks until the recipient lock is held or ctx is done. The
	// returned function releases the lock.
	Lock(ctx context.Context, recipient string) (func(), error)
}

// AlertPublisher emits reconciliation alerts on a channel independent of the
// failing request so commit inconsistencies survive a lost response.
type AlertPublisher interface {
	Publish(ctx context.Context, entry *models.AuditLogEntry) error
}

// Notifier is the fire-and-forget email collaborator. Failures are logged and
// never affect a completed disbursement.
type Notifier interface {
	PayoutCompleted(ctx context.Context, recipient string, amountCents int64, transferID string)
}
