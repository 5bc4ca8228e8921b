// Package models holds the payout domain entities. Amounts are minor currency
// units (cents) throughout; no floating-point money leaves this package.
package models

import "time"

// PayoutKind distinguishes individual filmmaker payouts from institutional
// (festival / event partner) payouts. Wire values are uppercase.
type PayoutKind string

const (
	KindIndividual    PayoutKind = "INDIVIDUAL"
	KindInstitutional PayoutKind = "INSTITUTIONAL"
)

func (k PayoutKind) IsValid() bool {
	switch k {
	case KindIndividual, KindInstitutional:
		return true
	default:
		return false
	}
}

// KeyStatus is the authorization key lifecycle. Active -> Consumed is the only
// transition and it is terminal; consumption is a row deletion, so Consumed
// never appears in storage, only in projections of historical entries.
type KeyStatus string

const (
	KeyStatusActive   KeyStatus = "active"
	KeyStatusConsumed KeyStatus = "consumed"
)

// AuthorizationKey is a one-time right to trigger a payout for one partner.
// The raw token is "<KeyID>.<secret>"; only the bcrypt hash of the secret is
// persisted, so a key can be verified but never reconstructed.
type AuthorizationKey struct {
	KeyID      string
	SecretHash string
	Partner    string
	Kind       PayoutKind
	Status     KeyStatus
	IssuedAt   time.Time
}

// PayoutHistoryEntry is the immutable record of a completed disbursement.
// KeyID and IdempotencyKey exist so a caller that timed out can prove whether
// its attempt landed before minting a new idempotency key.
type PayoutHistoryEntry struct {
	ID             string
	Recipient      string
	AmountCents    int64
	Status         string
	ProcessedAt    time.Time
	Method         string
	Kind           PayoutKind
	KeyID          string
	TransferID     string
	IdempotencyKey string
}

// AuditSeverity routes audit entries; critical entries flag commit
// inconsistencies for manual reconciliation.
type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "info"
	SeverityCritical AuditSeverity = "critical"
)

// AuditLogEntry records the mutation event itself, independent of the payout
// history, for forensic traceability.
type AuditLogEntry struct {
	ID        string
	ActorRole string
	Action    string
	Detail    string
	Severity  AuditSeverity
	Timestamp time.Time
}

// Audit action names.
const (
	ActionKeyIssued           = "authorization_key_issued"
	ActionPayoutDisbursed     = "payout_disbursed"
	ActionCommitInconsistency = "payout_commit_inconsistency"
)

// PaymentRecord is a read-only view of one external ledger transaction.
type PaymentRecord struct {
	ID          string
	AmountCents int64
	Memo        string
	CreatedAt   time.Time
}

// PaymentPage is one page of ledger results; empty NextCursor ends pagination.
type PaymentPage struct {
	Records    []PaymentRecord
	NextCursor string
}

// TransferResult is what the audit trail needs from a successful dispatch.
type TransferResult struct {
	TransferID     string
	Status         string
	IdempotencyKey string
	AmountCents    int64
	Destination    string
}
