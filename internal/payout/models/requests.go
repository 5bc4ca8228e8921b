package models

import "time"

// ExecutePayoutRequest is the disbursement trigger body.
type ExecutePayoutRequest struct {
	AuthorizationToken string     `json:"authorizationToken"`
	ClaimedPartnerName string     `json:"claimedPartnerName"`
	Kind               PayoutKind `json:"kind"`
}

// IssueKeyRequest creates a new single-use authorization key.
type IssueKeyRequest struct {
	PartnerName string     `json:"partnerName"`
	Kind        PayoutKind `json:"kind"`
}

// ExecutePayoutResponse matches the admin console contract: errors carry the
// detail, success carries only the flag.
type ExecutePayoutResponse struct {
	Success bool `json:"success"`
}

// IssueKeyResponse returns the raw token exactly once.
type IssueKeyResponse struct {
	Token    string     `json:"token"`
	Partner  string     `json:"partner"`
	Kind     PayoutKind `json:"kind"`
	IssuedAt time.Time  `json:"issuedAt"`
}

// ActiveKeyResponse is the admin projection of an issued key. The secret hash
// never leaves the store layer.
type ActiveKeyResponse struct {
	KeyID    string     `json:"keyId"`
	Partner  string     `json:"partner"`
	Kind     PayoutKind `json:"kind"`
	Status   KeyStatus  `json:"status"`
	IssuedAt time.Time  `json:"issuedAt"`
}

// AuditEntryResponse is the admin view of one audit log entry.
type AuditEntryResponse struct {
	ID        string        `json:"id"`
	ActorRole string        `json:"actorRole"`
	Action    string        `json:"action"`
	Detail    string        `json:"detail"`
	Severity  AuditSeverity `json:"severity"`
	Timestamp time.Time     `json:"timestamp"`
}

// HistoryEntryResponse is the read-only payout history projection.
type HistoryEntryResponse struct {
	ID          string     `json:"id"`
	Recipient   string     `json:"recipient"`
	AmountCents int64      `json:"amountCents"`
	Status      string     `json:"status"`
	ProcessedAt time.Time  `json:"processedAt"`
	Method      string     `json:"method"`
	Kind        PayoutKind `json:"kind"`
	TransferID  string     `json:"transferId"`
}
