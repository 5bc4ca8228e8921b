// Package domainerrors provides coded errors that carry enough context for
// transport layers to map them to responses without string matching.
// Stores return sentinel errors (pkg/platform/sentinel); services translate
// those facts into coded domain errors at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. Codes are stable identifiers that double as
// the machine-readable "kind" in API error responses.
type Code string

const (
	// Request/validation failures. Safe to retry after correcting input.
	CodeBadRequest   Code = "bad_request"
	CodeValidation   Code = "validation_failed"
	CodeUnauthorized Code = "unauthorized"

	// Authorization key failures. Local, no external effect.
	CodeKeyNotFound      Code = "authorization_key_not_found"
	CodeIdentityMismatch Code = "identity_mismatch"

	// Revenue aggregation failed (ledger unreachable, partial page fetch).
	// Idempotent read, safe to retry in full.
	CodeAggregation Code = "aggregation_failed"

	// Business-rule rejection: nothing disbursable. Terminal for the request.
	CodeInsufficientBalance Code = "insufficient_balance"

	// The payments processor rejected the transfer. Detail is surfaced
	// verbatim for manual review; never auto-retried under the same
	// idempotency key.
	CodeDispatch Code = "dispatch_rejected"

	// Funds left the building but the local commit failed. CRITICAL.
	CodeCommitInconsistency Code = "commit_inconsistency"

	CodeNotFound Code = "not_found"
	CodeConflict Code = "conflict"
	CodeTimeout  Code = "timeout"
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error. Use New/Wrap rather than constructing
// directly so the cause chain stays intact.
type Error struct {
	code  Code
	msg   string
	cause error
}

func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

func Wrap(err error, code Code, msg string) *Error {
	return &Error{code: code, msg: msg, cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Code() Code { return e.code }

// Message returns the message without the cause chain. Transport layers use
// this so internal causes never leak into responses.
func (e *Error) Message() string { return e.msg }

// Is reports whether any error in the chain carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	for e := err; e != nil; {
		if errors.As(e, &de) {
			if de.code == code {
				return true
			}
			e = de.cause
			continue
		}
		return false
	}
	return false
}

// Has is an alias for Is, kept for call sites that read better with it.
func Has(err error, code Code) bool { return Is(err, code) }

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error is not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}
