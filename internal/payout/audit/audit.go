// Package audit owns every write to the payout history and the forensic audit
// log. No other component creates those entries directly.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"marquee/internal/payout/models"
	"marquee/internal/payout/ports"
	dErrors "marquee/pkg/domain-errors"
	"marquee/pkg/platform/sentinel"
)

type Service struct {
	history ports.HistoryStore
	store   ports.AuditStore
	alerts  ports.AlertPublisher
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAlertPublisher(alerts ports.AlertPublisher) Option {
	return func(s *Service) {
		s.alerts = alerts
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(history ports.HistoryStore, store ports.AuditStore, opts ...Option) (*Service, error) {
	if history == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}

	svc := &Service{
		history: history,
		store:   store,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// PriorDisbursement reports whether a payout already landed for this
// authorization. The orchestrator consults it before every dispatch so a
// retry after an unknown outcome can never mint a second transfer.
func (s *Service) PriorDisbursement(ctx context.Context, keyID string) (*models.PayoutHistoryEntry, bool, error) {
	entry, err := s.history.FindByKeyID(ctx, keyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check payout history")
	}
	return entry, true, nil
}

// RecordDisbursement appends the history entry and its audit entry. The
// caller runs it inside the commit transaction that also consumes the key;
// all three writes land or none do.
func (s *Service) RecordDisbursement(ctx context.Context, key *models.AuthorizationKey, result *models.TransferResult, actorRole string) error {
	now := s.now().UTC()

	entry := &models.PayoutHistoryEntry{
		ID:             uuid.NewString(),
		Recipient:      key.Partner,
		AmountCents:    result.AmountCents,
		Status:         result.Status,
		ProcessedAt:    now,
		Method:         "processor_transfer",
		Kind:           key.Kind,
		KeyID:          key.KeyID,
		TransferID:     result.TransferID,
		IdempotencyKey: result.IdempotencyKey,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		return fmt.Errorf("append payout history: %w", err)
	}

	logEntry := &models.AuditLogEntry{
		ID:        uuid.NewString(),
		ActorRole: actorRole,
		Action:    models.ActionPayoutDisbursed,
		Detail: fmt.Sprintf("disbursed %d cents to %q (transfer %s, key %s)",
			result.AmountCents, key.Partner, result.TransferID, key.KeyID),
		Severity:  models.SeverityInfo,
		Timestamp: now,
	}
	if err := s.store.Append(ctx, logEntry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// RecordKeyIssued logs key issuance for traceability. Best effort: the key is
// already live, so a failed audit write is logged, not surfaced.
func (s *Service) RecordKeyIssued(ctx context.Context, key *models.AuthorizationKey, actorRole string) {
	entry := &models.AuditLogEntry{
		ID:        uuid.NewString(),
		ActorRole: actorRole,
		Action:    models.ActionKeyIssued,
		Detail:    fmt.Sprintf("issued %s key %s for %q", key.Kind, key.KeyID, key.Partner),
		Severity:  models.SeverityInfo,
		Timestamp: s.now().UTC(),
	}
	if err := s.store.Append(ctx, entry); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to audit key issuance",
			"key_id", key.KeyID,
			"error", err,
		)
	}
}

// RecordCritical persists a reconciliation alert on channels independent of
// the failing request: a direct audit append outside any transaction, plus
// the alert publisher when configured. It never returns an error; every
// failure here is logged and the caller's CRITICAL error stands on its own.
func (s *Service) RecordCritical(ctx context.Context, action, detail string) {
	entry := &models.AuditLogEntry{
		ID:        uuid.NewString(),
		ActorRole: "system",
		Action:    action,
		Detail:    detail,
		Severity:  models.SeverityCritical,
		Timestamp: s.now().UTC(),
	}

	if err := s.store.Append(ctx, entry); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to persist critical audit entry",
			"action", action,
			"detail", detail,
			"error", err,
		)
	}

	if s.alerts != nil {
		if err := s.alerts.Publish(ctx, entry); err != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to publish reconciliation alert",
				"action", action,
				"error", err,
			)
		}
	}
}

// History is the read-only payout history projection.
func (s *Service) History(ctx context.Context, recipient string) ([]*models.PayoutHistoryEntry, error) {
	entries, err := s.history.ListByRecipient(ctx, recipient)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list payout history")
	}
	return entries, nil
}

// RecentAudit returns the newest audit entries for the admin console.
func (s *Service) RecentAudit(ctx context.Context, limit int) ([]*models.AuditLogEntry, error) {
	entries, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit entries")
	}
	return entries, nil
}
