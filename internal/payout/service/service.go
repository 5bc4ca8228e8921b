// Package service orchestrates the disbursement pipeline: validate the
// authorization, aggregate revenue, net out prior payouts, dispatch the
// transfer, then commit key consumption and the audit trail atomically.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"marquee/internal/payout/audit"
	"marquee/internal/payout/dispatch"
	"marquee/internal/payout/entitlement"
	"marquee/internal/payout/keys"
	"marquee/internal/payout/ledger"
	"marquee/internal/payout/models"
	"marquee/internal/payout/ports"
	"marquee/internal/platform/metrics"
	dErrors "marquee/pkg/domain-errors"
)

// Deps are the required collaborators. Every field must be non-nil.
type Deps struct {
	Keys       *keys.Service
	Ledger     *ledger.Client
	Calculator *entitlement.Calculator
	Executor   *dispatch.Executor
	Audit      *audit.Service
	KeyStore   ports.KeyStore
	TxRunner   ports.TxRunner
	Locker     ports.RecipientLocker
}

type Service struct {
	deps     Deps
	notifier ports.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer

	defaultDestination string
	destinations       map[string]string
	revenueSince       time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNotifier(n ports.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithDestinations routes partners to onboarded processor recipients. Partners
// absent from the map fall back to the default destination.
func WithDestinations(defaultDestination string, overrides map[string]string) Option {
	return func(s *Service) {
		s.defaultDestination = defaultDestination
		s.destinations = overrides
	}
}

// WithRevenueSince bounds ledger aggregation to payments after the given time.
func WithRevenueSince(since time.Time) Option {
	return func(s *Service) {
		s.revenueSince = since
	}
}

func New(deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Keys == nil:
		return nil, fmt.Errorf("key service is required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("ledger client is required")
	case deps.Calculator == nil:
		return nil, fmt.Errorf("entitlement calculator is required")
	case deps.Executor == nil:
		return nil, fmt.Errorf("dispatch executor is required")
	case deps.Audit == nil:
		return nil, fmt.Errorf("audit service is required")
	case deps.KeyStore == nil:
		return nil, fmt.Errorf("key store is required")
	case deps.TxRunner == nil:
		return nil, fmt.Errorf("tx runner is required")
	case deps.Locker == nil:
		return nil, fmt.Errorf("recipient locker is required")
	}

	s := &Service{
		deps:   deps,
		tracer: otel.Tracer("marquee/payout"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ExecutePayout runs one disbursement end to end. The recipient lock is held
// for the whole pipeline so concurrent requests for the same partner observe
// each other's committed history. Local state changes only after the transfer
// is accepted; the commit transaction consumes the key, appends history, and
// appends the audit entry together or not at all.
func (s *Service) ExecutePayout(ctx context.Context, req models.ExecutePayoutRequest, actorRole string) error {
	ctx, span := s.tracer.Start(ctx, "payout.execute")
	defer span.End()

	if err := validateExecuteRequest(req); err != nil {
		s.countFailure(err)
		return err
	}
	partner := strings.TrimSpace(req.ClaimedPartnerName)
	span.SetAttributes(attribute.String("payout.partner", partner))

	unlock, err := s.deps.Locker.Lock(ctx, partner)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeTimeout, "could not acquire recipient lock")
		s.countFailure(err)
		return err
	}
	defer unlock()

	key, err := s.deps.Keys.ValidateAndBind(ctx, req.AuthorizationToken, partner)
	if err != nil {
		s.countFailure(err)
		return err
	}
	if key.Kind != req.Kind {
		err = dErrors.New(dErrors.CodeValidation, "payout kind does not match the authorization key")
		s.countFailure(err)
		return err
	}

	// A surviving history row for this key means an earlier attempt dispatched
	// and recorded; retrying must not mint a second transfer.
	if prior, found, err := s.deps.Audit.PriorDisbursement(ctx, key.KeyID); err != nil {
		s.countFailure(err)
		return err
	} else if found {
		err = dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("a payout for this authorization already completed (transfer %s)", prior.TransferID))
		s.countFailure(err)
		return err
	}

	gross, err := s.deps.Ledger.FetchClassifiedRevenue(ctx, s.revenueSince, key.Partner, key.Kind)
	if err != nil {
		s.countFailure(err)
		return err
	}

	eligible, err := s.deps.Calculator.ComputeEligible(ctx, gross, key.Partner)
	if err != nil {
		s.countFailure(err)
		return err
	}

	destination := s.resolveDestination(key.Partner)
	if destination == "" {
		err = dErrors.New(dErrors.CodeInternal, "no disbursement destination configured")
		s.countFailure(err)
		return err
	}

	result, err := s.deps.Executor.Dispatch(ctx, destination, eligible)
	if err != nil {
		// No local state changed; the key stays usable for a retry.
		s.countFailure(err)
		return err
	}

	commitErr := s.deps.TxRunner.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.deps.KeyStore.Consume(txCtx, key.KeyID); err != nil {
			return fmt.Errorf("consume authorization key: %w", err)
		}
		return s.deps.Audit.RecordDisbursement(txCtx, key, result, actorRole)
	})
	if commitErr != nil {
		return s.reportCommitInconsistency(ctx, key, result, commitErr)
	}

	if s.metrics != nil {
		s.metrics.PayoutsDispatched.Inc()
		s.metrics.PayoutCentsTotal.Add(float64(eligible))
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "payout committed",
			"partner", key.Partner,
			"kind", key.Kind,
			"amount_cents", eligible,
			"transfer_id", result.TransferID,
		)
	}
	if s.notifier != nil {
		go s.notifier.PayoutCompleted(context.WithoutCancel(ctx), key.Partner, eligible, result.TransferID)
	}

	return nil
}

// reportCommitInconsistency handles the one state this system cannot repair on
// its own: money moved but the local commit failed. It raises every alarm on
// channels independent of the failing request and returns a CRITICAL error.
func (s *Service) reportCommitInconsistency(ctx context.Context, key *models.AuthorizationKey, result *models.TransferResult, commitErr error) error {
	detail := fmt.Sprintf(
		"transfer %s (idempotency key %s, %d cents to %q) dispatched but local commit failed: %v",
		result.TransferID, result.IdempotencyKey, result.AmountCents, key.Partner, commitErr,
	)

	if s.logger != nil {
		s.logger.ErrorContext(ctx, "CRITICAL: payout commit inconsistency",
			"partner", key.Partner,
			"key_id", key.KeyID,
			"transfer_id", result.TransferID,
			"idempotency_key", result.IdempotencyKey,
			"amount_cents", result.AmountCents,
			"error", commitErr,
		)
	}
	if s.metrics != nil {
		s.metrics.CommitInconsistency.Inc()
	}

	// The request context may already be cancelled; the alert must still land.
	s.deps.Audit.RecordCritical(context.WithoutCancel(ctx), models.ActionCommitInconsistency, detail)

	return dErrors.Wrap(commitErr, dErrors.CodeCommitInconsistency,
		"transfer dispatched but the local commit failed; manual reconciliation required")
}

// IssueKey mints a single-use authorization key for a partner.
func (s *Service) IssueKey(ctx context.Context, req models.IssueKeyRequest, actorRole string) (*models.IssueKeyResponse, error) {
	token, key, err := s.deps.Keys.Issue(ctx, req.PartnerName, req.Kind)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.KeysIssued.Inc()
	}
	s.deps.Audit.RecordKeyIssued(ctx, key, actorRole)

	return &models.IssueKeyResponse{
		Token:    token,
		Partner:  key.Partner,
		Kind:     key.Kind,
		IssuedAt: key.IssuedAt,
	}, nil
}

// ListActiveKeys is the admin projection of issued keys.
func (s *Service) ListActiveKeys(ctx context.Context) ([]*models.AuthorizationKey, error) {
	return s.deps.Keys.ListActive(ctx)
}

// History returns payout history, optionally filtered to one recipient.
func (s *Service) History(ctx context.Context, recipient string) ([]*models.PayoutHistoryEntry, error) {
	return s.deps.Audit.History(ctx, recipient)
}

// RecentAudit returns the newest audit log entries.
func (s *Service) RecentAudit(ctx context.Context, limit int) ([]*models.AuditLogEntry, error) {
	return s.deps.Audit.RecentAudit(ctx, limit)
}

func (s *Service) resolveDestination(partner string) string {
	if dest, ok := s.destinations[partner]; ok {
		return dest
	}
	return s.defaultDestination
}

func (s *Service) countFailure(err error) {
	if s.metrics != nil {
		s.metrics.PayoutFailures.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
	}
}

func validateExecuteRequest(req models.ExecutePayoutRequest) error {
	if strings.TrimSpace(req.AuthorizationToken) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "authorizationToken is required")
	}
	if strings.TrimSpace(req.ClaimedPartnerName) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "claimedPartnerName is required")
	}
	if !req.Kind.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "kind must be INDIVIDUAL or INSTITUTIONAL")
	}
	return nil
}
