// Package keys owns the authorization key lifecycle: issuance, validation,
// and single-use consumption. No other component touches key state.
package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"marquee/internal/payout/models"
	"marquee/internal/payout/ports"
	dErrors "marquee/pkg/domain-errors"
	"marquee/pkg/platform/sentinel"
)

type Service struct {
	store  ports.KeyStore
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store ports.KeyStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("key store is required")
	}

	svc := &Service{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Issue creates a single-use key bound to one partner. The returned token is
// "<keyID>.<secret>" and is shown exactly once; only the secret's bcrypt hash
// is stored.
func (s *Service) Issue(ctx context.Context, partnerName string, kind models.PayoutKind) (string, *models.AuthorizationKey, error) {
	partnerName = strings.TrimSpace(partnerName)
	if partnerName == "" {
		return "", nil, dErrors.New(dErrors.CodeValidation, "partner name is required")
	}
	if !kind.IsValid() {
		return "", nil, dErrors.New(dErrors.CodeValidation, "invalid payout kind")
	}

	secret, err := generateSecret()
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate key secret")
	}
	hash, err := hashSecret(secret)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash key secret")
	}

	key := &models.AuthorizationKey{
		KeyID:      uuid.NewString(),
		SecretHash: hash,
		Partner:    partnerName,
		Kind:       kind,
		Status:     models.KeyStatusActive,
		IssuedAt:   s.now().UTC(),
	}

	if err := s.store.Create(ctx, key); err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist authorization key")
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "authorization key issued",
			"key_id", key.KeyID,
			"partner", key.Partner,
			"kind", key.Kind,
		)
	}

	return key.KeyID + "." + secret, key, nil
}

// ValidateAndBind resolves a presented token to its key and checks the caller's
// claimed identity against the bound partner. Fails closed on every mismatch:
// an absent or consumed key reports CodeKeyNotFound, a wrong identity reports
// CodeIdentityMismatch. No side effects.
func (s *Service) ValidateAndBind(ctx context.Context, token, claimedPartnerName string) (*models.AuthorizationKey, error) {
	keyID, secret, ok := splitToken(token)
	if !ok {
		// Malformed tokens are indistinguishable from unknown ones on purpose.
		return nil, dErrors.New(dErrors.CodeKeyNotFound, "authorization key not found")
	}

	key, err := s.store.FindByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeKeyNotFound, "authorization key not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up authorization key")
	}

	if err := verifySecret(secret, key.SecretHash); err != nil {
		return nil, err
	}

	if key.Partner != strings.TrimSpace(claimedPartnerName) {
		return nil, dErrors.New(dErrors.CodeIdentityMismatch, "key is bound to another partner")
	}

	return key, nil
}

// ListActive returns issued keys for the admin projection.
func (s *Service) ListActive(ctx context.Context) ([]*models.AuthorizationKey, error) {
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list authorization keys")
	}
	return active, nil
}

func splitToken(token string) (keyID, secret string, ok bool) {
	keyID, secret, found := strings.Cut(strings.TrimSpace(token), ".")
	if !found || keyID == "" || secret == "" {
		return "", "", false
	}
	if _, err := uuid.Parse(keyID); err != nil {
		return "", "", false
	}
	return keyID, secret, true
}
