package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marquee/internal/payout/audit"
	"marquee/internal/payout/dispatch"
	"marquee/internal/payout/entitlement"
	"marquee/internal/payout/keys"
	"marquee/internal/payout/ledger"
	"marquee/internal/payout/locker"
	"marquee/internal/payout/models"
	auditstore "marquee/internal/payout/store/audit"
	historystore "marquee/internal/payout/store/history"
	keystore "marquee/internal/payout/store/keys"
	"marquee/internal/processor"
	dErrors "marquee/pkg/domain-errors"
	"marquee/pkg/platform/sentinel"
)

// ----------------------------------------------------------------------------
// Fakes
// ----------------------------------------------------------------------------

type fakeLedgerAPI struct {
	mu       sync.Mutex
	pages    []models.PaymentPage
	failures int
	calls    int
}

func (f *fakeLedgerAPI) ListPayments(_ context.Context, _ time.Time, cursor string) (*models.PaymentPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("ledger unavailable")
	}
	// cursors are the NextCursor of the previous page; page 0 has "".
	idx := 0
	if cursor != "" {
		for i := 1; i < len(f.pages); i++ {
			if f.pages[i-1].NextCursor == cursor {
				idx = i
			}
		}
	}
	if idx >= len(f.pages) {
		return &models.PaymentPage{}, nil
	}
	page := f.pages[idx]
	return &page, nil
}

type fakeTransferAPI struct {
	mu              sync.Mutex
	calls           int
	idempotencyKeys []string
	amounts         []int64
	rejectWith      *processor.APIError
	transportErrs   int
}

func (f *fakeTransferAPI) CreateTransfer(_ context.Context, idempotencyKey, _ string, amountCents int64) (*models.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.idempotencyKeys = append(f.idempotencyKeys, idempotencyKey)
	f.amounts = append(f.amounts, amountCents)
	if f.rejectWith != nil {
		return nil, f.rejectWith
	}
	if f.transportErrs > 0 {
		f.transportErrs--
		return nil, errors.New("connection reset by peer")
	}
	return &models.TransferResult{
		TransferID: fmt.Sprintf("trf-%d", f.calls),
		Status:     "COMPLETED",
	}, nil
}

// fakeTxRunner mimics the postgres runner against memory stores: fn runs with
// the plain context. failBegin simulates a transaction that cannot start, so
// none of the writes inside it land.
type fakeTxRunner struct {
	failBegin bool
}

func (f *fakeTxRunner) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if f.failBegin {
		return errors.New("connection closed during commit")
	}
	return fn(ctx)
}

// ----------------------------------------------------------------------------
// Harness
// ----------------------------------------------------------------------------

type harness struct {
	svc       *Service
	keySvc    *keys.Service
	keyStore  *keystore.InMemoryStore
	history   *historystore.InMemoryStore
	auditLog  *auditstore.InMemoryStore
	ledgerAPI *fakeLedgerAPI
	transfers *fakeTransferAPI
	tx        *fakeTxRunner
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		keyStore:  keystore.NewInMemory(),
		history:   historystore.NewInMemory(),
		auditLog:  auditstore.NewInMemory(),
		transfers: &fakeTransferAPI{},
		tx:        &fakeTxRunner{},
		ledgerAPI: &fakeLedgerAPI{
			// One page: $1,000 matched revenue for Jane Doe.
			pages: []models.PaymentPage{{
				Records: []models.PaymentRecord{
					{ID: "pay-1", AmountCents: 60_000, Memo: "Stream rental - Jane Doe"},
					{ID: "pay-2", AmountCents: 40_000, Memo: "Purchase: Jane Doe retrospective"},
					{ID: "pay-3", AmountCents: 25_000, Memo: "Festival pass weekend"},
				},
			}},
		},
	}

	keySvc, err := keys.New(h.keyStore)
	require.NoError(t, err)
	h.keySvc = keySvc

	ledgerClient, err := ledger.New(h.ledgerAPI)
	require.NoError(t, err)

	calc, err := entitlement.New(h.history, 0.70, 100)
	require.NoError(t, err)

	executor, err := dispatch.New(h.transfers)
	require.NoError(t, err)

	auditSvc, err := audit.New(h.history, h.auditLog)
	require.NoError(t, err)

	svc, err := New(Deps{
		Keys:       keySvc,
		Ledger:     ledgerClient,
		Calculator: calc,
		Executor:   executor,
		Audit:      auditSvc,
		KeyStore:   h.keyStore,
		TxRunner:   h.tx,
		Locker:     locker.NewMemory(),
	}, WithDestinations("dest-default", map[string]string{"Jane Doe": "dest-jane"}))
	require.NoError(t, err)
	h.svc = svc

	return h
}

func (h *harness) issueToken(t *testing.T, partner string, kind models.PayoutKind) (string, *models.AuthorizationKey) {
	t.Helper()
	token, key, err := h.keySvc.Issue(context.Background(), partner, kind)
	require.NoError(t, err)
	return token, key
}

func (h *harness) auditEntries(t *testing.T, action string) []*models.AuditLogEntry {
	t.Helper()
	all, err := h.auditLog.ListRecent(context.Background(), 100)
	require.NoError(t, err)
	var out []*models.AuditLogEntry
	for _, e := range all {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// ----------------------------------------------------------------------------
// ExecutePayout
// ----------------------------------------------------------------------------

func TestExecutePayout(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path disburses the net share and commits everything", func(t *testing.T) {
		h := newHarness(t)
		token, key := h.issueToken(t, "Jane Doe", models.KindIndividual)

		err := h.svc.ExecutePayout(ctx, models.ExecutePayoutRequest{
			AuthorizationToken: token,
			ClaimedPartnerName: "Jane Doe",
			Kind:               models.KindIndividual,
		}, "admin")
		require.NoError(t, err)

		// 70% of the $1,000 individual revenue; the festival pass is not hers.
		require.Equal(t, 1, h.transfers.calls)
		assert.Equal(t, int64(70_000), h.transfers.amounts[0])

		entries, err := h.history.ListByRecipient(ctx, "Jane Doe")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, int64(70_000), entries[0].AmountCents)
		assert.Equal(t, key.KeyID, entries[0].KeyID)
		assert.Equal(t, "trf-1", entries[0].TransferID)
		assert.Equal(t, h.transfers.idempotencyKeys[0], entries[0].IdempotencyKey)

		_, err = h.keyStore.FindByID(ctx, key.KeyID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		assert.Len(t, h.auditEntries(t, models.ActionPayoutDisbursed), 1)
	})

	t.Run("consumed key cannot authorize a second payout", func(t *testing.T) {
		h := newHarness(t)
		token, _ := h.issueToken(t, "Jane Doe", models.KindIndividual)
		req := models.ExecutePayoutRequest{
			AuthorizationToken: token,
			ClaimedPartnerName: "Jane Doe",
			Kind:               models.KindIndividual,
		}

		require.NoError(t, h.svc.ExecutePayout(ctx, req, "admin"))

		err := h.svc.ExecutePayout(ctx, req, "admin")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeKeyNotFound))
		assert.Equal(t, 1, h.transfers.calls)
	})

	t.Run("identity mismatch is rejected with no side effects", func(t *testing.T) {
		h := newHarness(t)
		token, key := h.issueToken(t, "Jane Doe", models.KindIndividual)

		err := h.svc.ExecutePayout(ctx, models.ExecutePayoutRequest{
			AuthorizationToken: token,
			ClaimedPartnerName: "Someone Else",
			Kind:               models.KindIndividual,
		}, "admin")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeIdentityMismatch))
		assert.Zero(t, h.transfers.calls)

		// The key survives for the rightful partner.
		_, err = h.keyStore.FindByID(ctx, key.KeyID)
		assert.NoError(t, err)
	})

	t.Run("kind mismatch with the key is rejected", func(t *testing.T) {
		h := newHarness(t)
		token, _ := h.issueToken(t, "Jane Doe", models.KindIndividual)

		err := h.svc.ExecutePayout(ctx, models.ExecutePayoutRequest{
			AuthorizationToken: token,
			ClaimedPartnerName: "Jane Doe",
			Kind:               models.KindInstitutional,
		}, "admin")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
		assert.Zero(t, h.transfers.calls)
	})

	t.Run("insufficient balance never reaches the processor", func(t *testing.T) {
		h := newHarness(t)
		// Prior payouts already cover the full entitlement.
		require.NoError(t, h.history.Append(ctx, &models.PayoutHistoryEntry{
			ID: "prior", KeyID: "prior-key", Recipient: "Jane Doe", AmountCents: 70_000,
		}))
		token, _ := h.issueToken(t, "Jane Doe", models.KindIndividual)

		err := h.svc.ExecutePayout(ctx, models.ExecutePayoutRequest{
			AuthorizationToken: token,
			ClaimedPartnerName: "Jane Doe",
			Kind:               models.KindIndividual,
		}, "admin")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeInsufficientBalance))
		assert.Zero(t, h.transfers.calls)
	})

	t.Run("aggregation failure aborts before any money math", func(t *testing.T) {
		h := newHarness(t)
		h.ledgerAPI.failures = 1
		token, key := h.issueToken(t, "Jane Doe", models.KindIndividual)

		err := h.svc.ExecutePayout(ctx, models.ExecutePayoutRequest{
			AuthorizationToken: token,
			ClaimedPartnerName: "Jane Doe",
			Kind:               models.KindIndividual,
		}, "admin")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeAggregation))
		assert.Zero(t, h.transfers.calls)

		_, err = h.keyStore.FindByID(ctx, key.KeyID)
		assert.NoError(t, err)
	})

	t.Run("processor rejection leaves the key active and history empty", func(t *testing.T) {
		h := newHarness(t)
		h.transfers.rejectWith = &processor.APIError{
			StatusCode: 400,
			Code:       "INSUFFICIENT_FUNDS",
			Detail:     "source balance too low",
		}
		token, key := h.issueToken(t, "Jane Doe", models.KindIndividual)

		err := h.svc.ExecutePayout(ctx, models.ExecutePayoutRequest{
			AuthorizationToken: token,
			ClaimedPartnerName: "Jane Doe",
			Kind:               models.KindIndividual,
		}, "admin")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeDispatch))
		assert.Contains(t, err.Error(), "INSUFFICIENT_FUNDS: source balance too low")

		_, err = h.keyStore.FindByID(ctx, key.KeyID)
		assert.NoError(t, err)
		entries, err := h.history.ListByRecipient(ctx, "Jane Doe")
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.Empty(t, h.auditEntries(t, models.ActionPayoutDisbursed))
	})

	t.Run("each dispatch attempt mints a fresh idempotency key", func(t *testing.T) {
		h := newHarness(t)
		h.transfers.transportErrs = 1
		token, _ := h.issueToken(t, "Jane Doe", models.KindIndividual)
		req := models.ExecutePayoutRequest{
			AuthorizationToken: token,
			ClaimedPartnerName: "Jane Doe",
			Kind:               models.KindIndividual,
		}

		err := h.svc.ExecutePayout(ctx, req, "admin")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeDispatch))

		require.NoError(t, h.svc.ExecutePayout(ctx, req, "admin"))

		require.Len(t, h.transfers.idempotencyKeys, 2)
		assert.NotEqual(t, h.transfers.idempotencyKeys[0], h.transfers.idempotencyKeys[1])
	})

	t.Run("surviving history row for the key blocks a duplicate transfer", func(t *testing.T) {
		h := newHarness(t)
		token, key := h.issueToken(t, "Jane Doe", models.KindIndividual)
		require.NoError(t, h.history.Append(ctx, &models.PayoutHistoryEntry{
			ID: "landed", KeyID: key.KeyID, Recipient: "Jane Doe",
			AmountCents: 70_000, TransferID: "trf-old",
		}))

		err := h.svc.ExecutePayout(ctx, models.ExecutePayoutRequest{
			AuthorizationToken: token,
			ClaimedPartnerName: "Jane Doe",
			Kind:               models.KindIndividual,
		}, "admin")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeConflict))
		assert.Zero(t, h.transfers.calls)
	})

	t.Run("commit failure after dispatch raises exactly one critical alert", func(t *testing.T) {
		h := newHarness(t)
		h.tx.failBegin = true
		token, _ := h.issueToken(t, "Jane Doe", models.KindIndividual)

		err := h.svc.ExecutePayout(ctx, models.ExecutePayoutRequest{
			AuthorizationToken: token,
			ClaimedPartnerName: "Jane Doe",
			Kind:               models.KindIndividual,
		}, "admin")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeCommitInconsistency))

		// The transfer went out once; the alert names it for reconciliation.
		require.Equal(t, 1, h.transfers.calls)
		critical := h.auditEntries(t, models.ActionCommitInconsistency)
		require.Len(t, critical, 1)
		assert.Equal(t, models.SeverityCritical, critical[0].Severity)
		assert.Contains(t, critical[0].Detail, "trf-1")
		assert.Contains(t, critical[0].Detail, h.transfers.idempotencyKeys[0])
	})

	t.Run("concurrent requests for one recipient never over-pay", func(t *testing.T) {
		h := newHarness(t)
		tokenA, _ := h.issueToken(t, "Jane Doe", models.KindIndividual)
		tokenB, _ := h.issueToken(t, "Jane Doe", models.KindIndividual)

		var wg sync.WaitGroup
		results := make([]error, 2)
		for i, token := range []string{tokenA, tokenB} {
			wg.Add(1)
			go func(i int, token string) {
				defer wg.Done()
				results[i] = h.svc.ExecutePayout(ctx, models.ExecutePayoutRequest{
					AuthorizationToken: token,
					ClaimedPartnerName: "Jane Doe",
					Kind:               models.KindIndividual,
				}, "admin")
			}(i, token)
		}
		wg.Wait()

		// One wins; the loser sees the committed payout and has no balance.
		var succeeded, insufficient int
		for _, err := range results {
			switch {
			case err == nil:
				succeeded++
			case dErrors.Is(err, dErrors.CodeInsufficientBalance):
				insufficient++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, insufficient)

		total, err := h.history.SumByRecipient(ctx, "Jane Doe")
		require.NoError(t, err)
		assert.Equal(t, int64(70_000), total)
	})

	t.Run("request validation", func(t *testing.T) {
		h := newHarness(t)
		cases := []struct {
			name string
			req  models.ExecutePayoutRequest
		}{
			{"missing token", models.ExecutePayoutRequest{ClaimedPartnerName: "Jane Doe", Kind: models.KindIndividual}},
			{"missing partner", models.ExecutePayoutRequest{AuthorizationToken: "x.y", Kind: models.KindIndividual}},
			{"bad kind", models.ExecutePayoutRequest{AuthorizationToken: "x.y", ClaimedPartnerName: "Jane Doe", Kind: "corporate"}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				err := h.svc.ExecutePayout(ctx, tc.req, "admin")
				require.Error(t, err)
				assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
			})
		}
		assert.Zero(t, h.transfers.calls)
	})

	t.Run("institutional payout matches the keyword revenue", func(t *testing.T) {
		h := newHarness(t)
		token, _ := h.issueToken(t, "Cascadia Film Festival", models.KindInstitutional)

		err := h.svc.ExecutePayout(ctx, models.ExecutePayoutRequest{
			AuthorizationToken: token,
			ClaimedPartnerName: "Cascadia Film Festival",
			Kind:               models.KindInstitutional,
		}, "admin")
		require.NoError(t, err)

		// 70% of the $250 festival pass sale.
		require.Equal(t, 1, h.transfers.calls)
		assert.Equal(t, int64(17_500), h.transfers.amounts[0])
		// No per-partner override: falls back to the default destination.
		entries, err := h.history.ListByRecipient(ctx, "Cascadia Film Festival")
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})
}

// ----------------------------------------------------------------------------
// Keys and projections
// ----------------------------------------------------------------------------

func TestIssueKey(t *testing.T) {
	ctx := context.Background()

	t.Run("mints a usable token and audits the issuance", func(t *testing.T) {
		h := newHarness(t)

		resp, err := h.svc.IssueKey(ctx, models.IssueKeyRequest{
			PartnerName: "Jane Doe",
			Kind:        models.KindIndividual,
		}, "admin")
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "Jane Doe", resp.Partner)
		assert.Len(t, h.auditEntries(t, models.ActionKeyIssued), 1)

		err = h.svc.ExecutePayout(ctx, models.ExecutePayoutRequest{
			AuthorizationToken: resp.Token,
			ClaimedPartnerName: "Jane Doe",
			Kind:               models.KindIndividual,
		}, "admin")
		assert.NoError(t, err)
	})

	t.Run("rejects an unknown kind", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.IssueKey(ctx, models.IssueKeyRequest{PartnerName: "Jane Doe", Kind: "corporate"}, "admin")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
	})
}

func TestHistoryProjection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	token, _ := h.issueToken(t, "Jane Doe", models.KindIndividual)

	require.NoError(t, h.svc.ExecutePayout(ctx, models.ExecutePayoutRequest{
		AuthorizationToken: token,
		ClaimedPartnerName: "Jane Doe",
		Kind:               models.KindIndividual,
	}, "admin"))

	entries, err := h.svc.History(ctx, "Jane Doe")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	none, err := h.svc.History(ctx, "Nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}
