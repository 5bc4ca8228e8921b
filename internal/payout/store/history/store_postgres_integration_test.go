//go:build integration

package history_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"marquee/internal/payout/models"
	"marquee/internal/payout/store/history"
	"marquee/pkg/platform/sentinel"
	"marquee/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *history.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())

	ddl, err := os.ReadFile("../../../../db/schema.sql")
	s.Require().NoError(err)
	s.Require().NoError(s.postgres.ApplySchema(context.Background(), string(ddl)))

	s.store = history.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "payout_history"))
}

func newTestEntry(recipient string, cents int64, processedAt time.Time) *models.PayoutHistoryEntry {
	return &models.PayoutHistoryEntry{
		ID:             uuid.NewString(),
		Recipient:      recipient,
		AmountCents:    cents,
		Status:         "COMPLETED",
		ProcessedAt:    processedAt.UTC().Truncate(time.Microsecond),
		Method:         "processor_transfer",
		Kind:           models.KindIndividual,
		KeyID:          uuid.NewString(),
		TransferID:     "trf-" + uuid.NewString(),
		IdempotencyKey: uuid.NewString(),
	}
}

func (s *PostgresStoreSuite) TestAppendAndSum() {
	ctx := context.Background()
	now := time.Now()

	s.Require().NoError(s.store.Append(ctx, newTestEntry("Jane Doe", 70_000, now)))
	s.Require().NoError(s.store.Append(ctx, newTestEntry("Jane Doe", 5_000, now)))
	s.Require().NoError(s.store.Append(ctx, newTestEntry("Other", 999, now)))

	total, err := s.store.SumByRecipient(ctx, "Jane Doe")
	s.Require().NoError(err)
	s.Equal(int64(75_000), total)

	zero, err := s.store.SumByRecipient(ctx, "Nobody")
	s.Require().NoError(err)
	s.Zero(zero)
}

// TestDuplicateKeyIDConflicts exercises the unique index that enforces at
// most one disbursement per authorization key.
func (s *PostgresStoreSuite) TestDuplicateKeyIDConflicts() {
	ctx := context.Background()

	entry := newTestEntry("Jane Doe", 70_000, time.Now())
	s.Require().NoError(s.store.Append(ctx, entry))

	dup := newTestEntry("Jane Doe", 70_000, time.Now())
	dup.KeyID = entry.KeyID
	s.ErrorIs(s.store.Append(ctx, dup), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestListByRecipient() {
	ctx := context.Background()
	now := time.Now()

	older := newTestEntry("Jane Doe", 100, now.Add(-time.Hour))
	newer := newTestEntry("Jane Doe", 200, now)
	s.Require().NoError(s.store.Append(ctx, older))
	s.Require().NoError(s.store.Append(ctx, newer))
	s.Require().NoError(s.store.Append(ctx, newTestEntry("Other", 300, now)))

	entries, err := s.store.ListByRecipient(ctx, "Jane Doe")
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(newer.ID, entries[0].ID)
	s.Equal(older.ID, entries[1].ID)

	all, err := s.store.ListByRecipient(ctx, "")
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *PostgresStoreSuite) TestFindByKeyID() {
	ctx := context.Background()

	entry := newTestEntry("Jane Doe", 70_000, time.Now())
	s.Require().NoError(s.store.Append(ctx, entry))

	found, err := s.store.FindByKeyID(ctx, entry.KeyID)
	s.Require().NoError(err)
	s.Equal(entry.ID, found.ID)
	s.Equal(entry.IdempotencyKey, found.IdempotencyKey)

	_, err = s.store.FindByKeyID(ctx, uuid.NewString())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
