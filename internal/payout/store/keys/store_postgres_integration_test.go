//go:build integration

package keys_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"marquee/internal/payout/models"
	"marquee/internal/payout/store/keys"
	"marquee/pkg/platform/sentinel"
	"marquee/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *keys.PostgresStore
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

	s.store = keys.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "authorization_keys"))
}

func newTestKey(partner string) *models.AuthorizationKey {
	return &models.AuthorizationKey{
		KeyID:      uuid.NewString(),
		SecretHash: "$2a$10$" + uuid.NewString(),
		Partner:    partner,
		Kind:       models.KindIndividual,
		Status:     models.KeyStatusActive,
		IssuedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	key := newTestKey("Jane Doe")

	s.Require().NoError(s.store.Create(ctx, key))

	found, err := s.store.FindByID(ctx, key.KeyID)
	s.Require().NoError(err)
	s.Equal(key.Partner, found.Partner)
	s.Equal(key.SecretHash, found.SecretHash)
	s.Equal(models.KindIndividual, found.Kind)
}

func (s *PostgresStoreSuite) TestDuplicateCreateConflicts() {
	ctx := context.Background()
	key := newTestKey("Jane Doe")

	s.Require().NoError(s.store.Create(ctx, key))
	s.ErrorIs(s.store.Create(ctx, key), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestFindUnknownKey() {
	_, err := s.store.FindByID(context.Background(), uuid.NewString())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentConsume verifies that many racing consumers delete the row
// exactly once: every other attempt observes zero rows affected.
func (s *PostgresStoreSuite) TestConcurrentConsume() {
	ctx := context.Background()
	key := newTestKey("Jane Doe")
	s.Require().NoError(s.store.Create(ctx, key))

	const goroutines = 20
	var wg sync.WaitGroup
	var consumed, gone atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := s.store.Consume(ctx, key.KeyID); err {
			case nil:
				consumed.Add(1)
			case sentinel.ErrNotFound:
				gone.Add(1)
			default:
				s.T().Errorf("unexpected consume error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), consumed.Load())
	s.Equal(int32(goroutines-1), gone.Load())
}

func (s *PostgresStoreSuite) TestListActiveNewestFirst() {
	ctx := context.Background()

	old := newTestKey("Jane Doe")
	old.IssuedAt = old.IssuedAt.Add(-time.Hour)
	s.Require().NoError(s.store.Create(ctx, old))

	recent := newTestKey("Cascadia Film Festival")
	s.Require().NoError(s.store.Create(ctx, recent))

	active, err := s.store.ListActive(ctx)
	s.Require().NoError(err)
	s.Require().Len(active, 2)
	s.Equal(recent.KeyID, active[0].KeyID)
	s.Equal(old.KeyID, active[1].KeyID)
}
