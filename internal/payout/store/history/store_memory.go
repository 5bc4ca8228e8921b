package history

import (
	"context"
	"sort"
	"sync"

	"marquee/internal/payout/models"
	"marquee/pkg/platform/sentinel"
)

// InMemoryStore is an append-only history for tests and development.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*models.PayoutHistoryEntry
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry *models.PayoutHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.entries {
		if existing.KeyID == entry.KeyID {
			return sentinel.ErrConflict
		}
	}
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *InMemoryStore) SumByRecipient(_ context.Context, recipient string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, entry := range s.entries {
		if entry.Recipient == recipient {
			total += entry.AmountCents
		}
	}
	return total, nil
}

func (s *InMemoryStore) ListByRecipient(_ context.Context, recipient string) ([]*models.PayoutHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.PayoutHistoryEntry
	for _, entry := range s.entries {
		if recipient == "" || entry.Recipient == recipient {
			cp := *entry
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProcessedAt.After(out[j].ProcessedAt)
	})
	return out, nil
}

func (s *InMemoryStore) FindByKeyID(_ context.Context, keyID string) (*models.PayoutHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.entries {
		if entry.KeyID == keyID {
			cp := *entry
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}
