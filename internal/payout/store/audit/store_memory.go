package audit

import (
	"context"
	"sync"

	"marquee/internal/payout/models"
)

// InMemoryStore keeps audit entries for tests and development.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*models.AuditLogEntry
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry *models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]*models.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.entries) - limit
	if limit <= 0 || start < 0 {
		start = 0
	}

	out := make([]*models.AuditLogEntry, 0, len(s.entries)-start)
	for i := len(s.entries) - 1; i >= start; i-- {
		cp := *s.entries[i]
		out = append(out, &cp)
	}
	return out, nil
}
