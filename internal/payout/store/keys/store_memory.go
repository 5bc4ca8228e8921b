package keys

import (
	"context"
	"sort"
	"sync"

	"marquee/internal/payout/models"
	"marquee/pkg/platform/sentinel"
)

// InMemoryStore backs unit tests and single-node development runs.
type InMemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*models.AuthorizationKey
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{keys: make(map[string]*models.AuthorizationKey)}
}

func (s *InMemoryStore) Create(_ context.Context, key *models.AuthorizationKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key.KeyID]; exists {
		return sentinel.ErrConflict
	}
	cp := *key
	s.keys[key.KeyID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, keyID string) (*models.AuthorizationKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, exists := s.keys[keyID]
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	cp := *key
	return &cp, nil
}

func (s *InMemoryStore) Consume(_ context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[keyID]; !exists {
		return sentinel.ErrNotFound
	}
	delete(s.keys, keyID)
	return nil
}

func (s *InMemoryStore) ListActive(_ context.Context) ([]*models.AuthorizationKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.AuthorizationKey, 0, len(s.keys))
	for _, key := range s.keys {
		cp := *key
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out, nil
}
