package user

import (
	"context"
	"sync"

	"authrelay/pkg/email"
	"authrelay/pkg/platform/sentinel"

	"authrelay/internal/delegation/models"
)

// InMemoryStore is a user store for tests and single-node dev wiring.
// Lookup is case-insensitive on email, matching the production store.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[string]*models.Identity // keyed by normalized email
}

// New creates an empty in-memory user store.
func New() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]*models.Identity)}
}

// Save stores or replaces a user record.
func (s *InMemoryStore) Save(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email.Normalize(identity.Email)] = identity
	return nil
}

// Resolve returns the identity for an email, case-insensitively.
func (s *InMemoryStore) Resolve(_ context.Context, addr string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.users[email.Normalize(addr)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *identity
	return &copied, nil
}
