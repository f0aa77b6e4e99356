package credential

import (
	"context"
	"sync"

	"authrelay/pkg/domain"
	"authrelay/pkg/platform/sentinel"

	"authrelay/internal/delegation/models"
)

// InMemoryStore is a credential store for tests and single-node dev wiring.
type InMemoryStore struct {
	mu    sync.RWMutex
	creds map[domain.CredentialID]*models.Credential
}

// New creates an empty in-memory credential store.
func New() *InMemoryStore {
	return &InMemoryStore{creds: make(map[domain.CredentialID]*models.Credential)}
}

// Save stores or replaces a credential.
func (s *InMemoryStore) Save(_ context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.ID] = cred
	return nil
}

// Get returns the credential with the given id.
func (s *InMemoryStore) Get(_ context.Context, id domain.CredentialID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *cred
	return &copied, nil
}

// List returns all stored credentials.
func (s *InMemoryStore) List(_ context.Context) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Credential, 0, len(s.creds))
	for _, cred := range s.creds {
		copied := *cred
		out = append(out, &copied)
	}
	return out, nil
}
