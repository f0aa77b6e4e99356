package memory

import (
	"context"
	"sync"

	id "authrelay/pkg/domain"
	audit "authrelay/pkg/platform/audit"
)

// InMemoryStore keeps audit events per credential. Used in tests and
// single-node dev wiring.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.CredentialID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.CredentialID][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.CredentialID][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.CredentialID] = append(s.events[event.CredentialID], event)
	return nil
}

func (s *InMemoryStore) ListByCredential(_ context.Context, credentialID id.CredentialID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[credentialID]...), nil
}

// ListAll returns all audit events across all credentials.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []audit.Event
	for _, events := range s.events {
		all = append(all, events...)
	}
	return all, nil
}
