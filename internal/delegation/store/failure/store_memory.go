package failure

import (
	"context"
	"sync"
	"time"

	id "authrelay/pkg/domain"

	"authrelay/internal/delegation/models"
)

// InMemoryStore implements the failure tracker as a map of per-credential
// sliding windows. Locking is two-level: a read-write mutex guards the map,
// each window has its own mutex, so concurrent requests for different
// credentials never contend.
type InMemoryStore struct {
	mu      sync.RWMutex
	windows map[id.CredentialID]*slidingWindow
}

// slidingWindow tracks failure records in arrival order plus the alert
// suppression deadline for the current breach.
type slidingWindow struct {
	mu           sync.Mutex
	records      []models.FailureRecord
	alertedUntil time.Time
}

// NewInMemoryStore creates an empty failure store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{windows: make(map[id.CredentialID]*slidingWindow)}
}

// RecordFailure appends the record and returns the in-window count and the
// oldest in-window timestamp.
func (s *InMemoryStore) RecordFailure(_ context.Context, record models.FailureRecord, window time.Duration) (int, time.Time, error) {
	w := s.window(record.CredentialID)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(record.Timestamp, window)
	w.records = append(w.records, record)

	return len(w.records), w.records[0].Timestamp, nil
}

// CountInWindow prunes and counts without recording.
func (s *InMemoryStore) CountInWindow(_ context.Context, credentialID id.CredentialID, now time.Time, window time.Duration) (int, error) {
	s.mu.RLock()
	w := s.windows[credentialID]
	s.mu.RUnlock()
	if w == nil {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now, window)
	return len(w.records), nil
}

// TryMarkAlerted claims the breach alert. Exactly one caller wins per
// breach; the claim re-arms one window length after it was taken, so a
// sustained flood raises one alert per window rather than one per failure.
func (s *InMemoryStore) TryMarkAlerted(_ context.Context, credentialID id.CredentialID, now time.Time, window time.Duration) (bool, error) {
	w := s.window(credentialID)

	w.mu.Lock()
	defer w.mu.Unlock()

	if now.Before(w.alertedUntil) {
		return false, nil
	}
	w.alertedUntil = now.Add(window)
	return true, nil
}

// prune discards records older than the window. Must be called while
// holding w.mu.
func (w *slidingWindow) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(w.records); i++ {
		if w.records[i].Timestamp.After(cutoff) {
			break
		}
	}
	w.records = w.records[i:]
}

func (s *InMemoryStore) window(credentialID id.CredentialID) *slidingWindow {
	s.mu.RLock()
	w := s.windows[credentialID]
	s.mu.RUnlock()
	if w != nil {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w = s.windows[credentialID]; w == nil {
		w = &slidingWindow{}
		s.windows[credentialID] = w
	}
	return w
}
