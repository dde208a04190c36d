package store

import (
	"context"
	"sync"
	"time"

	"piiguard/internal/vault/models"
	"piiguard/pkg/domain"
	"piiguard/pkg/platform/sentinel"
)

// InMemoryStore keeps entries in process memory. Entries are lost on shutdown.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[domain.SessionID]*models.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[domain.SessionID]*models.Entry)}
}

func (s *InMemoryStore) Create(_ context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.SessionID]; ok {
		return sentinel.ErrConflict
	}
	s.entries[entry.SessionID] = cloneEntry(entry)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, sessionID domain.SessionID) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneEntry(entry), nil
}

func (s *InMemoryStore) AppendEvent(_ context.Context, sessionID domain.SessionID, event models.AccessEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sessionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	entry.AccessLog = append(entry.AccessLog, event)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[sessionID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.entries, sessionID)
	return nil
}

func (s *InMemoryStore) ListExpired(_ context.Context, now time.Time) ([]domain.SessionID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var expired []domain.SessionID
	for id, entry := range s.entries {
		if entry.IsExpired(now) {
			expired = append(expired, id)
		}
	}
	return expired, nil
}

// Len returns the number of entries held, live or not.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cloneEntry(e *models.Entry) *models.Entry {
	c := *e
	c.AccessLog = append([]models.AccessEvent(nil), e.AccessLog...)
	return &c
}
