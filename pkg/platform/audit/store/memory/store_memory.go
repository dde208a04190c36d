// Package memory is an in-process audit.Store.
package memory

import (
	"container/list"
	"context"
	"sync"

	"piiguard/pkg/domain"
	audit "piiguard/pkg/platform/audit"
)

// InMemoryStore keeps audit events per session for tests and single-node
// runs. With limits set it forgets the least recently written sessions and
// keeps only the newest events of each.
type InMemoryStore struct {
	mu          sync.RWMutex
	events      map[domain.SessionID][]audit.Event
	recency     *list.List
	position    map[domain.SessionID]*list.Element
	maxSessions int
	maxEvents   int
}

// Option configures an InMemoryStore.
type Option func(*InMemoryStore)

// WithMaxSessions bounds how many sessions are tracked. Zero means unbounded.
func WithMaxSessions(n int) Option {
	return func(s *InMemoryStore) {
		s.maxSessions = max(n, 0)
	}
}

// WithMaxEventsPerSession bounds how many events are kept per session. Zero
// means unbounded.
func WithMaxEventsPerSession(n int) Option {
	return func(s *InMemoryStore) {
		s.maxEvents = max(n, 0)
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		events:   make(map[domain.SessionID][]audit.Event),
		recency:  list.New(),
		position: make(map[domain.SessionID]*list.Element),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := event.SessionID
	if el, ok := s.position[id]; ok {
		s.recency.MoveToFront(el)
	} else {
		s.position[id] = s.recency.PushFront(id)
	}

	events := append(s.events[id], event)
	if s.maxEvents > 0 && len(events) > s.maxEvents {
		events = append([]audit.Event(nil), events[len(events)-s.maxEvents:]...)
	}
	s.events[id] = events

	for s.maxSessions > 0 && s.recency.Len() > s.maxSessions {
		oldest := s.recency.Back()
		evicted := s.recency.Remove(oldest).(domain.SessionID)
		delete(s.position, evicted)
		delete(s.events, evicted)
	}
	return nil
}

func (s *InMemoryStore) ListBySession(_ context.Context, sessionID domain.SessionID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[sessionID]...), nil
}
