// Package store persists consent records in memory or PostgreSQL.
package store

import (
	"context"
	"sync"

	"piiguard/internal/consent/models"
	"piiguard/pkg/domain"
	"piiguard/pkg/platform/sentinel"
)

// InMemoryStore keeps one consent record per session.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.SessionID]*models.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.SessionID]*models.Record)}
}

func (s *InMemoryStore) Get(_ context.Context, sessionID domain.SessionID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Save inserts or overwrites the session's record.
func (s *InMemoryStore) Save(_ context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.SessionID] = cloneRecord(rec)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[sessionID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, sessionID)
	return nil
}

func cloneRecord(r *models.Record) *models.Record {
	c := *r
	c.Categories = r.Categories.Clone()
	return &c
}
