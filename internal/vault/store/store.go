// Package store holds secure-store backends. Backends report storage facts
// with sentinel errors; expiry decisions belong to the service.
package store

import (
	"context"
	"time"

	"piiguard/internal/vault/models"
	"piiguard/pkg/domain"
)

// Store is the contract every secure-store backend honors.
//
// Create fails with sentinel.ErrConflict if any entry exists for the session.
// Get, AppendEvent and Delete fail with sentinel.ErrNotFound if none does.
// ListExpired returns sessions whose entries expired before now.
type Store interface {
	Create(ctx context.Context, entry *models.Entry) error
	Get(ctx context.Context, sessionID domain.SessionID) (*models.Entry, error)
	AppendEvent(ctx context.Context, sessionID domain.SessionID, event models.AccessEvent) error
	Delete(ctx context.Context, sessionID domain.SessionID) error
	ListExpired(ctx context.Context, now time.Time) ([]domain.SessionID, error)
}
