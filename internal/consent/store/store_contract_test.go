package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piiguard/internal/consent/models"
	"piiguard/internal/detector"
	"piiguard/pkg/domain"
	"piiguard/pkg/platform/sentinel"
)

// Store is the behaviour every consent store must provide.
type Store interface {
	Get(ctx context.Context, sessionID domain.SessionID) (*models.Record, error)
	Save(ctx context.Context, rec *models.Record) error
	Delete(ctx context.Context, sessionID domain.SessionID) error
}

func record(t *testing.T, id string, choices models.Choices) *models.Record {
	t.Helper()
	sid, err := domain.ParseSessionID(id)
	require.NoError(t, err)
	return &models.Record{
		SessionID:     sid,
		Categories:    choices,
		Retention:     domain.RetentionOneHour,
		RecordedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SourceHash:    "abc123",
		PolicyVersion: "2024-01",
	}
}

func runStoreContract(t *testing.T, newStore func() Store) {
	ctx := context.Background()

	t.Run("save then get round trips enabled and withheld categories", func(t *testing.T) {
		s := newStore()
		rec := record(t, "sess-rt", models.Choices{detector.CategoryName: true, detector.CategoryEmail: false})
		require.NoError(t, s.Save(ctx, rec))

		got, err := s.Get(ctx, rec.SessionID)
		require.NoError(t, err)
		assert.True(t, got.Categories.Allows(detector.CategoryName))
		assert.False(t, got.Categories.Allows(detector.CategoryEmail))
		_, tracked := got.Categories[detector.CategoryEmail]
		assert.True(t, tracked, "withheld categories stay on record")
		assert.Equal(t, domain.RetentionOneHour, got.Retention)
		assert.True(t, rec.RecordedAt.Equal(got.RecordedAt))
		assert.Equal(t, "abc123", got.SourceHash)
		assert.Equal(t, "2024-01", got.PolicyVersion)
	})

	t.Run("save overwrites the previous decision", func(t *testing.T) {
		s := newStore()
		rec := record(t, "sess-over", models.Choices{detector.CategoryName: true})
		require.NoError(t, s.Save(ctx, rec))

		rec.Categories = models.Choices{detector.CategoryName: false}
		rec.Retention = domain.RetentionSessionOnly
		require.NoError(t, s.Save(ctx, rec))

		got, err := s.Get(ctx, rec.SessionID)
		require.NoError(t, err)
		assert.False(t, got.Categories.Allows(detector.CategoryName))
		assert.Equal(t, domain.RetentionSessionOnly, got.Retention)
	})

	t.Run("get missing returns not found", func(t *testing.T) {
		s := newStore()
		_, err := s.Get(ctx, domain.SessionID("sess-missing"))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("delete removes the record", func(t *testing.T) {
		s := newStore()
		rec := record(t, "sess-del", models.Choices{detector.CategoryPhone: true})
		require.NoError(t, s.Save(ctx, rec))
		require.NoError(t, s.Delete(ctx, rec.SessionID))

		_, err := s.Get(ctx, rec.SessionID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, rec.SessionID), sentinel.ErrNotFound)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		s := newStore()
		rec := record(t, "sess-copy", models.Choices{detector.CategoryName: true})
		require.NoError(t, s.Save(ctx, rec))
		rec.Categories[detector.CategoryName] = false

		got, err := s.Get(ctx, rec.SessionID)
		require.NoError(t, err)
		got.Categories[detector.CategoryAmount] = true

		again, err := s.Get(ctx, rec.SessionID)
		require.NoError(t, err)
		assert.True(t, again.Categories.Allows(detector.CategoryName))
		assert.False(t, again.Categories.Allows(detector.CategoryAmount))
	})
}
