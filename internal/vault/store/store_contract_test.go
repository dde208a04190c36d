package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piiguard/internal/sealer"
	"piiguard/internal/vault/models"
	"piiguard/pkg/domain"
	"piiguard/pkg/platform/sentinel"
)

// runStoreContract exercises behaviour every Store implementation must share.
// reset is called before each subtest.
func runStoreContract(t *testing.T, newStore func() Store, reset func()) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	entry := func(id string, ttl time.Duration) *models.Entry {
		return &models.Entry{
			SessionID: domain.SessionID(id),
			Record: &sealer.Record{
				Ciphertext: []byte{0x01, 0x02},
				Salt:       make([]byte, sealer.SaltSize),
				Nonce:      make([]byte, sealer.NonceSize),
				Tag:        make([]byte, sealer.TagSize),
				Algorithm:  sealer.AlgorithmAES256GCM,
				Iterations: sealer.MinIterations,
			},
			Retention: domain.RetentionOneHour,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
			AccessLog: []models.AccessEvent{{
				Timestamp: now, Action: models.ActionStore, ActorHash: "actor", Success: true,
			}},
		}
	}

	t.Run("create then get round-trips the entry and log", func(t *testing.T) {
		reset()
		s := newStore()
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, entry("sess-1", time.Hour)))

		got, err := s.Get(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RetentionOneHour, got.Retention)
		assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))
		assert.Equal(t, []byte{0x01, 0x02}, got.Record.Ciphertext)
		require.Len(t, got.AccessLog, 1)
		assert.Equal(t, models.ActionStore, got.AccessLog[0].Action)
	})

	t.Run("create on an existing session conflicts", func(t *testing.T) {
		reset()
		s := newStore()
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, entry("sess-1", time.Hour)))
		err := s.Create(ctx, entry("sess-1", time.Hour))
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("get on a missing session is not found", func(t *testing.T) {
		reset()
		_, err := newStore().Get(context.Background(), "missing")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("append event extends the log in order", func(t *testing.T) {
		reset()
		s := newStore()
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, entry("sess-1", time.Hour)))
		require.NoError(t, s.AppendEvent(ctx, "sess-1", models.AccessEvent{
			Timestamp: now, Action: models.ActionRetrieve, ActorHash: "actor", Success: false, ErrorCode: "decryption_failed",
		}))
		require.NoError(t, s.AppendEvent(ctx, "sess-1", models.AccessEvent{
			Timestamp: now, Action: models.ActionRetrieve, ActorHash: "actor", Success: true,
		}))

		got, err := s.Get(ctx, "sess-1")
		require.NoError(t, err)
		require.Len(t, got.AccessLog, 3)
		assert.False(t, got.AccessLog[1].Success)
		assert.True(t, got.AccessLog[2].Success)
		assert.Equal(t, 1, got.FailedRetrievals())
	})

	t.Run("append event on a missing session is not found", func(t *testing.T) {
		reset()
		err := newStore().AppendEvent(context.Background(), "missing", models.AccessEvent{Action: models.ActionRetrieve})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("delete removes the entry and reports missing ones", func(t *testing.T) {
		reset()
		s := newStore()
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, entry("sess-1", time.Hour)))
		require.NoError(t, s.Delete(ctx, "sess-1"))

		_, err := s.Get(ctx, "sess-1")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "sess-1"), sentinel.ErrNotFound)
	})

	t.Run("list expired returns only entries past their expiry", func(t *testing.T) {
		reset()
		s := newStore()
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, entry("short", time.Minute)))
		require.NoError(t, s.Create(ctx, entry("long", 2*time.Hour)))

		ids, err := s.ListExpired(ctx, now.Add(30*time.Minute))
		require.NoError(t, err)
		assert.ElementsMatch(t, []domain.SessionID{"short"}, ids)

		ids, err = s.ListExpired(ctx, now.Add(time.Minute))
		require.NoError(t, err)
		assert.Empty(t, ids, "an entry is still alive exactly at its expiry")
	})
}
