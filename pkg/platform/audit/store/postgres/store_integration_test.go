//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piiguard/pkg/domain"
	audit "piiguard/pkg/platform/audit"
	txcontext "piiguard/pkg/platform/tx"
	"piiguard/pkg/testutil/containers"
)

func setup(t *testing.T) (*Store, *containers.PostgresContainer) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	s := New(pg.DB)
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, pg.TruncateTables(ctx, "audit_events"))
	return s, pg
}

func event(session string, action audit.AuditEvent, at time.Time) audit.Event {
	return audit.Event{
		ID:        uuid.New(),
		Timestamp: at,
		SessionID: domain.SessionID(session),
		Action:    string(action),
		Success:   true,
		RequestID: "req-1",
		Detail:    "items=2",
	}
}

func TestAppendAndListBySession(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	second := event("sess-a", audit.EventEntryRetrieved, base.Add(time.Minute))
	first := event("sess-a", audit.EventEntryStored, base)
	require.NoError(t, s.Append(ctx, second))
	require.NoError(t, s.Append(ctx, first))
	require.NoError(t, s.Append(ctx, event("sess-b", audit.EventEntryStored, base)))

	got, err := s.ListBySession(ctx, "sess-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID, "oldest first")
	assert.Equal(t, string(audit.EventEntryStored), got[0].Action)
	assert.Equal(t, audit.CategoryOperations, got[0].Category, "category derived from action")
	assert.Equal(t, "items=2", got[0].Detail)
	assert.True(t, base.Equal(got[0].Timestamp))
}

func TestAppendIsIdempotent(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()
	e := event("sess-dup", audit.EventEntryPurged, time.Now().UTC())
	require.NoError(t, s.Append(ctx, e))
	require.NoError(t, s.Append(ctx, e))

	got, err := s.ListBySession(ctx, "sess-dup")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAppendJoinsContextTransaction(t *testing.T) {
	s, pg := setup(t)
	ctx := context.Background()

	tx, err := pg.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.Append(txcontext.WithTx(ctx, tx), event("sess-tx", audit.EventEntryStored, time.Now().UTC())))
	require.NoError(t, tx.Rollback())

	got, err := s.ListBySession(ctx, "sess-tx")
	require.NoError(t, err)
	assert.Empty(t, got, "rolled back with the surrounding transaction")
}
