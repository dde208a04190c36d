package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"piiguard/pkg/domain"
	audit "piiguard/pkg/platform/audit"
	txcontext "piiguard/pkg/platform/tx"
)

// Store implements audit.Store on a PostgreSQL audit_events table. Writes join
// a transaction carried in the context when there is one.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          UUID PRIMARY KEY,
	category    TEXT        NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	session_id  TEXT        NOT NULL,
	action      TEXT        NOT NULL,
	actor_hash  TEXT        NOT NULL DEFAULT '',
	success     BOOLEAN     NOT NULL,
	error_code  TEXT        NOT NULL DEFAULT '',
	request_id  TEXT        NOT NULL DEFAULT '',
	detail      TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_events_session_idx ON audit_events (session_id, timestamp);
`

// EnsureSchema creates the audit table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts an audit event. Idempotent via ON CONFLICT DO NOTHING.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	// Always derive category from action - eventCategories map is the source of truth
	category := audit.AuditEvent(event.Action).Category()

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, session_id, action,
			actor_hash, success, error_code, request_id, detail
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		string(category),
		event.Timestamp,
		event.SessionID.String(),
		event.Action,
		event.ActorHash,
		event.Success,
		event.ErrorCode,
		event.RequestID,
		event.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListBySession returns events for a session, oldest first.
func (s *Store) ListBySession(ctx context.Context, sessionID domain.SessionID) ([]audit.Event, error) {
	query := `
		SELECT id, category, timestamp, session_id, action,
			   actor_hash, success, error_code, request_id, detail
		FROM audit_events
		WHERE session_id = $1
		ORDER BY timestamp ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// scanEvents scans multiple rows into audit.Event slice.
func (s *Store) scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			category  string
			sessionID string
			event     audit.Event
		)

		err := rows.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&sessionID,
			&event.Action,
			&event.ActorHash,
			&event.Success,
			&event.ErrorCode,
			&event.RequestID,
			&event.Detail,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = audit.EventCategory(category)
		event.SessionID = domain.SessionID(sessionID)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
