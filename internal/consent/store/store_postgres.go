package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"piiguard/internal/consent/models"
	"piiguard/internal/detector"
	"piiguard/pkg/domain"
	"piiguard/pkg/platform/sentinel"
)

// Schema creates the consent tables. consent_history keeps every decision so
// a user can see how their consent changed over time.
const Schema = `
CREATE TABLE IF NOT EXISTS consent_records (
	session_id     TEXT PRIMARY KEY,
	enabled        TEXT[]      NOT NULL DEFAULT '{}',
	withheld       TEXT[]      NOT NULL DEFAULT '{}',
	retention      TEXT        NOT NULL,
	recorded_at    TIMESTAMPTZ NOT NULL,
	source_hash    TEXT        NOT NULL DEFAULT '',
	policy_version TEXT        NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS consent_history (
	id             BIGSERIAL PRIMARY KEY,
	session_id     TEXT        NOT NULL,
	enabled        TEXT[]      NOT NULL DEFAULT '{}',
	retention      TEXT        NOT NULL,
	recorded_at    TIMESTAMPTZ NOT NULL,
	source_hash    TEXT        NOT NULL DEFAULT '',
	policy_version TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS consent_history_session_idx ON consent_history (session_id, recorded_at);
`

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists consent in PostgreSQL. It runs against either the
// pool or a single transaction.
type PostgresStore struct {
	q queryer
}

// NewPostgresStore runs statements directly on db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{q: db}
}

// NewPostgresTx runs statements inside tx.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{q: tx}
}

// EnsureSchema creates the consent tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create consent schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID domain.SessionID) (*models.Record, error) {
	var (
		enabled, withheld []string
		retention         string
		rec               models.Record
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT enabled, withheld, retention, recorded_at, source_hash, policy_version
		FROM consent_records WHERE session_id = $1`, sessionID.String(),
	).Scan(pq.Array(&enabled), pq.Array(&withheld), &retention, &rec.RecordedAt, &rec.SourceHash, &rec.PolicyVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read consent: %w", err)
	}
	rec.SessionID = sessionID
	rec.Retention = domain.Retention(retention)
	rec.Categories = make(models.Choices, len(enabled)+len(withheld))
	for _, c := range withheld {
		rec.Categories[detector.Category(c)] = false
	}
	for _, c := range enabled {
		rec.Categories[detector.Category(c)] = true
	}
	return &rec, nil
}

// Save upserts the current record and appends it to the history.
func (s *PostgresStore) Save(ctx context.Context, rec *models.Record) error {
	enabled, withheld := splitChoices(rec.Categories)
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO consent_records (session_id, enabled, withheld, retention, recorded_at, source_hash, policy_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			withheld = EXCLUDED.withheld,
			retention = EXCLUDED.retention,
			recorded_at = EXCLUDED.recorded_at,
			source_hash = EXCLUDED.source_hash,
			policy_version = EXCLUDED.policy_version`,
		rec.SessionID.String(), pq.Array(enabled), pq.Array(withheld), rec.Retention.String(),
		rec.RecordedAt, rec.SourceHash, rec.PolicyVersion,
	)
	if err != nil {
		return fmt.Errorf("save consent: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO consent_history (session_id, enabled, retention, recorded_at, source_hash, policy_version)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.SessionID.String(), pq.Array(enabled), rec.Retention.String(),
		rec.RecordedAt, rec.SourceHash, rec.PolicyVersion,
	)
	if err != nil {
		return fmt.Errorf("append consent history: %w", err)
	}
	return nil
}

// Delete removes the current record and its history.
func (s *PostgresStore) Delete(ctx context.Context, sessionID domain.SessionID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM consent_records WHERE session_id = $1`, sessionID.String())
	if err != nil {
		return fmt.Errorf("delete consent: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM consent_history WHERE session_id = $1`, sessionID.String()); err != nil {
		return fmt.Errorf("delete consent history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete consent: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// HistoryLen returns how many decisions were recorded for the session.
func (s *PostgresStore) HistoryLen(ctx context.Context, sessionID domain.SessionID) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT count(*) FROM consent_history WHERE session_id = $1`, sessionID.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count consent history: %w", err)
	}
	return n, nil
}

func splitChoices(c models.Choices) (enabled, withheld []string) {
	enabled, withheld = []string{}, []string{}
	for _, cat := range detector.Categories() {
		v, ok := c[cat]
		switch {
		case !ok:
		case v:
			enabled = append(enabled, cat.String())
		default:
			withheld = append(withheld, cat.String())
		}
	}
	return enabled, withheld
}
