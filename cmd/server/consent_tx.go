package main

import (
	"context"
	"database/sql"
	"time"

	consentservice "piiguard/internal/consent/service"
	consentstore "piiguard/internal/consent/store"
	dErrors "piiguard/pkg/domain-errors"
)

// consentPostgresTx runs each consent operation inside one SQL transaction so
// the record upsert and its history row commit together.
type consentPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newConsentPostgresTx(db *sql.DB) *consentPostgresTx {
	return &consentPostgresTx{db: db, timeout: consentservice.DefaultConsentTxTimeout}
}

func (t *consentPostgresTx) RunInTx(ctx context.Context, fn func(store consentservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(consentstore.NewPostgresTx(tx)); err != nil {
		return err
	}
	return tx.Commit()
}
