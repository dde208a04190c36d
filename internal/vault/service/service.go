// Package service implements the secure store: encrypted, time-bounded
// entries keyed by session, with an access log and a capability key that is
// handed out once and never persisted.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"piiguard/internal/detector"
	"piiguard/internal/sealer"
	vaultmetrics "piiguard/internal/vault/metrics"
	"piiguard/internal/vault/models"
	"piiguard/internal/vault/store"
	"piiguard/pkg/domain"
	dErrors "piiguard/pkg/domain-errors"
	"piiguard/pkg/platform/audit"
	"piiguard/pkg/platform/privacy"
	"piiguard/pkg/platform/sentinel"
	"piiguard/pkg/requestcontext"
	"piiguard/pkg/secrets"
)

// DefaultMaxFailedRetrievals is how many failed decryptions an entry survives.
const DefaultMaxFailedRetrievals = 5

// Sealer encrypts and decrypts item lists.
type Sealer interface {
	SealItems(ctx context.Context, items []detector.Item, secret, sessionID string) (*sealer.Record, error)
	OpenItems(ctx context.Context, rec *sealer.Record, secret, sessionID string) ([]detector.Item, error)
}

// Service is the secure store.
type Service struct {
	store      store.Store
	sealer     Sealer
	auditor    audit.Emitter
	hasher     *privacy.Hasher
	metrics    *vaultmetrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
	newKey     func() (string, error)
	sessionTTL time.Duration
	maxFailed  int
	locks      sessionLocks
}

// Option configures the Service.
type Option func(*Service)

func WithAuditor(a audit.Emitter) Option {
	return func(s *Service) { s.auditor = a }
}

func WithHasher(h *privacy.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

func WithMetrics(m *vaultmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithKeyGenerator replaces secrets.Generate.
func WithKeyGenerator(fn func() (string, error)) Option {
	return func(s *Service) { s.newKey = fn }
}

// WithSessionTTL sets the window used for session-only retention.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sessionTTL = d
		}
	}
}

// WithMaxFailedRetrievals sets how many failed decryptions purge an entry.
// Zero disables the lockout.
func WithMaxFailedRetrievals(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxFailed = n
		}
	}
}

func New(st store.Store, sl Sealer, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("vault store is required")
	}
	if sl == nil {
		return nil, errors.New("sealer is required")
	}
	s := &Service{
		store:      st,
		sealer:     sl,
		logger:     slog.Default(),
		now:        time.Now,
		newKey:     secrets.Generate,
		sessionTTL: domain.DefaultSessionOnlyTTL,
		maxFailed:  DefaultMaxFailedRetrievals,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

var errNotFoundOrExpired = dErrors.New(dErrors.CodeNotFoundOrExpired, "no live entry for session")

// Store encrypts items under a freshly minted capability key and keeps them
// for the retention window, capped at domain.MaxRetention. The returned key
// is the only way to read the entry back.
func (s *Service) Store(ctx context.Context, sessionID domain.SessionID, items []detector.Item, retention domain.Retention) (*models.Receipt, error) {
	start := time.Now()
	if sessionID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "session id is required")
	}
	if len(items) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "no items to store")
	}
	if !retention.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid retention")
	}

	key, err := s.newKey()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryptionFailed, "failed to mint capability key")
	}
	// Key derivation runs outside the session lock.
	record, err := s.sealer.SealItems(ctx, items, key, sessionID.String())
	if err != nil {
		return nil, err
	}

	var receipt *models.Receipt
	err = s.locks.run(ctx, sessionID, func() error {
		now := s.now()
		existing, err := s.store.Get(ctx, sessionID)
		switch {
		case err == nil && !existing.IsExpired(now):
			return dErrors.New(dErrors.CodeConflict, "session already has stored data")
		case err == nil:
			if err := s.destroy(ctx, existing, models.ActionAutoCleanup, models.ActorSystem, "expired", now); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear expired entry")
			}
		case !errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read entry")
		}

		entry := &models.Entry{
			SessionID: sessionID,
			Record:    record,
			Retention: retention,
			CreatedAt: now,
			ExpiresAt: now.Add(retention.Window(s.sessionTTL)),
			AccessLog: []models.AccessEvent{{
				Timestamp: now,
				Action:    models.ActionStore,
				ActorHash: s.actor(ctx),
				Success:   true,
			}},
		}
		if err := s.store.Create(ctx, entry); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "session already has stored data")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store entry")
		}
		receipt = &models.Receipt{
			SessionID:     sessionID,
			CapabilityKey: key,
			CreatedAt:     entry.CreatedAt,
			ExpiresAt:     entry.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementStored()
		s.metrics.ObserveStore(start)
	}
	s.emit(ctx, audit.EventEntryStored, sessionID, true, "", fmt.Sprintf("items=%d retention=%s", len(items), retention))
	s.logger.InfoContext(ctx, "vault entry stored",
		"session_id", sessionID.String(),
		"items", len(items),
		"retention", retention.String(),
		"expires_at", receipt.ExpiresAt,
	)
	return receipt, nil
}

// Retrieve decrypts the items stored for sessionID.
func (s *Service) Retrieve(ctx context.Context, sessionID domain.SessionID, capabilityKey string) ([]detector.Item, error) {
	lookup, err := s.Lookup(ctx, sessionID, capabilityKey)
	if err != nil {
		return nil, err
	}
	return lookup.Items, nil
}

// Lookup decrypts the entry for sessionID and returns it with its lifecycle
// timestamps. Absent or expired entries fail with CodeNotFoundOrExpired and
// an expired entry is purged on the way. A wrong key fails with
// CodeDecryptionFailed; repeated failures purge the entry.
func (s *Service) Lookup(ctx context.Context, sessionID domain.SessionID, capabilityKey string) (*models.Lookup, error) {
	start := time.Now()
	var lookup *models.Lookup
	err := s.locks.run(ctx, sessionID, func() error {
		now := s.now()
		entry, err := s.liveEntry(ctx, sessionID, now)
		if err != nil {
			return err
		}

		items, openErr := s.open(ctx, entry, capabilityKey)
		if openErr != nil {
			return s.failRetrieval(ctx, entry, now)
		}

		if err := s.store.AppendEvent(ctx, sessionID, models.AccessEvent{
			Timestamp: now,
			Action:    models.ActionRetrieve,
			ActorHash: s.actor(ctx),
			Success:   true,
		}); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return errNotFoundOrExpired
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record access")
		}
		lookup = &models.Lookup{
			SessionID: sessionID,
			Items:     items,
			Retention: entry.Retention,
			CreatedAt: entry.CreatedAt,
			ExpiresAt: entry.ExpiresAt,
		}
		return nil
	})
	if s.metrics != nil {
		s.metrics.ObserveRetrieve(start)
		s.metrics.IncrementRetrieval(retrievalOutcome(err))
	}
	if err != nil {
		return nil, err
	}
	s.emit(ctx, audit.EventEntryRetrieved, sessionID, true, "", fmt.Sprintf("items=%d", len(lookup.Items)))
	return lookup, nil
}

func retrievalOutcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(dErrors.CodeOf(err))
}

func (s *Service) open(ctx context.Context, entry *models.Entry, capabilityKey string) ([]detector.Item, error) {
	if !secrets.LooksValid(capabilityKey) {
		return nil, errors.New("malformed capability key")
	}
	return s.sealer.OpenItems(ctx, entry.Record, capabilityKey, entry.SessionID.String())
}

// failRetrieval logs a failed decryption against the entry and purges it once
// the failure budget is spent. Callers hold the session lock.
func (s *Service) failRetrieval(ctx context.Context, entry *models.Entry, now time.Time) error {
	errDecrypt := dErrors.New(dErrors.CodeDecryptionFailed, "unable to decrypt stored data")
	actor := s.actor(ctx)

	if err := s.store.AppendEvent(ctx, entry.SessionID, models.AccessEvent{
		Timestamp: now,
		Action:    models.ActionRetrieve,
		ActorHash: actor,
		Success:   false,
		ErrorCode: string(dErrors.CodeDecryptionFailed),
	}); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.ErrorContext(ctx, "failed to record failed retrieval",
			"session_id", entry.SessionID.String(),
			"error", err,
		)
	}
	s.emit(ctx, audit.EventRetrievalFailed, entry.SessionID, false, string(dErrors.CodeDecryptionFailed), "")

	failures := entry.FailedRetrievals() + 1
	if s.maxFailed > 0 && failures >= s.maxFailed {
		if err := s.destroy(ctx, entry, models.ActionPurge, models.ActorSystem, "lockout", now); err != nil {
			s.logger.ErrorContext(ctx, "failed to purge locked-out entry",
				"session_id", entry.SessionID.String(),
				"error", err,
			)
		} else {
			if s.metrics != nil {
				s.metrics.IncrementLockout()
			}
			s.emit(ctx, audit.EventRetrievalLockout, entry.SessionID, true, "", fmt.Sprintf("failures=%d", failures))
			s.logger.WarnContext(ctx, "vault entry purged after repeated failed retrievals",
				"session_id", entry.SessionID.String(),
				"failures", failures,
			)
		}
	}
	return errDecrypt
}

// liveEntry returns the entry if it exists and has not expired. An expired
// entry is purged. Callers hold the session lock.
func (s *Service) liveEntry(ctx context.Context, sessionID domain.SessionID, now time.Time) (*models.Entry, error) {
	entry, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, errNotFoundOrExpired
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read entry")
	}
	if entry.IsExpired(now) {
		if err := s.destroy(ctx, entry, models.ActionPurge, models.ActorSystem, "expired", now); err != nil {
			s.logger.ErrorContext(ctx, "failed to purge expired entry",
				"session_id", sessionID.String(),
				"error", err,
			)
		} else {
			s.emit(ctx, audit.EventEntryExpired, sessionID, true, "", "")
		}
		return nil, errNotFoundOrExpired
	}
	return entry, nil
}

// Purge destroys the entry for sessionID.
func (s *Service) Purge(ctx context.Context, sessionID domain.SessionID) error {
	return s.locks.run(ctx, sessionID, func() error {
		now := s.now()
		entry, err := s.store.Get(ctx, sessionID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return errNotFoundOrExpired
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read entry")
		}
		if err := s.destroy(ctx, entry, models.ActionPurge, s.actor(ctx), "purge", now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge entry")
		}
		s.emit(ctx, audit.EventEntryPurged, sessionID, true, "", "")
		return nil
	})
}

// destroy appends the final access event and deletes the entry. A concurrent
// disappearance counts as success. Callers hold the session lock.
func (s *Service) destroy(ctx context.Context, entry *models.Entry, action models.Action, actor, reason string, now time.Time) error {
	err := s.store.AppendEvent(ctx, entry.SessionID, models.AccessEvent{
		Timestamp: now,
		Action:    action,
		ActorHash: actor,
		Success:   true,
	})
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	if err := s.store.Delete(ctx, entry.SessionID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncrementPurged(reason, now.Sub(entry.CreatedAt))
	}
	return nil
}

// Sweep removes every expired entry and reports how many were cleaned and how
// many failed. It is safe to run concurrently with other operations.
func (s *Service) Sweep(ctx context.Context) models.SweepStats {
	start := time.Now()
	var stats models.SweepStats

	expired, err := s.store.ListExpired(ctx, s.now())
	if err != nil {
		stats.Errors++
		s.logger.ErrorContext(ctx, "sweep: failed to list expired entries", "error", err)
	}
	for _, sessionID := range expired {
		cleaned, err := s.sweepOne(ctx, sessionID)
		switch {
		case err != nil:
			stats.Errors++
			s.logger.ErrorContext(ctx, "sweep: failed to remove entry",
				"session_id", sessionID.String(),
				"error", err,
			)
		case cleaned:
			stats.Cleaned++
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveSweep(start, stats.Cleaned, stats.Errors)
	}
	s.logger.InfoContext(ctx, "sweep complete", "cleaned", stats.Cleaned, "errors", stats.Errors)
	return stats
}

// sweepOne re-checks expiry under the session lock, since the entry may have
// been purged or replaced after it was listed.
func (s *Service) sweepOne(ctx context.Context, sessionID domain.SessionID) (bool, error) {
	cleaned := false
	err := s.locks.run(ctx, sessionID, func() error {
		now := s.now()
		entry, err := s.store.Get(ctx, sessionID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !entry.IsExpired(now) {
			return nil
		}
		if err := s.destroy(ctx, entry, models.ActionAutoCleanup, models.ActorSystem, "expired", now); err != nil {
			return err
		}
		cleaned = true
		return nil
	})
	if cleaned {
		s.emit(ctx, audit.EventEntryExpired, sessionID, true, "", "")
	}
	return cleaned, err
}

// AccessLog returns the access trail of a live entry.
func (s *Service) AccessLog(ctx context.Context, sessionID domain.SessionID) ([]models.AccessEvent, error) {
	entry, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, errNotFoundOrExpired
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read entry")
	}
	if entry.IsExpired(s.now()) {
		return nil, errNotFoundOrExpired
	}
	return entry.AccessLog, nil
}

func (s *Service) actor(ctx context.Context) string {
	if s.hasher == nil {
		return "unknown"
	}
	return s.hasher.ContextHash(ctx)
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, sessionID domain.SessionID, success bool, code, detail string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Event{
		SessionID: sessionID,
		Action:    string(action),
		ActorHash: s.actor(ctx),
		Success:   success,
		ErrorCode: code,
		RequestID: requestcontext.RequestID(ctx),
		Detail:    detail,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", string(action), "error", err)
	}
}
