package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"piiguard/internal/detector"
	"piiguard/internal/sealer"
	"piiguard/internal/vault/models"
	"piiguard/internal/vault/store"
	"piiguard/pkg/domain"
	dErrors "piiguard/pkg/domain-errors"
	"piiguard/pkg/platform/audit"
	"piiguard/pkg/platform/audit/publisher"
	auditmemory "piiguard/pkg/platform/audit/store/memory"
	"piiguard/pkg/platform/privacy"
	"piiguard/pkg/requestcontext"
	"piiguard/pkg/secrets"
)

// =============================================================================
// Vault Service Test Suite
// =============================================================================
// Justification for unit tests: expiry, lockout and sweep behaviour depend on
// an injected clock and on interleavings that HTTP-level tests cannot control.

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type VaultServiceSuite struct {
	suite.Suite
	ctx        context.Context
	clock      *fakeClock
	store      *store.InMemoryStore
	auditStore *auditmemory.InMemoryStore
	service    *Service
	items      []detector.Item
}

func TestVaultServiceSuite(t *testing.T) {
	suite.Run(t, new(VaultServiceSuite))
}

func (s *VaultServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithClientMetadata(context.Background(), "203.0.113.7", "Mozilla/5.0")
	s.clock = &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	s.store = store.NewInMemoryStore()
	s.auditStore = auditmemory.NewInMemoryStore()
	hasher, err := privacy.NewHasher([]byte("test-key"))
	s.Require().NoError(err)

	s.service, err = New(s.store, sealer.New(sealer.WithIterations(sealer.MinIterations)),
		WithClock(s.clock.Now),
		WithHasher(hasher),
		WithAuditor(publisher.NewPublisher(s.auditStore)),
		WithSessionTTL(30*time.Minute),
		WithMaxFailedRetrievals(3),
	)
	s.Require().NoError(err)

	s.items = []detector.Item{
		{Category: detector.CategoryName, RawValue: "Jane Smith", Start: 8, End: 18, Confidence: 0.6, Token: "[NAME_1]"},
		{Category: detector.CategoryEmail, RawValue: "jane@x.com", Start: 22, End: 32, Confidence: 0.95, Token: "[EMAIL_1]"},
	}
}

func (s *VaultServiceSuite) storeItems(id domain.SessionID, retention domain.Retention) *models.Receipt {
	s.T().Helper()
	receipt, err := s.service.Store(s.ctx, id, s.items, retention)
	s.Require().NoError(err)
	return receipt
}

func (s *VaultServiceSuite) auditActions(id domain.SessionID) []string {
	events, err := s.auditStore.ListBySession(context.Background(), id)
	s.Require().NoError(err)
	actions := make([]string, len(events))
	for i, ev := range events {
		actions[i] = ev.Action
	}
	return actions
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *VaultServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, sealer.New())
		s.ErrorContains(err, "vault store is required")
	})

	s.Run("nil sealer returns error", func() {
		_, err := New(store.NewInMemoryStore(), nil)
		s.ErrorContains(err, "sealer is required")
	})
}

// =============================================================================
// Store Tests
// =============================================================================

func (s *VaultServiceSuite) TestStore() {
	s.Run("returns a capability key and a capped expiry", func() {
		receipt := s.storeItems("sess-store", domain.RetentionOneHour)
		s.True(secrets.LooksValid(receipt.CapabilityKey))
		s.Equal(s.clock.Now(), receipt.CreatedAt)
		s.Equal(s.clock.Now().Add(time.Hour), receipt.ExpiresAt)
	})

	s.Run("session-only retention uses the session window", func() {
		receipt := s.storeItems("sess-short", domain.RetentionSessionOnly)
		s.Equal(30*time.Minute, receipt.ExpiresAt.Sub(receipt.CreatedAt))
	})

	s.Run("longest retention never exceeds the ceiling", func() {
		receipt := s.storeItems("sess-long", domain.Retention24Hours)
		s.LessOrEqual(receipt.ExpiresAt.Sub(receipt.CreatedAt), domain.MaxRetention)
	})

	s.Run("entry holds no plaintext and a store event", func() {
		s.storeItems("sess-plain", domain.RetentionOneHour)
		entry, err := s.store.Get(s.ctx, "sess-plain")
		s.Require().NoError(err)
		s.NotContains(string(entry.Record.Ciphertext), "jane@x.com")
		s.Require().Len(entry.AccessLog, 1)
		s.Equal(models.ActionStore, entry.AccessLog[0].Action)
		s.NotEmpty(entry.AccessLog[0].ActorHash)
		s.NotContains(entry.AccessLog[0].ActorHash, "203.0.113.7")
	})

	s.Run("empty item list is rejected", func() {
		_, err := s.service.Store(s.ctx, "sess-empty", nil, domain.RetentionOneHour)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("live entry conflicts", func() {
		s.storeItems("sess-dup", domain.RetentionOneHour)
		_, err := s.service.Store(s.ctx, "sess-dup", s.items, domain.RetentionOneHour)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("key minting failure is an encryption failure", func() {
		svc, err := New(store.NewInMemoryStore(), sealer.New(sealer.WithIterations(sealer.MinIterations)),
			WithKeyGenerator(func() (string, error) { return "", errors.New("entropy exhausted") }),
		)
		s.Require().NoError(err)
		_, err = svc.Store(s.ctx, "sess-nokey", s.items, domain.RetentionOneHour)
		s.True(dErrors.HasCode(err, dErrors.CodeEncryptionFailed))
	})

	s.Run("expired entry is replaced", func() {
		s.storeItems("sess-replace", domain.RetentionSessionOnly)
		s.clock.Advance(31 * time.Minute)
		receipt := s.storeItems("sess-replace", domain.RetentionSessionOnly)
		items, err := s.service.Retrieve(s.ctx, "sess-replace", receipt.CapabilityKey)
		s.Require().NoError(err)
		s.Equal(s.items, items)
	})
}

// =============================================================================
// Retrieve Tests
// =============================================================================

func (s *VaultServiceSuite) TestRetrieve() {
	s.Run("round trip returns the stored items and logs access", func() {
		receipt := s.storeItems("sess-rt", domain.RetentionOneHour)

		items, err := s.service.Retrieve(s.ctx, "sess-rt", receipt.CapabilityKey)
		s.Require().NoError(err)
		s.Equal(s.items, items)

		log, err := s.service.AccessLog(s.ctx, "sess-rt")
		s.Require().NoError(err)
		s.Require().Len(log, 2)
		s.Equal(models.ActionRetrieve, log[1].Action)
		s.True(log[1].Success)
		s.Equal([]string{string(audit.EventEntryStored), string(audit.EventEntryRetrieved)}, s.auditActions("sess-rt"))
	})

	s.Run("wrong key fails closed and is logged", func() {
		s.storeItems("sess-wrong", domain.RetentionOneHour)
		other, err := secrets.Generate()
		s.Require().NoError(err)

		_, err = s.service.Retrieve(s.ctx, "sess-wrong", other)
		s.True(dErrors.HasCode(err, dErrors.CodeDecryptionFailed))

		log, err := s.service.AccessLog(s.ctx, "sess-wrong")
		s.Require().NoError(err)
		last := log[len(log)-1]
		s.Equal(models.ActionRetrieve, last.Action)
		s.False(last.Success)
		s.Equal(string(dErrors.CodeDecryptionFailed), last.ErrorCode)
	})

	s.Run("malformed key is logged as a failed retrieval and keeps the entry", func() {
		receipt := s.storeItems("sess-malformed", domain.RetentionOneHour)
		_, err := s.service.Retrieve(s.ctx, "sess-malformed", "not-a-key")
		s.True(dErrors.HasCode(err, dErrors.CodeDecryptionFailed))

		log, err := s.service.AccessLog(s.ctx, "sess-malformed")
		s.Require().NoError(err)
		s.Require().Len(log, 2)
		s.Equal(models.ActionRetrieve, log[1].Action)
		s.False(log[1].Success)
		s.Equal(string(dErrors.CodeDecryptionFailed), log[1].ErrorCode)

		_, err = s.service.Retrieve(s.ctx, "sess-malformed", receipt.CapabilityKey)
		s.NoError(err)
	})

	s.Run("unknown session", func() {
		_, err := s.service.Retrieve(s.ctx, "sess-missing", "whatever")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFoundOrExpired))
	})

	s.Run("expired entry is reported absent and purged", func() {
		receipt := s.storeItems("sess-expire", domain.RetentionOneHour)
		s.clock.Advance(time.Hour + time.Second)

		_, err := s.service.Retrieve(s.ctx, "sess-expire", receipt.CapabilityKey)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFoundOrExpired))

		_, err = s.store.Get(s.ctx, "sess-expire")
		s.Error(err, "expired entry must be gone from the store")
		s.Contains(s.auditActions("sess-expire"), string(audit.EventEntryExpired))
	})

	s.Run("entry is alive exactly at its expiry instant", func() {
		receipt := s.storeItems("sess-edge", domain.RetentionOneHour)
		s.clock.Advance(time.Hour)
		_, err := s.service.Retrieve(s.ctx, "sess-edge", receipt.CapabilityKey)
		s.NoError(err)
	})
}

func (s *VaultServiceSuite) TestLockoutPurgesAfterRepeatedFailures() {
	receipt := s.storeItems("sess-lock", domain.RetentionOneHour)
	other, err := secrets.Generate()
	s.Require().NoError(err)

	for range 3 {
		_, err := s.service.Retrieve(s.ctx, "sess-lock", other)
		s.True(dErrors.HasCode(err, dErrors.CodeDecryptionFailed))
	}

	_, err = s.service.Retrieve(s.ctx, "sess-lock", receipt.CapabilityKey)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFoundOrExpired))
	s.Contains(s.auditActions("sess-lock"), string(audit.EventRetrievalLockout))
}

// =============================================================================
// Purge and Sweep Tests
// =============================================================================

func (s *VaultServiceSuite) TestPurge() {
	receipt := s.storeItems("sess-purge", domain.RetentionOneHour)

	s.Require().NoError(s.service.Purge(s.ctx, "sess-purge"))

	_, err := s.service.Retrieve(s.ctx, "sess-purge", receipt.CapabilityKey)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFoundOrExpired))

	err = s.service.Purge(s.ctx, "sess-purge")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFoundOrExpired))
	s.Contains(s.auditActions("sess-purge"), string(audit.EventEntryPurged))
}

func (s *VaultServiceSuite) TestSweep() {
	s.storeItems("sess-short-1", domain.RetentionSessionOnly)
	s.storeItems("sess-short-2", domain.RetentionSessionOnly)
	live := s.storeItems("sess-day", domain.Retention24Hours)

	stats := s.service.Sweep(s.ctx)
	s.Equal(models.SweepStats{}, stats, "nothing has expired yet")

	s.clock.Advance(2 * time.Hour)
	stats = s.service.Sweep(s.ctx)
	s.Equal(2, stats.Cleaned)
	s.Equal(0, stats.Errors)
	s.Equal(1, s.store.Len())

	_, err := s.service.Retrieve(s.ctx, "sess-day", live.CapabilityKey)
	s.NoError(err)
}

type failingListStore struct {
	*store.InMemoryStore
}

func (f failingListStore) ListExpired(context.Context, time.Time) ([]domain.SessionID, error) {
	return nil, errors.New("backend unavailable")
}

func (s *VaultServiceSuite) TestSweepCountsErrors() {
	svc, err := New(failingListStore{store.NewInMemoryStore()}, sealer.New(sealer.WithIterations(sealer.MinIterations)))
	s.Require().NoError(err)

	stats := svc.Sweep(s.ctx)
	s.Equal(0, stats.Cleaned)
	s.Equal(1, stats.Errors)
}

func (s *VaultServiceSuite) TestRetrieveRacingSweep() {
	receipt := s.storeItems("sess-race", domain.RetentionSessionOnly)
	s.clock.Advance(29 * time.Minute)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i == 4 {
				s.clock.Advance(2 * time.Minute)
				s.service.Sweep(s.ctx)
				return
			}
			_, err := s.service.Retrieve(s.ctx, "sess-race", receipt.CapabilityKey)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	for err := range results {
		if err != nil {
			s.True(dErrors.HasCode(err, dErrors.CodeNotFoundOrExpired), "unexpected error: %v", err)
		}
	}
	_, err := s.store.Get(s.ctx, "sess-race")
	s.Error(err, "entry must be gone once the window has passed")
}
