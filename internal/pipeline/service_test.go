package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	consentmodels "piiguard/internal/consent/models"
	consentservice "piiguard/internal/consent/service"
	consentstore "piiguard/internal/consent/store"
	"piiguard/internal/detector"
	pipelinemetrics "piiguard/internal/pipeline/metrics"
	"piiguard/internal/sealer"
	vaultservice "piiguard/internal/vault/service"
	vaultstore "piiguard/internal/vault/store"
	"piiguard/pkg/domain"
	dErrors "piiguard/pkg/domain-errors"
	"piiguard/pkg/platform/audit"
	"piiguard/pkg/platform/audit/publisher"
	auditmemory "piiguard/pkg/platform/audit/store/memory"
)

// =============================================================================
// Pipeline Test Suite
// =============================================================================
// Justification for unit tests: the end-to-end path from raw text to stored
// items and validated output runs here against real components with a fixed clock.

type PipelineSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	vault      *vaultservice.Service
	vaultStore *vaultstore.InMemoryStore
	consent    *consentservice.Service
	auditStore *auditmemory.InMemoryStore
	metrics    *pipelinemetrics.Metrics
	service    *Service
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	s.auditStore = auditmemory.NewInMemoryStore()
	auditor := publisher.NewPublisher(s.auditStore)
	s.vaultStore = vaultstore.NewInMemoryStore()

	var err error
	s.vault, err = vaultservice.New(s.vaultStore,
		sealer.New(sealer.WithIterations(sealer.MinIterations)),
		vaultservice.WithClock(clock),
		vaultservice.WithAuditor(auditor),
		vaultservice.WithSessionTTL(30*time.Minute),
	)
	s.Require().NoError(err)
	s.consent, err = consentservice.New(consentservice.NewInMemoryTx(consentstore.NewInMemoryStore()), s.vault,
		consentservice.WithClock(clock))
	s.Require().NoError(err)

	s.metrics = pipelinemetrics.New(prometheus.NewRegistry())
	s.service = s.newService(detector.New())
}

func (s *PipelineSuite) newService(d Detector) *Service {
	svc, err := New(d, s.vault,
		WithConsent(s.consent),
		WithAuditor(publisher.NewPublisher(s.auditStore)),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	return svc
}

func (s *PipelineSuite) auditActions(id domain.SessionID) []string {
	events, err := s.auditStore.ListBySession(context.Background(), id)
	s.Require().NoError(err)
	actions := make([]string, len(events))
	for i, ev := range events {
		actions[i] = ev.Action
	}
	return actions
}

func (s *PipelineSuite) TestNew() {
	_, err := New(nil, s.vault)
	s.ErrorContains(err, "detector is required")
	_, err = New(detector.New(), nil)
	s.ErrorContains(err, "vault is required")
}

// =============================================================================
// Processing Tests
// =============================================================================

func (s *PipelineSuite) TestProcessContactSentence() {
	out, err := s.service.Process(s.ctx, Document{
		SessionID: "sess-a",
		Text:      "Contact Jane Smith at jane@x.com, premium $450/month",
		Retention: domain.RetentionOneHour,
	})
	s.Require().NoError(err)

	s.Equal("Contact [NAME_1] at [EMAIL_1], premium [AMOUNT_1]/month", out.AnonymizedText)
	s.True(out.PIIDetected)
	s.Equal(3, out.ItemCount)
	s.NotContains(out.AnonymizedText, "jane@x.com")
	s.NotContains(out.AnonymizedText, "Jane Smith")
	s.NotEmpty(out.CapabilityKey)
	s.Equal(s.now.Add(time.Hour), out.ExpiresAt)
	s.Equal(StateValidatedSafe, out.State)
	s.Equal([]State{StateRaw, StateDetected, StateAnonymized, StateEncryptedStored, StateValidatedSafe}, out.Path)

	items, err := s.vault.Retrieve(s.ctx, "sess-a", out.CapabilityKey)
	s.Require().NoError(err)
	s.Len(items, 3)

	s.Contains(s.auditActions("sess-a"), string(audit.EventDocumentProcessed))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.ItemsDetected.WithLabelValues("email")))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Documents.WithLabelValues("ok")))
}

func (s *PipelineSuite) TestProcessAdjacentValues() {
	cases := []struct {
		name       string
		text       string
		anonymized string
	}{
		{"card after a year", "Ref 1980 4111 1111 1111 1111", "Ref 1980 [BANK_DETAILS_1]"},
		{"name cut short by an email", "Write to Mary Jane Smith@x.com today", "Write to [NAME_1] [EMAIL_1] today"},
		{"name glued to an amount", "$450Jane Smith", "[AMOUNT_1][NAME_1]"},
	}

	for i, tc := range cases {
		s.Run(tc.name, func() {
			id := domain.SessionID(fmt.Sprintf("sess-adjacent-%d", i))
			out, err := s.service.Process(s.ctx, Document{SessionID: id, Text: tc.text, Retention: domain.RetentionOneHour})
			s.Require().NoError(err)

			s.True(out.PIIDetected)
			s.Equal(tc.anonymized, out.AnonymizedText)
			s.Equal(StateValidatedSafe, out.State)
		})
	}
}

func (s *PipelineSuite) TestProcessWithoutPIISkipsStorage() {
	out, err := s.service.Process(s.ctx, Document{SessionID: "sess-clean", Text: "the weather is mild today"})
	s.Require().NoError(err)

	s.False(out.PIIDetected)
	s.Equal(1.0, out.Confidence)
	s.Empty(out.CapabilityKey)
	s.True(out.ExpiresAt.IsZero())
	s.Equal([]State{StateRaw, StateDetected, StateAnonymized, StateValidatedSafe}, out.Path)
	s.Equal(0, s.vaultStore.Len())
}

func (s *PipelineSuite) TestRetentionFallsBackToConsent() {
	s.Run("recorded consent decides when the document carries none", func() {
		_, err := s.consent.RecordConsent(s.ctx, "sess-24", consentmodels.Choices{}, domain.Retention24Hours)
		s.Require().NoError(err)

		out, err := s.service.Process(s.ctx, Document{SessionID: "sess-24", Text: "mail jane@x.com"})
		s.Require().NoError(err)
		s.Equal(domain.Retention24Hours, out.Retention)
		s.Equal(s.now.Add(24*time.Hour), out.ExpiresAt)
	})

	s.Run("no consent means session-only", func() {
		out, err := s.service.Process(s.ctx, Document{SessionID: "sess-so", Text: "mail jane@x.com"})
		s.Require().NoError(err)
		s.Equal(domain.RetentionSessionOnly, out.Retention)
		s.Equal(s.now.Add(30*time.Minute), out.ExpiresAt)
	})
}

func (s *PipelineSuite) TestProcessErrors() {
	s.Run("invalid text fails detection", func() {
		_, err := s.service.Process(s.ctx, Document{SessionID: "sess-bad", Text: "a\x00b"})
		s.True(dErrors.HasCode(err, dErrors.CodeDetectionFailed))
		s.Equal(0, s.vaultStore.Len())
	})

	s.Run("missing session id", func() {
		_, err := s.service.Process(s.ctx, Document{Text: "hello"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("invalid retention", func() {
		_, err := s.service.Process(s.ctx, Document{SessionID: "sess-r", Text: "hello", Retention: "forever"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("second document for a live session conflicts", func() {
		_, err := s.service.Process(s.ctx, Document{SessionID: "sess-dup", Text: "mail jane@x.com"})
		s.Require().NoError(err)
		_, err = s.service.Process(s.ctx, Document{SessionID: "sess-dup", Text: "mail john@x.com"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *PipelineSuite) TestUnsafeOutputIsBlockedAndPurged() {
	svc := s.newService(leakyDetector{})

	out, err := svc.Process(s.ctx, Document{SessionID: "sess-leak", Text: "mail jane@x.com", Retention: domain.RetentionOneHour})
	s.Nil(out)
	s.True(dErrors.HasCode(err, dErrors.CodeUnsafeOutput))
	s.Equal(0, s.vaultStore.Len(), "stored entry must be purged when output is blocked")
	s.Contains(s.auditActions("sess-leak"), string(audit.EventOutputBlocked))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.OutputsBlocked))
}

// leakyDetector anonymizes nothing but claims to have found an item, so
// validation must catch the leak.
type leakyDetector struct{}

func (leakyDetector) Detect(text string) (*detector.Result, error) {
	return &detector.Result{
		Items: []detector.Item{{
			Category: detector.CategoryEmail, RawValue: "jane@x.com",
			Start: strings.Index(text, "jane"), End: len(text), Confidence: 0.95, Token: "[EMAIL_1]",
		}},
		AnonymizedText:    text,
		OverallConfidence: 0.95,
	}, nil
}

func (leakyDetector) Validate(anonymized string) error {
	return detector.New().Validate(anonymized)
}
