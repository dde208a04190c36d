// Package pipeline turns a raw document into anonymized text that is safe to
// hand to downstream analysis, storing the detected values for later
// consent-gated personalization.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	consentmodels "piiguard/internal/consent/models"
	"piiguard/internal/detector"
	pipelinemetrics "piiguard/internal/pipeline/metrics"
	vaultmodels "piiguard/internal/vault/models"
	"piiguard/pkg/domain"
	dErrors "piiguard/pkg/domain-errors"
	"piiguard/pkg/platform/audit"
	"piiguard/pkg/requestcontext"
)

// Detector finds and replaces sensitive spans.
type Detector interface {
	Detect(text string) (*detector.Result, error)
	Validate(anonymized string) error
}

// Vault stores detected items under a capability key.
type Vault interface {
	Store(ctx context.Context, sessionID domain.SessionID, items []detector.Item, retention domain.Retention) (*vaultmodels.Receipt, error)
	Purge(ctx context.Context, sessionID domain.SessionID) error
}

// ConsentReader supplies the retention a session agreed to.
type ConsentReader interface {
	Current(ctx context.Context, sessionID domain.SessionID) (*consentmodels.Record, error)
}

// Service runs documents through detection, storage and validation.
type Service struct {
	detector Detector
	vault    Vault
	consent  ConsentReader
	auditor  audit.Emitter
	metrics  *pipelinemetrics.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithConsent lets recorded consent choose the retention when a document
// does not carry one.
func WithConsent(c ConsentReader) Option {
	return func(s *Service) { s.consent = c }
}

func WithAuditor(a audit.Emitter) Option {
	return func(s *Service) { s.auditor = a }
}

func WithMetrics(m *pipelinemetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(d Detector, v Vault, opts ...Option) (*Service, error) {
	if d == nil {
		return nil, errors.New("detector is required")
	}
	if v == nil {
		return nil, errors.New("vault is required")
	}
	s := &Service{
		detector: d,
		vault:    v,
		tracer:   otel.Tracer("piiguard/pipeline"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Process detects and anonymizes doc, stores the detected items when there
// are any, and validates the output before returning it. A document whose
// anonymized text still contains sensitive data is never returned and its
// stored entry is purged.
func (s *Service) Process(ctx context.Context, doc Document) (*Outcome, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "pipeline.Process")
	defer span.End()

	out, err := s.process(ctx, doc)
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	} else {
		span.SetAttributes(
			attribute.Int("piiguard.items", out.ItemCount),
			attribute.Bool("piiguard.stored", out.CapabilityKey != ""),
		)
	}
	if s.metrics != nil {
		s.metrics.ObserveDocument(outcome, start, len(doc.Text))
	}
	return out, err
}

func (s *Service) process(ctx context.Context, doc Document) (*Outcome, error) {
	if doc.SessionID.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "session id is required")
	}
	if doc.Retention != "" && !doc.Retention.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid retention")
	}
	track := newTracker()

	result, err := s.detector.Detect(doc.Text)
	if err != nil {
		return nil, err
	}
	if err := track.advance(StateDetected); err != nil {
		return nil, err
	}
	if err := track.advance(StateAnonymized); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		for _, item := range result.Items {
			s.metrics.IncrementItems(item.Category.String())
		}
	}

	out := &Outcome{
		SessionID:      doc.SessionID,
		AnonymizedText: result.AnonymizedText,
		PIIDetected:    result.HasPII(),
		Confidence:     result.OverallConfidence,
		Categories:     result.Categories(),
		ItemCount:      len(result.Items),
	}

	stored := false
	if result.HasPII() {
		retention := s.retention(ctx, doc)
		receipt, err := s.vault.Store(ctx, doc.SessionID, result.Items, retention)
		if err != nil {
			return nil, err
		}
		stored = true
		out.CapabilityKey = receipt.CapabilityKey
		out.ExpiresAt = receipt.ExpiresAt
		out.Retention = retention
		if err := track.advance(StateEncryptedStored); err != nil {
			return nil, err
		}
	}

	if err := s.detector.Validate(result.AnonymizedText); err != nil {
		s.block(ctx, doc.SessionID, stored, err)
		return nil, err
	}
	if err := track.advance(StateValidatedSafe); err != nil {
		return nil, err
	}
	out.State = track.state
	out.Path = track.path

	s.emit(ctx, audit.EventDocumentProcessed, doc.SessionID, true, "",
		fmt.Sprintf("items=%d stored=%t", out.ItemCount, stored))
	s.logger.InfoContext(ctx, "document processed",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", doc.SessionID.String(),
		"items", out.ItemCount,
		"stored", stored,
	)
	return out, nil
}

// retention picks the document's retention, then the recorded consent, then
// session-only.
func (s *Service) retention(ctx context.Context, doc Document) domain.Retention {
	if doc.Retention != "" {
		return doc.Retention
	}
	if s.consent == nil {
		return domain.RetentionSessionOnly
	}
	rec, err := s.consent.Current(ctx, doc.SessionID)
	if err != nil {
		s.logger.WarnContext(ctx, "consent unavailable, using session-only retention",
			"session_id", doc.SessionID.String(),
			"error", err,
		)
		return domain.RetentionSessionOnly
	}
	return rec.Retention
}

func (s *Service) block(ctx context.Context, sessionID domain.SessionID, stored bool, cause error) {
	if s.metrics != nil {
		s.metrics.IncrementBlocked()
	}
	if stored {
		if err := s.vault.Purge(ctx, sessionID); err != nil && !dErrors.HasCode(err, dErrors.CodeNotFoundOrExpired) {
			s.logger.ErrorContext(ctx, "failed to purge entry of blocked document",
				"session_id", sessionID.String(),
				"error", err,
			)
		}
	}
	s.emit(ctx, audit.EventOutputBlocked, sessionID, false, string(dErrors.CodeOf(cause)), "")
	s.logger.ErrorContext(ctx, "anonymized output blocked",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", sessionID.String(),
		"error", cause,
	)
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, sessionID domain.SessionID, success bool, code, detail string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Event{
		SessionID: sessionID,
		Action:    string(action),
		Success:   success,
		ErrorCode: code,
		RequestID: requestcontext.RequestID(ctx),
		Detail:    detail,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", string(action), "error", err)
	}
}
