// Package service records per-session consent and uses it to gate
// re-insertion of personal data into anonymized text.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	consentmetrics "piiguard/internal/consent/metrics"
	"piiguard/internal/consent/models"
	"piiguard/internal/detector"
	vaultmodels "piiguard/internal/vault/models"
	"piiguard/pkg/domain"
	dErrors "piiguard/pkg/domain-errors"
	"piiguard/pkg/platform/audit"
	"piiguard/pkg/platform/privacy"
	"piiguard/pkg/platform/sentinel"
	"piiguard/pkg/requestcontext"
)

// DefaultPolicyVersion is stamped on records when the host sets none.
const DefaultPolicyVersion = "2024-01"

const (
	usageDisclosed = "Re-inserted only into personalized results shown to you. Automated analysis sees a placeholder."
	usageWithheld  = "Withheld. Automated analysis and personalized results only ever see a placeholder."
)

// Store persists one consent record per session.
type Store interface {
	Get(ctx context.Context, sessionID domain.SessionID) (*models.Record, error)
	Save(ctx context.Context, rec *models.Record) error
	Delete(ctx context.Context, sessionID domain.SessionID) error
}

// Vault is the secure store holding the encrypted items of a session.
type Vault interface {
	Lookup(ctx context.Context, sessionID domain.SessionID, capabilityKey string) (*vaultmodels.Lookup, error)
	Purge(ctx context.Context, sessionID domain.SessionID) error
}

// Service is the consent and personalization manager.
type Service struct {
	tx            ConsentStoreTx
	vault         Vault
	auditor       audit.Emitter
	hasher        *privacy.Hasher
	metrics       *consentmetrics.Metrics
	tracer        trace.Tracer
	logger        *slog.Logger
	now           func() time.Time
	policyVersion string
}

// Option configures the Service.
type Option func(*Service)

func WithAuditor(a audit.Emitter) Option {
	return func(s *Service) { s.auditor = a }
}

func WithHasher(h *privacy.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

func WithMetrics(m *consentmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithPolicyVersion sets the privacy policy version stamped on new records.
func WithPolicyVersion(v string) Option {
	return func(s *Service) {
		if v != "" {
			s.policyVersion = v
		}
	}
}

// New builds the service. tx and vault are required.
func New(tx ConsentStoreTx, vault Vault, opts ...Option) (*Service, error) {
	if tx == nil {
		return nil, errors.New("consent store tx is required")
	}
	if vault == nil {
		return nil, errors.New("vault is required")
	}
	s := &Service{
		tx:            tx,
		vault:         vault,
		logger:        slog.Default(),
		now:           time.Now,
		tracer:        otel.Tracer("piiguard/consent"),
		policyVersion: DefaultPolicyVersion,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RecordConsent stores or overwrites the session's consent with a fresh
// timestamp and a fingerprint of the requesting context.
func (s *Service) RecordConsent(ctx context.Context, sessionID domain.SessionID, choices models.Choices, retention domain.Retention) (*models.Record, error) {
	if sessionID.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "session id is required")
	}
	if !retention.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid retention")
	}
	for cat := range choices {
		if !cat.IsValid() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown category: "+cat.String())
		}
	}

	rec := &models.Record{
		SessionID:     sessionID,
		Categories:    choices.Clone(),
		Retention:     retention,
		RecordedAt:    s.now(),
		SourceHash:    s.sourceHash(ctx),
		PolicyVersion: s.policyVersion,
	}
	err := s.tx.RunInTx(withTxSession(ctx, sessionID), func(st Store) error {
		return st.Save(ctx, rec)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record consent",
			"session_id", sessionID.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		s.emit(ctx, audit.EventConsentRecorded, sessionID, false, string(dErrors.CodeConsentRecord), "")
		return nil, dErrors.Wrap(err, dErrors.CodeConsentRecord, "failed to record consent")
	}

	if s.metrics != nil {
		s.metrics.IncrementRecorded(retention.String())
	}
	s.emit(ctx, audit.EventConsentRecorded, sessionID, true, "", "enabled="+joinCategories(rec.Categories.Enabled()))
	return rec, nil
}

// Current returns the session's consent, or the default when none was recorded.
func (s *Service) Current(ctx context.Context, sessionID domain.SessionID) (*models.Record, error) {
	if sessionID.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "session id is required")
	}
	var rec *models.Record
	err := s.tx.RunInTx(withTxSession(ctx, sessionID), func(st Store) error {
		var err error
		rec, err = st.Get(ctx, sessionID)
		return err
	})
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Default(sessionID, s.policyVersion), nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConsentRecord, "failed to read consent")
	}
	return rec, nil
}

// Personalize replaces the tokens of enabled categories in anonymizedText with
// their original values. When choices is nil the recorded consent applies.
// Retrieval failures are returned unchanged so a failure is never mistaken for
// a document without personal data.
func (s *Service) Personalize(ctx context.Context, sessionID domain.SessionID, capabilityKey string, choices models.Choices, anonymizedText string) (*models.PersonalizationResult, error) {
	ctx, span := s.tracer.Start(ctx, "consent.Personalize")
	defer span.End()

	lookup, err := s.vault.Lookup(ctx, sessionID, capabilityKey)
	if err != nil {
		s.fail(span, err)
		s.observePersonalization(string(dErrors.CodeOf(err)), nil)
		return nil, err
	}
	if choices == nil {
		rec, err := s.Current(ctx, sessionID)
		if err != nil {
			s.logger.WarnContext(ctx, "consent unavailable, withholding all categories",
				"session_id", sessionID.String(), "error", err)
			rec = models.Default(sessionID, s.policyVersion)
		}
		choices = rec.Categories
	}

	result := personalize(lookup.Items, choices, anonymizedText)
	span.SetAttributes(
		attribute.Int("piiguard.items", len(lookup.Items)),
		attribute.Int("piiguard.disclosed_categories", len(result.DisclosedCategories)),
		attribute.Int("piiguard.withheld_categories", len(result.WithheldCategories)),
	)
	s.observePersonalization("ok", result.DisclosedCategories)
	s.emit(ctx, audit.EventPersonalized, sessionID, true, "", "disclosed="+joinCategories(result.DisclosedCategories))
	return result, nil
}

func personalize(items []detector.Item, choices models.Choices, text string) *models.PersonalizationResult {
	var (
		pairs     []string
		disclosed = map[detector.Category]bool{}
		withheld  = map[detector.Category]bool{}
	)
	for _, item := range items {
		if !choices.Allows(item.Category) {
			withheld[item.Category] = true
			continue
		}
		if item.Token == "" || !strings.Contains(text, item.Token) {
			continue
		}
		pairs = append(pairs, item.Token, item.RawValue)
		disclosed[item.Category] = true
	}
	if len(pairs) > 0 {
		// One pass, so a re-inserted value is never itself rewritten.
		text = strings.NewReplacer(pairs...).Replace(text)
	}

	result := &models.PersonalizationResult{
		Text:                text,
		DisclosedCategories: keys(disclosed),
		WithheldCategories:  keys(withheld),
	}
	result.PrivacyNote = models.PrivacyNote(result.DisclosedCategories, result.WithheldCategories)
	return result
}

// TransparencyReport explains, per detected category, what it is, how it is
// used under the current consent and when it will be deleted.
func (s *Service) TransparencyReport(ctx context.Context, sessionID domain.SessionID, capabilityKey string) (*models.TransparencyReport, error) {
	ctx, span := s.tracer.Start(ctx, "consent.TransparencyReport")
	defer span.End()

	lookup, err := s.vault.Lookup(ctx, sessionID, capabilityKey)
	if err != nil {
		s.fail(span, err)
		return nil, err
	}
	rec, err := s.Current(ctx, sessionID)
	if err != nil {
		s.logger.WarnContext(ctx, "consent unavailable, reporting defaults",
			"session_id", sessionID.String(), "error", err)
		rec = models.Default(sessionID, s.policyVersion)
	}

	counts := make(map[detector.Category]int)
	for _, item := range lookup.Items {
		counts[item.Category]++
	}
	report := &models.TransparencyReport{
		SessionID:     sessionID,
		Entries:       make([]models.TransparencyEntry, 0, len(counts)),
		Retention:     lookup.Retention,
		PolicyVersion: rec.PolicyVersion,
		GeneratedAt:   s.now(),
	}
	for _, cat := range detector.Categories() {
		n, ok := counts[cat]
		if !ok {
			continue
		}
		usage := usageWithheld
		if rec.Categories.Allows(cat) {
			usage = usageDisclosed
		}
		report.Entries = append(report.Entries, models.TransparencyEntry{
			Category:        cat,
			Description:     cat.Description(),
			Usage:           usage,
			Occurrences:     n,
			RetentionEndsAt: lookup.ExpiresAt,
		})
	}
	span.SetAttributes(attribute.Int("piiguard.categories", len(report.Entries)))
	s.emit(ctx, audit.EventTransparencyViewed, sessionID, true, "", "")
	return report, nil
}

// DeleteAll purges the session's stored entry and resets its consent to the
// default. Deleting a session with nothing stored still succeeds.
func (s *Service) DeleteAll(ctx context.Context, sessionID domain.SessionID) (*models.DeletionConfirmation, error) {
	if sessionID.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "session id is required")
	}

	purged := true
	if err := s.vault.Purge(ctx, sessionID); err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFoundOrExpired) {
			s.emit(ctx, audit.EventSessionDeleted, sessionID, false, string(dErrors.CodeOf(err)), "")
			return nil, err
		}
		purged = false
	}

	err := s.tx.RunInTx(withTxSession(ctx, sessionID), func(st Store) error {
		if err := st.Delete(ctx, sessionID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		s.emit(ctx, audit.EventSessionDeleted, sessionID, false, string(dErrors.CodeConsentRecord), "")
		return nil, dErrors.Wrap(err, dErrors.CodeConsentRecord, "failed to reset consent")
	}

	confirmation := &models.DeletionConfirmation{
		SessionID:   sessionID,
		Code:        "DEL-" + strings.ToUpper(uuid.NewString()),
		EntryPurged: purged,
		DeletedAt:   s.now(),
	}
	if s.metrics != nil {
		s.metrics.IncrementDeletion()
	}
	s.emit(ctx, audit.EventSessionDeleted, sessionID, true, "", "confirmation="+confirmation.Code)
	s.logger.InfoContext(ctx, "session deleted",
		"session_id", sessionID.String(),
		"entry_purged", purged,
		"request_id", requestcontext.RequestID(ctx),
	)
	return confirmation, nil
}

func (s *Service) sourceHash(ctx context.Context) string {
	if s.hasher == nil {
		return ""
	}
	return s.hasher.ContextHash(ctx)
}

func (s *Service) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
}

func (s *Service) observePersonalization(outcome string, disclosed []detector.Category) {
	if s.metrics == nil {
		return
	}
	names := make([]string, len(disclosed))
	for i, c := range disclosed {
		names[i] = c.String()
	}
	s.metrics.IncrementPersonalization(outcome, names)
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, sessionID domain.SessionID, success bool, code, detail string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Event{
		SessionID: sessionID,
		Action:    string(action),
		ActorHash: s.sourceHash(ctx),
		Success:   success,
		ErrorCode: code,
		RequestID: requestcontext.RequestID(ctx),
		Detail:    detail,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", string(action), "error", err)
	}
}

func keys(set map[detector.Category]bool) []detector.Category {
	out := make([]detector.Category, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	models.SortCategories(out)
	return out
}

func joinCategories(cats []detector.Category) string {
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}
