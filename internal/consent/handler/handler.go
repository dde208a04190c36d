package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"piiguard/internal/consent/models"
	"piiguard/pkg/domain"
	"piiguard/pkg/platform/httputil"
	"piiguard/pkg/requestcontext"
)

// Service defines the consent operations the handler needs.
type Service interface {
	RecordConsent(ctx context.Context, sessionID domain.SessionID, choices models.Choices, retention domain.Retention) (*models.Record, error)
	Current(ctx context.Context, sessionID domain.SessionID) (*models.Record, error)
	Personalize(ctx context.Context, sessionID domain.SessionID, capabilityKey string, choices models.Choices, anonymizedText string) (*models.PersonalizationResult, error)
	TransparencyReport(ctx context.Context, sessionID domain.SessionID, capabilityKey string) (*models.TransparencyReport, error)
	DeleteAll(ctx context.Context, sessionID domain.SessionID) (*models.DeletionConfirmation, error)
}

// Handler serves the consent and personalization endpoints.
type Handler struct {
	consent Service
	logger  *slog.Logger
}

func New(consent Service, logger *slog.Logger) *Handler {
	return &Handler{consent: consent, logger: logger}
}

// Register mounts the consent routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/sessions/{sessionID}", func(r chi.Router) {
		r.Put("/consent", h.HandleRecordConsent)
		r.Get("/consent", h.HandleGetConsent)
		r.Post("/personalize", h.HandlePersonalize)
		r.Post("/transparency", h.HandleTransparency)
		r.Delete("/", h.HandleDeleteAll)
	})
}

// sessionID parses the path parameter, writing the error response on failure.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (domain.SessionID, bool) {
	id, err := domain.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return id, true
}

func (h *Handler) HandleRecordConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RecordConsentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.consent.RecordConsent(ctx, sessionID, req.choices, req.retention)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to record consent",
			"request_id", requestID,
			"session_id", sessionID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConsentResponse(rec))
}

func (h *Handler) HandleGetConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	rec, err := h.consent.Current(ctx, sessionID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read consent",
			"request_id", requestcontext.RequestID(ctx),
			"session_id", sessionID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConsentResponse(rec))
}

func (h *Handler) HandlePersonalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[PersonalizeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	start := time.Now()
	result, err := h.consent.Personalize(ctx, sessionID, req.CapabilityKey, req.choices, req.AnonymizedText)
	if err != nil {
		h.logger.WarnContext(ctx, "personalization failed",
			"request_id", requestID,
			"session_id", sessionID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "personalized",
		"request_id", requestID,
		"session_id", sessionID.String(),
		"disclosed", len(result.DisclosedCategories),
		"withheld", len(result.WithheldCategories),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleTransparency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransparencyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	report, err := h.consent.TransparencyReport(ctx, sessionID, req.CapabilityKey)
	if err != nil {
		h.logger.WarnContext(ctx, "transparency report failed",
			"request_id", requestID,
			"session_id", sessionID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) HandleDeleteAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	conf, err := h.consent.DeleteAll(ctx, sessionID)
	if err != nil {
		h.logger.ErrorContext(ctx, "delete session failed",
			"request_id", requestcontext.RequestID(ctx),
			"session_id", sessionID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, conf)
}

// ConsentResponse is the wire form of a consent record. The context hash is
// not returned.
type ConsentResponse struct {
	SessionID     string          `json:"session_id"`
	Categories    map[string]bool `json:"categories"`
	Retention     string          `json:"retention"`
	RecordedAt    *time.Time      `json:"recorded_at,omitempty"`
	PolicyVersion string          `json:"policy_version"`
}

func toConsentResponse(rec *models.Record) ConsentResponse {
	resp := ConsentResponse{
		SessionID:     rec.SessionID.String(),
		Categories:    make(map[string]bool, len(rec.Categories)),
		Retention:     rec.Retention.String(),
		PolicyVersion: rec.PolicyVersion,
	}
	for cat, enabled := range rec.Categories {
		resp.Categories[cat.String()] = enabled
	}
	if !rec.RecordedAt.IsZero() {
		t := rec.RecordedAt
		resp.RecordedAt = &t
	}
	return resp
}
