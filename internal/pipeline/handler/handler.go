package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"piiguard/internal/pipeline"
	"piiguard/pkg/domain"
	dErrors "piiguard/pkg/domain-errors"
	"piiguard/pkg/platform/httputil"
	"piiguard/pkg/requestcontext"
)

// Processor runs a document through the pipeline.
type Processor interface {
	Process(ctx context.Context, doc pipeline.Document) (*pipeline.Outcome, error)
}

// Handler serves document submission.
type Handler struct {
	processor Processor
	logger    *slog.Logger
}

func New(p Processor, logger *slog.Logger) *Handler {
	return &Handler{processor: p, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/documents", h.HandleProcess)
}

// ProcessRequest is the body of POST /v1/documents.
type ProcessRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Retention string `json:"retention,omitempty"`

	sessionID domain.SessionID
	retention domain.Retention
}

func (r *ProcessRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	id, err := domain.ParseSessionID(strings.TrimSpace(r.SessionID))
	if err != nil {
		return err
	}
	r.sessionID = id
	if r.Retention = strings.TrimSpace(r.Retention); r.Retention != "" {
		retention, err := domain.ParseRetention(r.Retention)
		if err != nil {
			return err
		}
		r.retention = retention
	}
	return nil
}

// ProcessResponse is handed to downstream analysis. The capability key is
// present only when detected items were stored.
type ProcessResponse struct {
	SessionID      string     `json:"session_id"`
	AnonymizedText string     `json:"anonymized_text"`
	PIIDetected    bool       `json:"pii_detected"`
	Confidence     float64    `json:"confidence"`
	Categories     []string   `json:"categories"`
	CapabilityKey  string     `json:"capability_key,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Retention      string     `json:"retention,omitempty"`
}

func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[ProcessRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	out, err := h.processor.Process(ctx, pipeline.Document{
		SessionID: req.sessionID,
		Text:      req.Text,
		Retention: req.retention,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "document processing failed",
			"request_id", requestID,
			"session_id", req.sessionID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "document accepted",
		"request_id", requestID,
		"session_id", req.sessionID.String(),
		"pii_detected", out.PIIDetected,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, toResponse(out))
}

func toResponse(out *pipeline.Outcome) ProcessResponse {
	resp := ProcessResponse{
		SessionID:      out.SessionID.String(),
		AnonymizedText: out.AnonymizedText,
		PIIDetected:    out.PIIDetected,
		Confidence:     out.Confidence,
		Categories:     make([]string, len(out.Categories)),
		CapabilityKey:  out.CapabilityKey,
		Retention:      out.Retention.String(),
	}
	for i, c := range out.Categories {
		resp.Categories[i] = c.String()
	}
	if !out.ExpiresAt.IsZero() {
		t := out.ExpiresAt
		resp.ExpiresAt = &t
	}
	return resp
}
