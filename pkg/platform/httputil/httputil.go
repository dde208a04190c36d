// Package httputil writes JSON responses and translates coded errors into
// HTTP statuses.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "piiguard/pkg/domain-errors"
)

// MaxBodyBytes bounds request bodies read by DecodeAndPrepare.
const MaxBodyBytes = 4 << 20

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:         http.StatusBadRequest,
	dErrors.CodeValidation:         http.StatusBadRequest,
	dErrors.CodeInvalidInput:       http.StatusBadRequest,
	dErrors.CodeNotFound:           http.StatusNotFound,
	dErrors.CodeConflict:           http.StatusConflict,
	dErrors.CodeTimeout:            http.StatusGatewayTimeout,
	dErrors.CodeInvariantViolation: http.StatusInternalServerError,
	dErrors.CodeInternal:           http.StatusInternalServerError,
	dErrors.CodeDetectionFailed:    http.StatusUnprocessableEntity,
	dErrors.CodeUnsafeOutput:       http.StatusUnprocessableEntity,
	dErrors.CodeEncryptionFailed:   http.StatusInternalServerError,
	dErrors.CodeDecryptionFailed:   http.StatusForbidden,
	dErrors.CodeNotFoundOrExpired:  http.StatusGone,
	dErrors.CodeConsentRecord:      http.StatusServiceUnavailable,
}

// StatusFor returns the HTTP status for a code.
func StatusFor(code dErrors.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError writes err as {"error": code, "error_description": message}.
// Server-side failures never include a description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)
	body := errorBody{Error: string(code)}
	if de, ok := dErrors.From(err); ok && status < http.StatusInternalServerError {
		body.ErrorDescription = de.Message
	}
	WriteJSON(w, status, body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Validatable requests check and normalise themselves after decoding.
type Validatable interface {
	Validate() error
}

// DecodeAndPrepare decodes the JSON body into T and runs Validate. On failure
// it writes the error response and returns false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req := PT(new(T))
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		logger.WarnContext(ctx, "invalid request body",
			"request_id", requestID,
			"error", err.Error(),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body too large"))
			return nil, false
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	if err := req.Validate(); err != nil {
		logger.WarnContext(ctx, "request validation failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		WriteError(w, err)
		return nil, false
	}
	return (*T)(req), true
}
