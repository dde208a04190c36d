package domain

import (
	"unicode/utf8"

	dErrors "piiguard/pkg/domain-errors"
)

// MaxSessionIDLength bounds caller-chosen session identifiers.
const MaxSessionIDLength = 128

// SessionID identifies one document-processing session. It is chosen by the
// ingestion caller and keys every stored entry and consent record.
//
// Usage: construct via ParseSessionID at trust boundaries; direct casting
// bypasses validation.
type SessionID string

// ParseSessionID validates a caller-chosen identifier.
//
// Errors: returns CodeInvalidInput when the value is empty, too long, not
// UTF-8, or contains characters outside [A-Za-z0-9._:-].
func ParseSessionID(s string) (SessionID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "session id cannot be empty")
	}
	if len(s) > MaxSessionIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "session id is too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "session id must be valid UTF-8")
	}
	for i := 0; i < len(s); i++ {
		if !isSessionIDByte(s[i]) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "session id contains invalid characters")
		}
	}
	return SessionID(s), nil
}

func isSessionIDByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == ':', c == '-':
		return true
	}
	return false
}

// String returns the raw identifier.
func (id SessionID) String() string {
	return string(id)
}

// IsZero reports whether the identifier is unset.
func (id SessionID) IsZero() bool {
	return id == ""
}
