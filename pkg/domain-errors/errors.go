// Package domainerrors provides coded errors shared by services and transports.
//
// Services return coded errors; transports translate codes into responses. Stores
// return sentinel errors (pkg/platform/sentinel) which services wrap with a code.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies an error kind across layers.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInternal           Code = "internal_error"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"

	// Privacy pipeline failures.
	CodeDetectionFailed   Code = "detection_failed"
	CodeUnsafeOutput      Code = "unsafe_output"
	CodeEncryptionFailed  Code = "encryption_failed"
	CodeDecryptionFailed  Code = "decryption_failed"
	CodeNotFoundOrExpired Code = "not_found_or_expired"
	CodeConsentRecord     Code = "consent_record_error"
)

// Error is a coded error with a user-safe message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// From returns the outermost coded error in the chain.
func From(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost coded error carries code.
func HasCode(err error, code Code) bool {
	de, ok := From(err)
	return ok && de.Code == code
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	if de, ok := From(err); ok {
		return de.Code
	}
	return CodeInternal
}
