package sentinel

import "errors"

// Sentinel errors for storage facts. Vault and consent stores return these
// (optionally wrapped) and services translate them into coded domain errors:
// - ErrNotFound: no entry exists for the session
// - ErrConflict: an entry already exists for the session
// - ErrExpired: the entry exists but its retention window has passed
// - ErrInvalidState: the entry cannot be used for the requested operation
// - ErrUnavailable: the backing store cannot be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
