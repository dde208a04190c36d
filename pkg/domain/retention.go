package domain

import (
	"time"

	dErrors "piiguard/pkg/domain-errors"
)

// MaxRetention is the regulatory ceiling for any stored entry.
const MaxRetention = 24 * time.Hour

// DefaultSessionOnlyTTL is the window used for session-only retention when the
// host does not configure one.
const DefaultSessionOnlyTTL = 30 * time.Minute

// Retention is the user's choice of how long encrypted personal data may live.
// Invariant: the value must be one of the supported retention choices.
type Retention string

const (
	RetentionSessionOnly Retention = "session-only"
	RetentionOneHour     Retention = "1-hour"
	Retention24Hours     Retention = "24-hours"
)

var validRetentions = map[Retention]bool{
	RetentionSessionOnly: true,
	RetentionOneHour:     true,
	Retention24Hours:     true,
}

// ParseRetention constructs a Retention from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRetention(s string) (Retention, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "retention cannot be empty")
	}
	r := Retention(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid retention")
	}
	return r, nil
}

// IsValid checks if the retention is one of the supported enum values.
func (r Retention) IsValid() bool {
	return validRetentions[r]
}

// Window returns how long an entry stored under r may live. sessionTTL is the
// host's session-only window. The result never exceeds MaxRetention; unknown
// values fall back to the session-only window.
func (r Retention) Window(sessionTTL time.Duration) time.Duration {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionOnlyTTL
	}
	var d time.Duration
	switch r {
	case RetentionOneHour:
		d = time.Hour
	case Retention24Hours:
		d = 24 * time.Hour
	default:
		d = sessionTTL
	}
	return min(d, MaxRetention)
}

// String returns the string representation of the retention.
func (r Retention) String() string {
	return string(r)
}
