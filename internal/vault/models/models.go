package models

import (
	"time"

	"piiguard/internal/detector"
	"piiguard/internal/sealer"
	"piiguard/pkg/domain"
)

// Action is what happened to a stored entry.
type Action string

const (
	ActionStore       Action = "store"
	ActionRetrieve    Action = "retrieve"
	ActionPurge       Action = "purge"
	ActionAutoCleanup Action = "auto-cleanup"
)

// ActorSystem is the actor recorded for lifecycle actions no caller initiated.
const ActorSystem = "system"

// AccessEvent is one line of an entry's access log.
type AccessEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	ActorHash string    `json:"actor_hash"`
	Success   bool      `json:"success"`
	ErrorCode string    `json:"error_code,omitempty"`
}

// Entry is the encrypted payload of one processing session. After creation an
// entry only changes by appending to its access log.
//
// Invariant: ExpiresAt - CreatedAt never exceeds domain.MaxRetention.
type Entry struct {
	SessionID domain.SessionID `json:"session_id"`
	Record    *sealer.Record   `json:"record"`
	Retention domain.Retention `json:"retention"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
	AccessLog []AccessEvent    `json:"-"`
}

// IsExpired reports whether the entry is dead at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// FailedRetrievals counts unsuccessful retrieve events in the access log.
func (e *Entry) FailedRetrievals() int {
	n := 0
	for _, ev := range e.AccessLog {
		if ev.Action == ActionRetrieve && !ev.Success {
			n++
		}
	}
	return n
}

// Receipt is returned once, when an entry is stored. The capability key is
// not kept anywhere else.
type Receipt struct {
	SessionID     domain.SessionID
	CapabilityKey string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Lookup is a decrypted view of an entry.
type Lookup struct {
	SessionID domain.SessionID
	Items     []detector.Item
	Retention domain.Retention
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SweepStats summarises one sweep.
type SweepStats struct {
	Cleaned int
	Errors  int
}
