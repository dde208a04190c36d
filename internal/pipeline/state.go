package pipeline

import (
	"fmt"

	dErrors "piiguard/pkg/domain-errors"
)

// State is where a document is in its lifecycle.
type State string

const (
	StateRaw             State = "RAW"
	StateDetected        State = "DETECTED"
	StateAnonymized      State = "ANONYMIZED"
	StateEncryptedStored State = "ENCRYPTED_STORED"
	StateValidatedSafe   State = "VALIDATED_SAFE"
	StatePersonalized    State = "PERSONALIZED"
	StatePurged          State = "PURGED"
	StateExpired         State = "EXPIRED"
)

var transitions = map[State][]State{
	StateRaw:             {StateDetected},
	StateDetected:        {StateAnonymized},
	StateAnonymized:      {StateEncryptedStored, StateValidatedSafe},
	StateEncryptedStored: {StateValidatedSafe, StatePersonalized, StatePurged, StateExpired},
	StateValidatedSafe:   {StatePersonalized, StatePurged, StateExpired},
	StatePersonalized:    {StatePersonalized, StatePurged, StateExpired},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StatePurged || s == StateExpired
}

// tracker records the path a document takes and rejects illegal steps.
type tracker struct {
	state State
	path  []State
}

func newTracker() *tracker {
	return &tracker{state: StateRaw, path: []State{StateRaw}}
}

func (t *tracker) advance(to State) error {
	if !CanTransition(t.state, to) {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("illegal document transition %s -> %s", t.state, to))
	}
	t.state = to
	t.path = append(t.path, to)
	return nil
}
