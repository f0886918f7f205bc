package domain

import (
	"errors"
	"fmt"
)

// State is the tagged lifecycle state of a puzzle.
type State string

const (
	StateAvailable  State = "available"
	StateRequested  State = "requested"
	StateInProgress State = "in_progress"
	StateDeleted    State = "deleted"
)

// Event is a lifecycle trigger.
type Event string

const (
	EventCreate   Event = "create"
	EventRequest  Event = "request"
	EventApprove  Event = "approve"
	EventDecline  Event = "decline"
	EventComplete Event = "complete"
	EventDelete   Event = "delete"
)

var (
	// ErrIllegalTransition is returned by Transition when ev is not allowed
	// from the given state.
	ErrIllegalTransition = errors.New("illegal puzzle transition")

	// ErrInconsistentFlags is returned when persisted flags do not map to a
	// single state (e.g. both available and requested).
	ErrInconsistentFlags = errors.New("inconsistent puzzle lifecycle flags")
)

// transitions is the complete table; anything missing is illegal.
// Deleted is absorbing.
var transitions = map[State]map[Event]State{
	"": {
		EventCreate: StateAvailable,
	},
	StateAvailable: {
		EventRequest: StateRequested,
		EventDelete:  StateDeleted,
	},
	StateRequested: {
		EventApprove: StateInProgress,
		EventDecline: StateAvailable,
		EventDelete:  StateDeleted,
	},
	StateInProgress: {
		EventComplete: StateAvailable,
		EventDelete:   StateDeleted,
	},
}

// Transition returns the state reached from `from` on ev.
// Use the empty state as the origin of EventCreate.
func Transition(from State, ev Event) (State, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s from %q", ErrIllegalTransition, ev, from)
}

// Flags is the persisted representation of a puzzle's lifecycle.
type Flags struct {
	IsAvailable bool
	IsRequested bool
	InProgress  bool
	IsDeleted   bool
}

// State maps f to its tagged state. A deleted puzzle is Deleted whatever the
// other flags say; otherwise exactly one of the three must be set.
func (f Flags) State() (State, error) {
	if f.IsDeleted {
		return StateDeleted, nil
	}
	n := 0
	var s State
	if f.IsAvailable {
		n++
		s = StateAvailable
	}
	if f.IsRequested {
		n++
		s = StateRequested
	}
	if f.InProgress {
		n++
		s = StateInProgress
	}
	if n != 1 {
		return "", fmt.Errorf("%w: %+v", ErrInconsistentFlags, f)
	}
	return s, nil
}

// FlagsFor returns the flags to persist for state s. prev is only consulted
// for Deleted, which keeps the requested/in-progress flags as they were and
// clears availability.
func FlagsFor(s State, prev Flags) Flags {
	switch s {
	case StateAvailable:
		return Flags{IsAvailable: true}
	case StateRequested:
		return Flags{IsRequested: true}
	case StateInProgress:
		return Flags{InProgress: true}
	case StateDeleted:
		return Flags{
			IsRequested: prev.IsRequested,
			InProgress:  prev.InProgress,
			IsDeleted:   true,
		}
	default:
		return prev
	}
}
