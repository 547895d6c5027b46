package saga

import (
	"fmt"
	"time"
)

// State defines the lifecycle of a task instance.
type State int

const (
	StatePending State = iota
	StateRunning
	StateSuspended
	StateDone
	StateCancelled
	StateFailed
)

var validTransitions = map[State]map[State]struct{}{
	StatePending: {
		StateRunning:   {},
		StateCancelled: {},
	},
	StateRunning: {
		StateSuspended: {},
		StateDone:      {},
		StateCancelled: {},
		StateFailed:    {},
	},
	StateSuspended: {
		StateRunning: {},
	},
}

// String returns the string form of State.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal reports whether the state is terminal.
func (s State) IsTerminal() bool {
	switch s {
	case StateDone, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks whether a state transition is valid.
func (s State) CanTransitionTo(next State) bool {
	if s == next {
		return true
	}
	validNext, ok := validTransitions[s]
	if !ok {
		return false
	}
	_, ok = validNext[next]
	return ok
}

// ValidateTransition validates transition semantics.
func ValidateTransition(current, next State) error {
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("invalid task state transition: %s -> %s", current, next)
	}
	return nil
}

// TaskInfo is a snapshot of one task instance.
type TaskInfo struct {
	ID         string     `json:"id"`
	Watcher    string     `json:"watcher"`
	Action     string     `json:"action,omitempty"`
	State      State      `json:"state"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}
