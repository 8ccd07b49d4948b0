package conversation

import (
	"errors"
	"fmt"

	"cbt-coach/internal/skill"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned for turns on a session that is no longer active.
	ErrSessionClosed = errors.New("session closed")
)

// ValidationError reports skill state that does not belong to the session's
// active skill.
type ValidationError = skill.ValidationError

// InvalidStateTransition is a transition the state machine does not define.
type InvalidStateTransition struct {
	From State
	To   State
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

// PersistenceError means the turn was computed but could not be stored. The
// result is kept so the write can be retried without running the turn again.
type PersistenceError struct {
	Result *TurnResult
	Err    error

	saved written
}

// written records which parts of a turn reached the store.
type written struct {
	turn, event, completion bool
}

func (e *PersistenceError) Error() string { return "persist turn: " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

// Retryable is always true; the caller may resubmit Result.
func (e *PersistenceError) Retryable() bool { return true }
