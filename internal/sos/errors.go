package sos

import (
	"errors"
	"fmt"

	"github.com/wolfeidau/beacon/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrConflict        = errors.New("user already has an open SOS session")
	ErrInvalidState    = errors.New("operation not valid in current session state")
	ErrNotFound        = errors.New("session not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrClosed          = errors.New("engine is closed")
)

// ConflictError is returned by Raise when the user already holds an open session.
type ConflictError struct {
	UserID string
	// SessionID of the open session, when it could be determined.
	SessionID string
}

func (e *ConflictError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("user %s already has an open SOS session", e.UserID)
	}
	return fmt.Sprintf("user %s already has an open SOS session %s", e.UserID, e.SessionID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// StateError is returned when an event is not valid for the session's state.
type StateError struct {
	SessionID string
	State     models.State
	Event     Event
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s session %s in state %s", e.Event, e.SessionID, stateName(e.State))
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
