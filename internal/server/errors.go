package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/wolfeidau/beacon/internal/sos"
)

// ExistingSessionHeader carries the open session ID on already_exists errors.
const ExistingSessionHeader = "Sos-Existing-Session-Id"

var (
	errNegativeCountdown = errors.New("countdown_seconds must not be negative")
	errMissingLocation   = errors.New("location is required")
)

// toConnectError maps engine errors to RPC status codes.
func toConnectError(err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, sos.ErrConflict):
		code = connect.CodeAlreadyExists
	case errors.Is(err, sos.ErrInvalidState):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, sos.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, sos.ErrInvalidArgument):
		code = connect.CodeInvalidArgument
	case errors.Is(err, sos.ErrClosed):
		code = connect.CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	default:
		code = connect.CodeInternal
	}

	cerr := connect.NewError(code, err)

	var conflict *sos.ConflictError
	if errors.As(err, &conflict) && conflict.SessionID != "" {
		cerr.Meta().Set(ExistingSessionHeader, conflict.SessionID)
	}

	return cerr
}
