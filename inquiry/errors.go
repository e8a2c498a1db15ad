package inquiry

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication signals the caller's token could not be resolved to an identity.
	ErrAuthentication = errors.New("inquiry: not authenticated")
	// ErrAuthorization signals the caller's role or identity lacks authority for the action.
	ErrAuthorization = errors.New("inquiry: not authorized")
	// ErrIllegalTransition signals the action is not defined for the current status.
	ErrIllegalTransition = errors.New("inquiry: illegal transition")
	// ErrSlotExhausted signals all freelancer slots are already occupied.
	ErrSlotExhausted = errors.New("inquiry: freelancer slots exhausted")
	// ErrNotRequested signals the responder does not hold a slot on the inquiry.
	ErrNotRequested = errors.New("inquiry: responder not requested")
	// ErrVersionConflict signals the stored status changed since it was read.
	ErrVersionConflict = errors.New("inquiry: version conflict")
	// ErrNotFound signals the inquiry does not exist.
	ErrNotFound = errors.New("inquiry: not found")
	// ErrInvalidAction signals a malformed action payload.
	ErrInvalidAction = errors.New("inquiry: invalid action")
	// ErrInvalidStatus signals a malformed or inconsistent status payload.
	ErrInvalidStatus = errors.New("inquiry: invalid status")
)

func errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// ErrorKind maps err onto a stable code suitable for shells and metric labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrAuthorization):
		return "authorization"
	case errors.Is(err, ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, ErrSlotExhausted):
		return "slot_exhausted"
	case errors.Is(err, ErrNotRequested):
		return "not_requested"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidAction), errors.Is(err, ErrInvalidStatus):
		return "invalid"
	default:
		return "internal"
	}
}

// IsEngineError reports whether err originated from a rejected decision
// rather than from storage or transport.
func IsEngineError(err error) bool {
	return errors.Is(err, ErrAuthorization) ||
		errors.Is(err, ErrIllegalTransition) ||
		errors.Is(err, ErrSlotExhausted) ||
		errors.Is(err, ErrNotRequested) ||
		errors.Is(err, ErrInvalidAction)
}
