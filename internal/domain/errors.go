package domain

import "errors"

// Errors
var (
	ErrPositionNotFound       = errors.New("position not found")
	ErrLoadNotFound           = errors.New("load not found")
	ErrLoadNotInPosition      = errors.New("load is not assigned to this position")
	ErrInvalidState           = errors.New("operation not allowed in current position state")
	ErrDirectionMismatch      = errors.New("load direction does not match position type")
	ErrAlreadyAssigned        = errors.New("load is already assigned to another draft position")
	ErrEmptyPosition          = errors.New("position has no assigned loads")
	ErrInvalidInput           = errors.New("invalid input")
	ErrConcurrentModification = errors.New("position was modified concurrently")
)

// Error reasons reported to callers, one per error class
const (
	ReasonNotFound          = "NotFound"
	ReasonInvalidState      = "InvalidState"
	ReasonDirectionMismatch = "DirectionMismatch"
	ReasonAlreadyAssigned   = "AlreadyAssigned"
	ReasonEmptyPosition     = "EmptyPosition"
	ReasonInvalidInput      = "InvalidInput"
	ReasonConflict          = "Conflict"
	ReasonInternal          = "Internal"
)

// Reason classifies err into one of the Reason* names
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrPositionNotFound),
		errors.Is(err, ErrLoadNotFound),
		errors.Is(err, ErrLoadNotInPosition):
		return ReasonNotFound
	case errors.Is(err, ErrInvalidState):
		return ReasonInvalidState
	case errors.Is(err, ErrDirectionMismatch):
		return ReasonDirectionMismatch
	case errors.Is(err, ErrAlreadyAssigned):
		return ReasonAlreadyAssigned
	case errors.Is(err, ErrEmptyPosition):
		return ReasonEmptyPosition
	case errors.Is(err, ErrInvalidInput):
		return ReasonInvalidInput
	case errors.Is(err, ErrConcurrentModification):
		return ReasonConflict
	default:
		return ReasonInternal
	}
}

// IsBusinessError reports whether err is a rejected precondition rather than
// an infrastructure failure
func IsBusinessError(err error) bool {
	reason := Reason(err)
	return reason != ReasonInternal && reason != ReasonConflict
}
