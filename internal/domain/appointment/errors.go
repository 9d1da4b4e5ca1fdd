package appointment

import "errors"

// Error kinds returned by the lifecycle. Callers match with errors.Is; the
// wrapped message carries the detail.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("time slot is not available")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state transition")
)
