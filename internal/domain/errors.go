package domain

import "errors"

var (
	// ErrValidation marks malformed or missing input. Never retried, never mutates state.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a referenced lead or call attempt that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an operation that does not apply to the current state.
	ErrConflict = errors.New("conflict")
	// ErrBusy marks storage contention that outlasted the retry budget. Callers may retry.
	ErrBusy = errors.New("storage busy")
)
