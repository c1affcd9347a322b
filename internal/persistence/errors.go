package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a uniqueness constraint is violated.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConflict is returned when a conditional update finds the record in a
	// state that no longer satisfies the transition precondition.
	ErrConflict = errors.New("persistence: conflict")
)
