package application

import "errors"

var (
	// ErrNotFound is returned when the requested ride or user does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrInvalidCredentials is returned when login fails; callers must not
	// learn whether the username or the password was wrong.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrConflict is returned when a lifecycle transition finds the ride in a
	// state that no longer allows it (already taken, already resolved).
	ErrConflict = errors.New("application: conflict")
	// ErrUnauthorized is returned when the acting user is not the ride
	// participant the operation requires.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNoDriversAvailable is returned when a ride request matches no driver
	// who is online and available right now.
	ErrNoDriversAvailable = errors.New("application: no drivers available")
)

// ValidationError captures field level validation issues that callers can
// surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
