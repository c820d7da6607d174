package storage

import "errors"

// Sentinel errors for user directory operations.
var (
	// ErrNotFound is returned when a user does not exist or is disabled.
	ErrNotFound = errors.New("user not found")

	// ErrConflict is returned when a user with the given name already exists.
	ErrConflict = errors.New("user already exists")
)
