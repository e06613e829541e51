package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateEmail indicates a user with the same email already exists.
	ErrDuplicateEmail = errors.New("repository: duplicate email")
	// ErrStorageUnavailable wraps failures of the underlying store.
	ErrStorageUnavailable = errors.New("repository: storage unavailable")
)
