package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrUnavailable indicates the backing store could not be reached. Callers
	// are expected to degrade rather than fail hard.
	ErrUnavailable = errors.New("repository: backing store unavailable")
)
