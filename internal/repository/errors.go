package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness constraint would be violated.
	ErrConflict = errors.New("repository: conflict")
	// ErrDivisionNotFound indicates a staged division lookup failed during
	// the registration commit.
	ErrDivisionNotFound = errors.New("repository: division not found")
)
