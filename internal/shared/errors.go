package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates the caller supplied invalid input.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates a uniqueness conflict in storage.
	ErrDuplicate = errors.New("duplicate entry")
)
