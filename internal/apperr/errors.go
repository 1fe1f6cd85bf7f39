// Package apperr defines sentinel errors shared across attic packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidPath   = errors.New("invalid path")
	ErrBusy          = errors.New("operation already running")
	ErrNotConfigured = errors.New("not configured")
	ErrLinked        = errors.New("attachment is still referenced")
	ErrValidation    = errors.New("validation failed")
)
