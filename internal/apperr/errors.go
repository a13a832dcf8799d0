package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("conflict")
	ErrEmptyQuery    = errors.New("empty query")
	ErrInvalidPath   = errors.New("invalid note path")

	// ErrCorruptState marks persisted index artifacts that disagree with each other.
	ErrCorruptState = errors.New("corrupt index state")

	// ErrDimensionMismatch is fatal: the encoder changed without a full rebuild.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
