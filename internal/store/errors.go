package store

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrOpenFailed indicates the store file could not be opened even after
	// the one-shot corruption recovery.
	ErrOpenFailed = errors.New("store open failed")
	// ErrInvalidUpdate indicates a status update with missing or invalid
	// required fields.
	ErrInvalidUpdate = errors.New("invalid status update")
)
