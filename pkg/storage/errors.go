package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a conversation has no stored records.
	ErrNotFound = errors.New("conversation not found")

	// ErrClosed is returned when the log has been closed.
	ErrClosed = errors.New("log closed")
)
