package storage

import (
	"context"

	"github.com/rhuss/converser/pkg/api"
)

// Log is an append-only conversation record store. Messages are immutable
// once appended; Replay returns them in append order.
//
// Implementations must be safe for concurrent use.
type Log interface {
	// Append adds messages to the end of a conversation's record. The
	// conversation is created implicitly on first append.
	Append(ctx context.Context, conversationID string, messages ...api.Message) error

	// Replay returns the full message history of a conversation in append
	// order. Returns ErrNotFound for a conversation that was never
	// appended to.
	Replay(ctx context.Context, conversationID string) ([]api.Message, error)

	// Close releases the log's resources.
	Close() error
}
