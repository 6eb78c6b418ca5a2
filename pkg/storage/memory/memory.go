// Package memory provides an in-memory storage.Log for tests and
// single-process deployments without durability requirements.
package memory

import (
	"context"
	"sync"

	"github.com/rhuss/converser/pkg/api"
	"github.com/rhuss/converser/pkg/storage"
)

// Log is an in-memory append-only conversation store.
type Log struct {
	mu            sync.RWMutex
	closed        bool
	conversations map[string][]api.Message
}

var _ storage.Log = (*Log)(nil)

// New creates an empty in-memory log.
func New() *Log {
	return &Log{conversations: make(map[string][]api.Message)}
}

// Append adds messages to a conversation, creating it on first use.
func (l *Log) Append(ctx context.Context, conversationID string, messages ...api.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return storage.ErrClosed
	}
	l.conversations[conversationID] = append(l.conversations[conversationID], messages...)
	return nil
}

// Replay returns a copy of the conversation history in append order.
func (l *Log) Replay(ctx context.Context, conversationID string) ([]api.Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, storage.ErrClosed
	}
	history, ok := l.conversations[conversationID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]api.Message, len(history))
	copy(out, history)
	return out, nil
}

// Close marks the log closed. Idempotent.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
