// Package file provides a storage.Log backed by one JSONL file per
// conversation plus a sidecar metadata file. Records are written with
// O_APPEND so a crashed process leaves at most one truncated trailing line,
// which Replay reports as malformed.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/converser/pkg/api"
	"github.com/rhuss/converser/pkg/storage"
)

// maxRecordSize bounds a single log line during replay.
const maxRecordSize = 4 * 1024 * 1024

// Log stores each conversation as <dir>/<id>.jsonl with metadata in
// <dir>/<id>.meta.json.
type Log struct {
	dir string

	mu     sync.Mutex
	closed bool
}

var _ storage.Log = (*Log)(nil)

// Metadata is the sidecar record kept next to each conversation file.
type Metadata struct {
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	MessageCount   int       `json:"message_count"`
}

// New creates a file log rooted at dir, creating the directory if needed.
func New(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &Log{dir: dir}, nil
}

// Append writes messages as JSONL records and updates the sidecar metadata.
func (l *Log) Append(ctx context.Context, conversationID string, messages ...api.Message) error {
	if err := validateID(conversationID); err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return storage.ErrClosed
	}

	var buf []byte
	for _, m := range messages {
		line, err := api.MarshalRecord(m)
		if err != nil {
			return fmt.Errorf("encoding message %s: %w", m.ID, err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	f, err := os.OpenFile(l.recordPath(conversationID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening conversation file: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("appending records: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing conversation file: %w", err)
	}

	return l.updateMetadata(conversationID, len(messages))
}

// Replay reads the conversation file back into messages.
func (l *Log) Replay(ctx context.Context, conversationID string) ([]api.Message, error) {
	if err := validateID(conversationID); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, storage.ErrClosed
	}

	f, err := os.Open(l.recordPath(conversationID))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening conversation file: %w", err)
	}
	defer f.Close()

	var history []api.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		m, err := api.UnmarshalRecord(line)
		if err != nil {
			return nil, fmt.Errorf("conversation %s line %d: %w", conversationID, lineNo, err)
		}
		history = append(history, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading conversation file: %w", err)
	}
	return history, nil
}

// Metadata returns the sidecar metadata of a conversation.
func (l *Log) Metadata(conversationID string) (Metadata, error) {
	var meta Metadata
	if err := validateID(conversationID); err != nil {
		return meta, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.metaPath(conversationID))
	if os.IsNotExist(err) {
		return meta, storage.ErrNotFound
	}
	if err != nil {
		return meta, fmt.Errorf("reading metadata: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parsing metadata: %w", err)
	}
	return meta, nil
}

// Close marks the log closed. Idempotent.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// updateMetadata rewrites the sidecar after an append. Caller holds l.mu.
func (l *Log) updateMetadata(conversationID string, added int) error {
	now := time.Now().UTC()
	meta := Metadata{
		ConversationID: conversationID,
		CreatedAt:      now,
	}

	if data, err := os.ReadFile(l.metaPath(conversationID)); err == nil {
		var existing Metadata
		if json.Unmarshal(data, &existing) == nil {
			meta = existing
		}
	}
	meta.UpdatedAt = now
	meta.MessageCount += added

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if err := os.WriteFile(l.metaPath(conversationID), data, 0o644); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

func (l *Log) recordPath(conversationID string) string {
	return filepath.Join(l.dir, conversationID+".jsonl")
}

func (l *Log) metaPath(conversationID string) string {
	return filepath.Join(l.dir, conversationID+".meta.json")
}

// validateID rejects conversation IDs that would escape the log directory.
func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("invalid conversation id %q", id)
	}
	return nil
}
