package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// The record codec serializes one message per line-oriented JSON record for
// the append-only conversation log. The wire format is flat: variant fields
// sit at the top level next to id/role/timestamp rather than nested in a
// wrapper object.

// recordBase contains fields common to all message variants.
type recordBase struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON serializes a Message to the flat record format.
func (m Message) MarshalJSON() ([]byte, error) {
	base := recordBase{ID: m.ID, Role: m.Role, Timestamp: m.Timestamp}

	switch m.Role {
	case RoleUser:
		return json.Marshal(struct {
			recordBase
			Content []Content `json:"content"`
		}{base, contentOf(m.User)})

	case RoleAssistant:
		var content []Content
		if m.Assistant != nil {
			content = m.Assistant.Content
		}
		return json.Marshal(struct {
			recordBase
			Content []Content `json:"content,omitempty"`
		}{base, content})

	case RoleSupervisor:
		var content []Content
		var cache map[string]any
		if m.Supervisor != nil {
			content = m.Supervisor.Content
			cache = m.Supervisor.CacheControl
		}
		return json.Marshal(struct {
			recordBase
			Content      []Content      `json:"content"`
			CacheControl map[string]any `json:"cache_control,omitempty"`
		}{base, content, cache})

	case RoleDocument:
		var docID string
		var content []Content
		if m.Document != nil {
			docID = m.Document.DocumentID
			content = m.Document.Content
		}
		return json.Marshal(struct {
			recordBase
			DocumentID string    `json:"document_id"`
			Content    []Content `json:"content"`
		}{base, docID, content})

	case RoleInvocation:
		if m.Invocation == nil {
			return nil, fmt.Errorf("%w: invocation message without invocation data", ErrMalformedRecord)
		}
		return json.Marshal(struct {
			recordBase
			InvocationID string         `json:"invocation_id"`
			Name         string         `json:"name"`
			Arguments    map[string]any `json:"arguments"`
		}{base, m.Invocation.InvocationID, m.Invocation.Name, m.Invocation.Arguments})

	case RoleResult:
		if m.Result == nil {
			return nil, fmt.Errorf("%w: result message without result data", ErrMalformedRecord)
		}
		if m.Result.Error != "" && len(m.Result.Content) > 0 {
			return nil, fmt.Errorf("%w: result carries both content and error", ErrMalformedRecord)
		}
		return json.Marshal(struct {
			recordBase
			InvocationID string    `json:"invocation_id"`
			Content      []Content `json:"content,omitempty"`
			Error        string    `json:"error,omitempty"`
		}{base, m.Result.InvocationID, m.Result.Content, m.Result.Error})

	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrMalformedRecord, m.Role)
	}
}

func contentOf(d *UserData) []Content {
	if d == nil {
		return nil
	}
	return d.Content
}

// UnmarshalJSON deserializes a Message from the flat record format,
// rejecting records that violate variant invariants.
func (m *Message) UnmarshalJSON(data []byte) error {
	var rec struct {
		recordBase
		Content      []Content      `json:"content"`
		CacheControl map[string]any `json:"cache_control"`
		DocumentID   string         `json:"document_id"`
		InvocationID string         `json:"invocation_id"`
		Name         string         `json:"name"`
		Arguments    map[string]any `json:"arguments"`
		Error        string         `json:"error"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	m.ID = rec.ID
	m.Role = rec.Role
	m.Timestamp = rec.Timestamp
	m.User, m.Assistant, m.Supervisor = nil, nil, nil
	m.Document, m.Invocation, m.Result = nil, nil, nil

	switch rec.Role {
	case RoleUser:
		m.User = &UserData{Content: rec.Content}
	case RoleAssistant:
		m.Assistant = &AssistantData{Content: rec.Content}
	case RoleSupervisor:
		m.Supervisor = &SupervisorData{Content: rec.Content, CacheControl: rec.CacheControl}
	case RoleDocument:
		m.Document = &DocumentData{DocumentID: rec.DocumentID, Content: rec.Content}
	case RoleInvocation:
		if rec.InvocationID == "" || rec.Name == "" {
			return fmt.Errorf("%w: invocation record missing invocation_id or name", ErrMalformedRecord)
		}
		m.Invocation = &InvocationData{
			InvocationID: rec.InvocationID,
			Name:         rec.Name,
			Arguments:    rec.Arguments,
		}
	case RoleResult:
		if rec.InvocationID == "" {
			return fmt.Errorf("%w: result record missing invocation_id", ErrMalformedRecord)
		}
		if rec.Error != "" && len(rec.Content) > 0 {
			return fmt.Errorf("%w: result record carries both content and error", ErrMalformedRecord)
		}
		m.Result = &ResultData{
			InvocationID: rec.InvocationID,
			Content:      rec.Content,
			Error:        rec.Error,
		}
	default:
		return fmt.Errorf("%w: unknown role %q", ErrMalformedRecord, rec.Role)
	}
	return nil
}

// MarshalRecord serializes a message as a single-line record suitable for
// the append-only log.
func MarshalRecord(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalRecord parses one log line back into a Message. Any decode
// failure, including a syntactically torn line, reports ErrMalformedRecord.
func UnmarshalRecord(line []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		if errors.Is(err, ErrMalformedRecord) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return m, nil
}
