package api

import "time"

// Role identifies the message variant. The tag is stored explicitly rather
// than inferred from the populated variant field so that provider mapping
// code can switch exhaustively over it.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleSupervisor Role = "supervisor"
	RoleDocument   Role = "document"
	RoleInvocation Role = "invocation"
	RoleResult     Role = "result"
)

// Message is a single immutable turn record in a conversation. Exactly one
// variant-data field matching Role is populated.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	User       *UserData       `json:"user,omitempty"`
	Assistant  *AssistantData  `json:"assistant,omitempty"`
	Supervisor *SupervisorData `json:"supervisor,omitempty"`
	Document   *DocumentData   `json:"document,omitempty"`
	Invocation *InvocationData `json:"invocation,omitempty"`
	Result     *ResultData     `json:"result,omitempty"`
}

// UserData holds content entered by the human participant.
type UserData struct {
	Content []Content `json:"content"`
}

// AssistantData holds model output. Content may be empty when the turn
// produced only tool-call requests.
type AssistantData struct {
	Content []Content `json:"content,omitempty"`
}

// SupervisorData holds system/developer instructions. CacheControl carries
// provider cache hints opaque to the core.
type SupervisorData struct {
	Content      []Content      `json:"content"`
	CacheControl map[string]any `json:"cache_control,omitempty"`
}

// DocumentData holds reference material injected into the conversation.
type DocumentData struct {
	DocumentID string    `json:"document_id"`
	Content    []Content `json:"content"`
}

// InvocationData is a tool-call request produced by the assistant.
// InvocationID is the join key for the corresponding ResultData.
type InvocationData struct {
	InvocationID string         `json:"invocation_id"`
	Name         string         `json:"name"`
	Arguments    map[string]any `json:"arguments"`
}

// ResultData is the outcome of one tool invocation. Exactly one of Content
// or Error is set; NewResultMessage and NewErrorResultMessage enforce this.
type ResultData struct {
	InvocationID string    `json:"invocation_id"`
	Content      []Content `json:"content,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// NewUserMessage creates a user message with a fresh ID and UTC timestamp.
func NewUserMessage(content ...Content) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleUser,
		Timestamp: time.Now().UTC(),
		User:      &UserData{Content: content},
	}
}

// NewAssistantMessage creates an assistant message. An empty content list is
// valid for turns that carry only tool calls.
func NewAssistantMessage(content ...Content) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleAssistant,
		Timestamp: time.Now().UTC(),
		Assistant: &AssistantData{Content: content},
	}
}

// NewSupervisorMessage creates a supervisor (system instruction) message.
func NewSupervisorMessage(content ...Content) Message {
	return Message{
		ID:         NewMessageID(),
		Role:       RoleSupervisor,
		Timestamp:  time.Now().UTC(),
		Supervisor: &SupervisorData{Content: content},
	}
}

// NewDocumentMessage creates a reference-document message.
func NewDocumentMessage(documentID string, content ...Content) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleDocument,
		Timestamp: time.Now().UTC(),
		Document:  &DocumentData{DocumentID: documentID, Content: content},
	}
}

// NewInvocationMessage creates a tool-call request message. The invocation
// identifier is generated when id is empty (local synthesis); providers pass
// through their own call identifiers.
func NewInvocationMessage(id, name string, arguments map[string]any) Message {
	if id == "" {
		id = NewInvocationID()
	}
	return Message{
		ID:         NewMessageID(),
		Role:       RoleInvocation,
		Timestamp:  time.Now().UTC(),
		Invocation: &InvocationData{InvocationID: id, Name: name, Arguments: arguments},
	}
}

// NewResultMessage creates a successful tool-result message.
func NewResultMessage(invocationID string, content ...Content) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleResult,
		Timestamp: time.Now().UTC(),
		Result:    &ResultData{InvocationID: invocationID, Content: content},
	}
}

// NewErrorResultMessage creates a failed tool-result message. The error text
// is sent back to the model so it can self-correct.
func NewErrorResultMessage(invocationID, errText string) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleResult,
		Timestamp: time.Now().UTC(),
		Result:    &ResultData{InvocationID: invocationID, Error: errText},
	}
}

// Text returns the concatenated text content of the message body, or ""
// for variants without content.
func (m Message) Text() string {
	switch m.Role {
	case RoleUser:
		if m.User != nil {
			return JoinText(m.User.Content)
		}
	case RoleAssistant:
		if m.Assistant != nil {
			return JoinText(m.Assistant.Content)
		}
	case RoleSupervisor:
		if m.Supervisor != nil {
			return JoinText(m.Supervisor.Content)
		}
	case RoleDocument:
		if m.Document != nil {
			return JoinText(m.Document.Content)
		}
	case RoleResult:
		if m.Result != nil {
			return JoinText(m.Result.Content)
		}
	}
	return ""
}
