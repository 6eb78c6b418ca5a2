package provider

import (
	"github.com/rhuss/converser/pkg/api"
)

// Capabilities declares what features the backend supports. Used by the
// engine for early request validation.
type Capabilities struct {
	// Streaming indicates whether the provider supports streaming responses.
	Streaming bool

	// ToolCalling indicates whether the provider supports function/tool calls.
	ToolCalling bool

	// Vision indicates whether the provider supports image inputs.
	Vision bool

	// MaxContextWindow is the maximum token count (0 = unknown/unlimited).
	MaxContextWindow int
}

// Request is the backend-facing inference request. Messages is the neutral
// conversation history; the adapter nativizes it.
type Request struct {
	Model    string
	Messages []api.Message
	Tools    []ToolDefinition
	Controls Controls
	Stream   bool
}

// ToolDefinition describes one invocable exposed to the model. Schema is a
// JSON Schema object for the arguments.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// FinishReason tells why the model stopped producing output.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// Usage reports token accounting for one inference call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the backend's complete non-streaming response, already
// normalized. Messages holds zero or one assistant message followed by any
// invocation messages, in the order the model produced them.
type Response struct {
	Messages     []api.Message
	FinishReason FinishReason
	Usage        Usage
}

// EventType classifies a streaming event from the backend.
//
// EventTextSnapshot is for backends that resend the full accumulated text on
// each update instead of deltas (some OpenAI-compatible gateways do this);
// neither bundled adapter emits it.
type EventType int

const (
	EventTextDelta    EventType = iota // Incremental text content
	EventTextSnapshot                  // Full replacement of accumulated text
	EventToolCallDone                  // One tool call, complete with arguments
	EventDone                          // Stream finished
	EventError                         // Stream error
)

// Event is a single streaming event from the backend, normalized by the
// adapter. Argument deltas never surface here: adapters buffer them and emit
// a single EventToolCallDone per call.
type Event struct {
	Type EventType

	// Delta contains incremental text (EventTextDelta).
	Delta string

	// Snapshot contains the full accumulated text (EventTextSnapshot).
	Snapshot string

	// ToolCallID, ToolName and Arguments describe a completed tool call
	// (EventToolCallDone).
	ToolCallID string
	ToolName   string
	Arguments  map[string]any

	// FinishReason and Usage are populated on EventDone.
	FinishReason FinishReason
	Usage        *Usage

	// Err is populated on EventError.
	Err error
}
