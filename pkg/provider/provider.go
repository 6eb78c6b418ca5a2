package provider

import (
	"context"
)

// Provider abstracts an LLM inference backend. The interface operates on the
// neutral message model; each adapter translates to and from its backend's
// native format internally.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai-chat", "anthropic").
	Name() string

	// Capabilities returns what this provider supports.
	Capabilities() Capabilities

	// Complete performs non-streaming inference. The response carries the
	// assistant and invocation messages the model produced, in order.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Stream performs streaming inference. The returned channel receives
	// Event values and is closed by the provider when the stream completes
	// or errors. Tool-call argument deltas are aggregated internally; the
	// channel carries only complete tool calls.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}
