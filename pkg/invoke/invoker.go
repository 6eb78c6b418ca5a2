package invoke

import (
	"context"

	"github.com/rhuss/converser/pkg/provider"
)

// Invocable executes one tool call. The returned string is the textual
// output sent back to the model. A *ToolError is reported back to the model
// as an error result; any other non-nil error marks the invocation as
// raised, which is fatal to the current turn.
type Invocable func(ctx context.Context, args map[string]any) (string, error)

// ToolError is a tool-level failure the model can see and react to. It
// becomes an error result message instead of aborting the round.
type ToolError struct {
	Message string
}

func (e *ToolError) Error() string { return e.Message }

// NewToolError creates a ToolError with the given message.
func NewToolError(message string) *ToolError {
	return &ToolError{Message: message}
}

// Invoker is one callable tool: a name, a description for the model, a JSON
// Schema for the arguments, and the function that executes the call.
type Invoker struct {
	Name        string
	Description string
	Schema      map[string]any
	Fn          Invocable
}

// Definition returns the provider-facing tool definition for this invoker.
func (inv Invoker) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        inv.Name,
		Description: inv.Description,
		Schema:      inv.Schema,
	}
}

// Definitions collects provider-facing definitions for a set of invokers.
func Definitions(invokers []Invoker) []provider.ToolDefinition {
	defs := make([]provider.ToolDefinition, 0, len(invokers))
	for _, inv := range invokers {
		defs = append(defs, inv.Definition())
	}
	return defs
}
