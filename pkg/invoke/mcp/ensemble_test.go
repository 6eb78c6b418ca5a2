package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/converser/pkg/invoke"
)

// setupTestServer creates a test MCP server with tools and connects an
// ensemble to it via in-memory transports.
func setupTestServer(t *testing.T, serverTools map[string]sdk.ToolHandler) *Ensemble {
	t.Helper()

	server := sdk.NewServer(
		&sdk.Implementation{Name: "test-server", Version: "1.0.0"},
		nil,
	)
	for name, handler := range serverTools {
		server.AddTool(
			&sdk.Tool{
				Name:        name,
				Description: "Test tool: " + name,
				InputSchema: map[string]any{"type": "object"},
			},
			handler,
		)
	}

	serverTransport, clientTransport := sdk.NewInMemoryTransports()

	ctx := context.Background()
	go func() {
		_ = server.Run(ctx, serverTransport)
	}()

	ensemble := NewEnsemble(ServerConfig{Name: "test-server"})
	if err := ensemble.ConnectWithTransport(ctx, clientTransport); err != nil {
		t.Fatalf("ConnectWithTransport failed: %v", err)
	}
	t.Cleanup(func() {
		_ = ensemble.Disconnect()
	})
	return ensemble
}

func TestEnsembleDiscoversTools(t *testing.T) {
	ensemble := setupTestServer(t, map[string]sdk.ToolHandler{
		"get_weather": func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: "sunny"}},
			}, nil
		},
		"get_time": func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: "12:00"}},
			}, nil
		},
	})

	invokers := ensemble.Invokers()
	if len(invokers) != 2 {
		t.Fatalf("expected 2 invokers, got %d", len(invokers))
	}

	names := map[string]bool{}
	for _, inv := range invokers {
		names[inv.Name] = true
		if inv.Schema == nil {
			t.Errorf("invoker %q has no schema", inv.Name)
		}
	}
	if !names["get_weather"] || !names["get_time"] {
		t.Errorf("expected get_weather and get_time, got %v", names)
	}

	if _, ok := ensemble.Lookup("get_weather"); !ok {
		t.Error("Lookup should find discovered tool")
	}
	if _, ok := ensemble.Lookup("unknown"); ok {
		t.Error("Lookup should miss unknown tool")
	}
}

func TestEnsembleInvokerCallsThroughSession(t *testing.T) {
	ensemble := setupTestServer(t, map[string]sdk.ToolHandler{
		"greet": func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			var args struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, err
			}
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: "Hello, " + args.Name + "!"}},
			}, nil
		},
	})

	inv, ok := ensemble.Lookup("greet")
	if !ok {
		t.Fatal("greet not discovered")
	}
	out, err := inv.Fn(context.Background(), map[string]any{"name": "World"})
	if err != nil {
		t.Fatalf("invocation failed: %v", err)
	}
	if out != "Hello, World!" {
		t.Errorf("expected 'Hello, World!', got %q", out)
	}
}

func TestEnsembleToolErrorIsNotFatal(t *testing.T) {
	ensemble := setupTestServer(t, map[string]sdk.ToolHandler{
		"failing_tool": func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: "something went wrong"}},
				IsError: true,
			}, nil
		},
	})

	inv, ok := ensemble.Lookup("failing_tool")
	if !ok {
		t.Fatal("failing_tool not discovered")
	}
	_, err := inv.Fn(context.Background(), nil)
	var toolErr *invoke.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if toolErr.Message != "something went wrong" {
		t.Errorf("unexpected tool error message %q", toolErr.Message)
	}
}

func TestEnsembleConnectIsIdempotent(t *testing.T) {
	ensemble := setupTestServer(t, map[string]sdk.ToolHandler{
		"tool_a": func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: "ok"}},
			}, nil
		},
	})

	// A second connect on a live session must be a no-op.
	if err := ensemble.Connect(context.Background()); err != nil {
		t.Fatalf("repeated Connect failed: %v", err)
	}
	if len(ensemble.Invokers()) != 1 {
		t.Error("repeated Connect must not change discovered tools")
	}
}

func TestEnsembleDisconnectClearsInvokers(t *testing.T) {
	ensemble := setupTestServer(t, map[string]sdk.ToolHandler{
		"tool_a": func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: "ok"}},
			}, nil
		},
	})

	if err := ensemble.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if err := ensemble.Disconnect(); err != nil {
		t.Fatalf("repeated Disconnect failed: %v", err)
	}
	if len(ensemble.Invokers()) != 0 {
		t.Error("Invokers must be empty after disconnect")
	}
	if _, ok := ensemble.Lookup("tool_a"); ok {
		t.Error("Lookup must miss after disconnect")
	}
}

func TestEnsembleWorksWithOrchestrator(t *testing.T) {
	ensemble := setupTestServer(t, map[string]sdk.ToolHandler{
		"echo": func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			var args struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, err
			}
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: args.Text}},
			}, nil
		},
	})

	o := invoke.NewOrchestrator([]invoke.Ensemble{ensemble}, 0, nil)
	inv, ok := o.Lookup("echo")
	if !ok {
		t.Fatal("orchestrator should see MCP invokers")
	}
	out, err := inv.Fn(context.Background(), map[string]any{"text": "ping"})
	if err != nil {
		t.Fatalf("invocation failed: %v", err)
	}
	if out != "ping" {
		t.Errorf("expected 'ping', got %q", out)
	}
}
