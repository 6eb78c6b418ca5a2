// Command mock-backend runs a deterministic Chat Completions server so the
// demo can be exercised without API keys. Point the demo at it with
// provider.kind=openai and base_url=http://localhost:9090/v1.
//
// Behavior: when the request offers tools and no tool result is present yet,
// it requests a call to the first offered tool; once a tool result appears
// in the history it answers with text that quotes the result; otherwise it
// streams a canned reply.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Request types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []toolDef     `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type toolDef struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// --- Handler ---

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	model := req.Model
	if model == "" {
		model = "mock-model"
	}

	// One tool round per conversation: request a call until a tool result
	// shows up in the history, then answer with text.
	toolResult := lastToolResult(&req)
	wantsTool := len(req.Tools) > 0 && toolResult == ""

	text := "Hello from the mock backend."
	if toolResult != "" {
		text = fmt.Sprintf("The tool reported: %s", toolResult)
	}

	if req.Stream {
		if wantsTool {
			streamToolCall(w, model, req.Tools[0].Function.Name)
		} else {
			streamText(w, model, text)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if wantsTool {
		json.NewEncoder(w).Encode(toolCallResponse(model, req.Tools[0].Function.Name))
	} else {
		json.NewEncoder(w).Encode(textResponse(model, text))
	}
}

func lastToolResult(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "tool" {
			if s, ok := req.Messages[i].Content.(string); ok {
				return s
			}
		}
	}
	return ""
}

// --- Non-streaming responses ---

func textResponse(model, text string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-mock-text",
		"object": "chat.completion",
		"model":  model,
		"choices": []any{map[string]any{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": text},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func toolCallResponse(model, tool string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-mock-tool",
		"object": "chat.completion",
		"model":  model,
		"choices": []any{map[string]any{
			"index": 0,
			"message": map[string]any{
				"role":    "assistant",
				"content": nil,
				"tool_calls": []any{map[string]any{
					"id":       "call_mock_1",
					"type":     "function",
					"function": map[string]any{"name": tool, "arguments": "{}"},
				}},
			},
			"finish_reason": "tool_calls",
		}},
		"usage": map[string]any{"prompt_tokens": 20, "completion_tokens": 15, "total_tokens": 35},
	}
}

// --- Streaming ---

func streamText(w http.ResponseWriter, model, text string) {
	flusher := startStream(w)
	if flusher == nil {
		return
	}

	writeChunk(w, model, map[string]any{"role": "assistant"}, nil)
	flusher.Flush()

	// Chunk the text character by character to exercise delta accumulation.
	for _, r := range text {
		writeChunk(w, model, map[string]any{"content": string(r)}, nil)
	}
	flusher.Flush()

	writeChunk(w, model, map[string]any{}, strPtr("stop"))
	writeDone(w)
	flusher.Flush()
}

func streamToolCall(w http.ResponseWriter, model, tool string) {
	flusher := startStream(w)
	if flusher == nil {
		return
	}

	writeChunk(w, model, map[string]any{
		"role": "assistant",
		"tool_calls": []any{map[string]any{
			"index":    0,
			"id":       "call_mock_1",
			"type":     "function",
			"function": map[string]any{"name": tool, "arguments": "{}"},
		}},
	}, nil)
	flusher.Flush()

	writeChunk(w, model, map[string]any{}, strPtr("tool_calls"))
	writeDone(w)
	flusher.Flush()
}

func startStream(w http.ResponseWriter) http.Flusher {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return nil
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher
}

func writeChunk(w http.ResponseWriter, model string, delta map[string]any, finish *string) {
	chunk := map[string]any{
		"id":     "chatcmpl-mock-stream",
		"object": "chat.completion.chunk",
		"model":  model,
		"choices": []any{map[string]any{
			"index":         0,
			"delta":         delta,
			"finish_reason": finish,
		}},
	}
	if finish != nil {
		chunk["usage"] = map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeDone(w http.ResponseWriter) {
	fmt.Fprintf(w, "data: [DONE]\n\n")
}

func strPtr(s string) *string { return &s }
