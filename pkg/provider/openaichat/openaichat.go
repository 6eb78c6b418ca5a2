package openaichat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/rhuss/converser/pkg/api"
	"github.com/rhuss/converser/pkg/debug"
	"github.com/rhuss/converser/pkg/provider"
)

// Config holds the connection settings for an OpenAI-compatible Chat
// Completions backend.
type Config struct {
	// APIKey authenticates against the backend. Empty is allowed for
	// keyless local backends.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the default API endpoint. Empty means the SDK
	// default (api.openai.com).
	BaseURL string `yaml:"base_url"`

	// Timeout bounds non-streaming requests. Streaming requests rely on
	// context cancellation instead.
	Timeout time.Duration `yaml:"timeout"`
}

// ChatProvider implements provider.Provider for OpenAI-compatible Chat
// Completions backends.
type ChatProvider struct {
	client openai.Client
	logger *slog.Logger
	caps   provider.Capabilities
}

var _ provider.Provider = (*ChatProvider)(nil)

// New creates a ChatProvider with the given configuration.
func New(cfg Config, logger *slog.Logger) *ChatProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	opts := []option.RequestOption{option.WithRequestTimeout(cfg.Timeout)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &ChatProvider{
		client: openai.NewClient(opts...),
		logger: logger.With("provider", "openai-chat"),
		caps: provider.Capabilities{
			Streaming:   true,
			ToolCalling: true,
		},
	}
}

// Name returns the provider identifier.
func (p *ChatProvider) Name() string {
	return "openai-chat"
}

// Capabilities returns what this provider supports.
func (p *ChatProvider) Capabilities() provider.Capabilities {
	return p.caps
}

// Complete performs non-streaming inference.
func (p *ChatProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	debug.Log("providers", "chat completion request",
		"model", req.Model, "messages", len(req.Messages), "tools", len(req.Tools))

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai-chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, api.NewNormalizationError("openai-chat", "", "response contained no choices")
	}

	choice := resp.Choices[0]
	messages, err := normalizeChoice(choice)
	if err != nil {
		return nil, err
	}

	return &provider.Response{
		Messages:     messages,
		FinishReason: normalizeFinishReason(choice.FinishReason),
		Usage: provider.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Stream performs streaming inference. Tool-call argument deltas are
// aggregated internally; the returned channel carries text deltas followed by
// complete tool calls and a final done event.
func (p *ChatProvider) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	ch := make(chan provider.Event, 16)
	go func() {
		defer close(ch)
		p.consumeStream(ctx, stream, ch)
	}()
	return ch, nil
}

// Close releases provider resources. The SDK client holds no connections
// that outlive requests.
func (p *ChatProvider) Close() error {
	return nil
}
