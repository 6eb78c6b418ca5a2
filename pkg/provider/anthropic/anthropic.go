package anthropic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rhuss/converser/pkg/provider"
)

// defaultMaxTokens applies when the request carries no explicit limit; the
// Messages API requires max_tokens on every call.
const defaultMaxTokens = 4096

// Config holds the connection settings for the Anthropic backend.
type Config struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// MessagesProvider implements provider.Provider for the Anthropic Messages API.
type MessagesProvider struct {
	client anthropic.Client
	logger *slog.Logger
	caps   provider.Capabilities
}

var _ provider.Provider = (*MessagesProvider)(nil)

// New creates a MessagesProvider with the given configuration.
func New(cfg Config, logger *slog.Logger) *MessagesProvider {
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

	return &MessagesProvider{
		client: anthropic.NewClient(opts...),
		logger: logger.With("provider", "anthropic"),
		caps: provider.Capabilities{
			Streaming:   true,
			ToolCalling: true,
		},
	}
}

// Name returns the provider identifier.
func (p *MessagesProvider) Name() string {
	return "anthropic"
}

// Capabilities returns what this provider supports.
func (p *MessagesProvider) Capabilities() provider.Capabilities {
	return p.caps
}

// Complete performs non-streaming inference.
func (p *MessagesProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	messages, err := normalizeContent(resp.Content)
	if err != nil {
		return nil, err
	}

	return &provider.Response{
		Messages:     messages,
		FinishReason: normalizeStopReason(string(resp.StopReason)),
		Usage: provider.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// Stream performs streaming inference. tool_use input JSON deltas are
// aggregated per content block; each call surfaces as one complete event
// when its block closes.
func (p *MessagesProvider) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	ch := make(chan provider.Event, 16)
	go func() {
		defer close(ch)
		p.consumeStream(ctx, stream, ch)
	}()
	return ch, nil
}

// Close releases provider resources.
func (p *MessagesProvider) Close() error {
	return nil
}
