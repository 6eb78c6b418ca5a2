package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/rhuss/converser/pkg/api"
	"github.com/rhuss/converser/pkg/debug"
	"github.com/rhuss/converser/pkg/invoke"
	"github.com/rhuss/converser/pkg/observability"
	"github.com/rhuss/converser/pkg/provider"
	"github.com/rhuss/converser/pkg/storage"
)

// Conversation is an ordered, exclusively owned message history. The engine
// replaces Messages wholesale when a turn commits; callers must not mutate
// it concurrently with Send.
type Conversation struct {
	ID       string
	Messages []api.Message
}

// NewConversation creates an empty conversation with a fresh UUID.
func NewConversation() *Conversation {
	return &Conversation{ID: api.NewConversationID()}
}

// Engine runs conversation turns against a provider, dispatching tool calls
// through the orchestrator and persisting committed messages write-behind.
type Engine struct {
	provider     provider.Provider
	orchestrator *invoke.Orchestrator
	store        storage.Log
	sink         api.EventSink
	cfg          Config
	logger       *slog.Logger
}

// New creates an Engine. The provider must not be nil. The orchestrator,
// store, and sink may each be nil: no tools, no persistence, no lifecycle
// notifications respectively.
func New(p provider.Provider, orch *invoke.Orchestrator, store storage.Log, sink api.EventSink, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	return &Engine{
		provider:     p,
		orchestrator: orch,
		store:        store,
		sink:         sink,
		cfg:          cfg,
		logger:       slog.Default(),
	}, nil
}

// Send runs one conversation turn. It stages the user message on a working
// copy of the history, loops provider rounds until the model stops calling
// tools, then commits the new messages to the conversation and writes them
// behind to the store. On any failure the conversation is left untouched
// and nothing is persisted.
//
// The returned slice holds the messages appended by this turn, starting
// with the user message, in commit order.
func (e *Engine) Send(ctx context.Context, conv *Conversation, user api.Message) ([]api.Message, error) {
	start := time.Now()
	appended, err := e.runTurn(ctx, conv, user)

	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.TurnsTotal.WithLabelValues(e.provider.Name(), e.cfg.Model, status).Inc()
	observability.TurnDuration.WithLabelValues(e.provider.Name(), e.cfg.Model).Observe(time.Since(start).Seconds())

	return appended, err
}

func (e *Engine) runTurn(ctx context.Context, conv *Conversation, user api.Message) ([]api.Message, error) {
	if user.Role != api.RoleUser {
		return nil, fmt.Errorf("engine: turn input must be a user message, got %s", user.Role)
	}

	caps := e.provider.Capabilities()
	staged := append(slices.Clone(conv.Messages), user)
	appended := []api.Message{user}

	maxRounds := e.cfg.maxRounds()
	for round := 0; round < maxRounds; round++ {
		if e.cfg.Limiter != nil {
			if err := e.cfg.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req := &provider.Request{
			Model:    e.cfg.Model,
			Messages: staged,
			Tools:    e.toolDefinitions(),
			Controls: e.cfg.Controls,
			Stream:   caps.Streaming,
		}
		if err := provider.ValidateCapabilities(caps, req); err != nil {
			return nil, err
		}

		assistant, invocations, err := e.runRound(ctx, req)
		if err != nil {
			return nil, err
		}

		staged = append(staged, assistant)
		appended = append(appended, assistant)

		if len(invocations) == 0 {
			return appended, e.commit(ctx, conv, staged, appended)
		}

		staged = append(staged, invocations...)
		appended = append(appended, invocations...)

		results, err := e.dispatch(ctx, invocations)
		if err != nil {
			return nil, err
		}
		staged = append(staged, results...)
		appended = append(appended, results...)
	}

	return nil, &api.TooManyToolRoundsError{Rounds: maxRounds}
}

// runRound performs one provider call and returns the finalized assistant
// message plus any invocation messages the model produced.
func (e *Engine) runRound(ctx context.Context, req *provider.Request) (api.Message, []api.Message, error) {
	provName := e.provider.Name()
	debug.Log("engine", "provider round",
		"provider", provName, "model", req.Model,
		"history", len(req.Messages), "tools", len(req.Tools), "stream", req.Stream)
	start := time.Now()

	var (
		assistant   api.Message
		invocations []api.Message
		usage       *provider.Usage
		err         error
	)
	if req.Stream {
		var events <-chan provider.Event
		events, err = e.provider.Stream(ctx, req)
		if err == nil {
			acc := newAccumulator(e.sink, e.logger)
			assistant, invocations, err = acc.consume(ctx, events)
			usage = acc.usage
		}
	} else {
		assistant, invocations, usage, err = e.completeRound(ctx, req)
	}

	duration := time.Since(start)
	observability.ProviderLatency.WithLabelValues(provName, req.Model).Observe(duration.Seconds())
	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues(provName, req.Model, "error").Inc()
		return api.Message{}, nil, err
	}
	observability.ProviderRequestsTotal.WithLabelValues(provName, req.Model, "success").Inc()
	if usage != nil {
		observability.ProviderTokensTotal.WithLabelValues(provName, req.Model, "input").Add(float64(usage.PromptTokens))
		observability.ProviderTokensTotal.WithLabelValues(provName, req.Model, "output").Add(float64(usage.CompletionTokens))
	}

	return assistant, invocations, nil
}

// completeRound is the non-streaming fallback. It still emits the started
// and completed lifecycle events so sinks observe a uniform sequence.
func (e *Engine) completeRound(ctx context.Context, req *provider.Request) (api.Message, []api.Message, *provider.Usage, error) {
	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		return api.Message{}, nil, nil, err
	}

	var assistant api.Message
	var invocations []api.Message
	for _, m := range resp.Messages {
		switch m.Role {
		case api.RoleAssistant:
			assistant = m
		case api.RoleInvocation:
			invocations = append(invocations, m)
		}
	}
	if assistant.ID == "" {
		assistant = api.NewAssistantMessage()
	}

	if e.sink != nil {
		e.sink(api.ConversationEvent{Type: api.EventMessageStarted, MessageID: assistant.ID})
		e.sink(api.ConversationEvent{
			Type:      api.EventMessageCompleted,
			MessageID: assistant.ID,
			Content:   assistant.Text(),
			Message:   &assistant,
		})
	}

	return assistant, invocations, &resp.Usage, nil
}

// dispatch runs one invocation round through the orchestrator.
func (e *Engine) dispatch(ctx context.Context, invocations []api.Message) ([]api.Message, error) {
	if e.orchestrator == nil {
		// No tools were advertised, yet the model requested some.
		names := make([]string, 0, len(invocations))
		for _, m := range invocations {
			if m.Invocation != nil {
				names = append(names, m.Invocation.Name)
			}
		}
		return nil, fmt.Errorf("engine: model requested invocations %v but no orchestrator is configured", names)
	}
	return e.orchestrator.Dispatch(ctx, invocations)
}

// commit publishes the staged history and writes the turn's messages behind
// to the store. A storage failure is reported but the in-memory commit
// stands; the caller observes both the messages and the error.
func (e *Engine) commit(ctx context.Context, conv *Conversation, staged, appended []api.Message) error {
	conv.Messages = staged
	if e.store == nil {
		return nil
	}
	if err := e.store.Append(ctx, conv.ID, appended...); err != nil {
		e.logger.Error("persisting turn", "conversation_id", conv.ID, "error", err)
		return fmt.Errorf("persisting turn: %w", err)
	}
	return nil
}

// toolDefinitions collects provider-facing definitions from all connected
// ensembles.
func (e *Engine) toolDefinitions() []provider.ToolDefinition {
	if e.orchestrator == nil {
		return nil
	}
	return invoke.Definitions(e.orchestrator.Invokers())
}

// Replay rebuilds a conversation from the store.
func (e *Engine) Replay(ctx context.Context, conversationID string) (*Conversation, error) {
	if e.store == nil {
		return nil, fmt.Errorf("engine: no store configured")
	}
	history, err := e.store.Replay(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return &Conversation{ID: conversationID, Messages: history}, nil
}

// Close releases the provider.
func (e *Engine) Close() error {
	return e.provider.Close()
}
