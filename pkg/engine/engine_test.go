package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rhuss/converser/pkg/api"
	"github.com/rhuss/converser/pkg/invoke"
	"github.com/rhuss/converser/pkg/provider"
	"github.com/rhuss/converser/pkg/storage"
	"github.com/rhuss/converser/pkg/storage/memory"
)

// scriptedProvider replays a fixed sequence of rounds, one per provider
// call, so tests can drive multi-round turns deterministically.
type scriptedProvider struct {
	round  int
	caps   provider.Capabilities
	events [][]provider.Event
	resps  []*provider.Response
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Capabilities() provider.Capabilities { return p.caps }

func (p *scriptedProvider) Close() error { return nil }

func (p *scriptedProvider) Complete(_ context.Context, _ *provider.Request) (*provider.Response, error) {
	if p.round < len(p.resps) {
		resp := p.resps[p.round]
		p.round++
		return resp, nil
	}
	return &provider.Response{FinishReason: provider.FinishStop}, nil
}

func (p *scriptedProvider) Stream(_ context.Context, _ *provider.Request) (<-chan provider.Event, error) {
	var events []provider.Event
	if p.round < len(p.events) {
		events = p.events[p.round]
	}
	p.round++
	return feedEvents(events...), nil
}

// hangingProvider emits one text delta and then stalls, standing in for a
// backend that stops responding mid-stream.
type hangingProvider struct{}

func (p *hangingProvider) Name() string { return "hanging" }

func (p *hangingProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true}
}

func (p *hangingProvider) Close() error { return nil }

func (p *hangingProvider) Complete(context.Context, *provider.Request) (*provider.Response, error) {
	return nil, errors.New("not used")
}

func (p *hangingProvider) Stream(context.Context, *provider.Request) (<-chan provider.Event, error) {
	ch := make(chan provider.Event, 1)
	ch <- provider.Event{Type: provider.EventTextDelta, Delta: "partial"}
	return ch, nil
}

func textRound(text string) []provider.Event {
	return []provider.Event{
		{Type: provider.EventTextDelta, Delta: text},
		{Type: provider.EventDone, FinishReason: provider.FinishStop,
			Usage: &provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
	}
}

func toolRound(callID, name string, args map[string]any) []provider.Event {
	return []provider.Event{
		{Type: provider.EventToolCallDone, ToolCallID: callID, ToolName: name, Arguments: args},
		{Type: provider.EventDone, FinishReason: provider.FinishToolCalls},
	}
}

func weatherEnsemble(t *testing.T, fn invoke.Invocable) *invoke.FunctionEnsemble {
	t.Helper()
	ens := invoke.NewFunctionEnsemble("local")
	err := ens.Register(invoke.Invoker{
		Name:        "get_weather",
		Description: "Current weather for a city",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"city": map[string]any{"type": "string"}},
			"required":   []any{"city"},
		},
		Fn: fn,
	})
	if err != nil {
		t.Fatalf("registering invoker: %v", err)
	}
	if err := ens.Connect(context.Background()); err != nil {
		t.Fatalf("connecting ensemble: %v", err)
	}
	return ens
}

func roles(messages []api.Message) []api.Role {
	out := make([]api.Role, len(messages))
	for i, m := range messages {
		out[i] = m.Role
	}
	return out
}

func TestSendPlainAnswer(t *testing.T) {
	prov := &scriptedProvider{
		caps:   provider.Capabilities{Streaming: true},
		events: [][]provider.Event{textRound("Hello there.")},
	}
	sink := &recordingSink{}
	store := memory.New()

	eng, err := New(prov, nil, store, sink.sink(), Config{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}

	conv := NewConversation()
	appended, err := eng.Send(context.Background(), conv, api.NewUserMessage(api.TextContent("Hi")))
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	wantRoles := []api.Role{api.RoleUser, api.RoleAssistant}
	if fmt.Sprint(roles(appended)) != fmt.Sprint(wantRoles) {
		t.Fatalf("appended roles = %v, want %v", roles(appended), wantRoles)
	}
	if appended[1].Text() != "Hello there." {
		t.Errorf("assistant text = %q", appended[1].Text())
	}
	if len(conv.Messages) != 2 {
		t.Errorf("conversation has %d messages, want 2", len(conv.Messages))
	}

	// Write-behind: the store holds exactly the committed turn.
	persisted, err := store.Replay(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(persisted) != 2 || persisted[0].ID != appended[0].ID {
		t.Errorf("persisted %d messages", len(persisted))
	}

	got := sink.types()
	if got[0] != api.EventMessageStarted || got[len(got)-1] != api.EventMessageCompleted {
		t.Errorf("event sequence = %v", got)
	}
}

func TestSendToolRound(t *testing.T) {
	prov := &scriptedProvider{
		caps: provider.Capabilities{Streaming: true, ToolCalling: true},
		events: [][]provider.Event{
			toolRound("call_1", "get_weather", map[string]any{"city": "Berlin"}),
			textRound("It is 22C in Berlin."),
		},
	}
	ens := weatherEnsemble(t, func(_ context.Context, args map[string]any) (string, error) {
		return "22C", nil
	})
	orch := invoke.NewOrchestrator([]invoke.Ensemble{ens}, 0, nil)
	store := memory.New()

	eng, err := New(prov, orch, store, nil, Config{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}

	conv := NewConversation()
	appended, err := eng.Send(context.Background(), conv, api.NewUserMessage(api.TextContent("Weather in Berlin?")))
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	wantRoles := []api.Role{
		api.RoleUser,
		api.RoleAssistant,
		api.RoleInvocation,
		api.RoleResult,
		api.RoleAssistant,
	}
	if fmt.Sprint(roles(appended)) != fmt.Sprint(wantRoles) {
		t.Fatalf("appended roles = %v, want %v", roles(appended), wantRoles)
	}
	if appended[3].Result.InvocationID != "call_1" {
		t.Errorf("result joined to %q, want call_1", appended[3].Result.InvocationID)
	}
	if appended[3].Text() != "22C" {
		t.Errorf("result text = %q", appended[3].Text())
	}
	if appended[4].Text() != "It is 22C in Berlin." {
		t.Errorf("final answer = %q", appended[4].Text())
	}

	persisted, err := store.Replay(context.Background(), conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != len(appended) {
		t.Errorf("persisted %d messages, want %d", len(persisted), len(appended))
	}
}

func TestSendRoundCapExceeded(t *testing.T) {
	// The model keeps calling tools forever.
	loops := make([][]provider.Event, 5)
	for i := range loops {
		loops[i] = toolRound(fmt.Sprintf("call_%d", i), "get_weather", map[string]any{"city": "Berlin"})
	}
	prov := &scriptedProvider{
		caps:   provider.Capabilities{Streaming: true, ToolCalling: true},
		events: loops,
	}
	ens := weatherEnsemble(t, func(_ context.Context, _ map[string]any) (string, error) {
		return "22C", nil
	})
	orch := invoke.NewOrchestrator([]invoke.Ensemble{ens}, 0, nil)
	store := memory.New()

	eng, err := New(prov, orch, store, nil, Config{Model: "m", MaxToolRounds: 2})
	if err != nil {
		t.Fatal(err)
	}

	conv := NewConversation()
	_, err = eng.Send(context.Background(), conv, api.NewUserMessage(api.TextContent("loop")))

	var capErr *api.TooManyToolRoundsError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected TooManyToolRoundsError, got %v", err)
	}
	if capErr.Rounds != 2 {
		t.Errorf("rounds = %d, want 2", capErr.Rounds)
	}
	if len(conv.Messages) != 0 {
		t.Error("failed turn must not touch the conversation")
	}
	if _, err := store.Replay(context.Background(), conv.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Error("failed turn must not persist anything")
	}
}

func TestSendStreamFailureLeavesHistoryIntact(t *testing.T) {
	prov := &scriptedProvider{
		caps: provider.Capabilities{Streaming: true},
		events: [][]provider.Event{{
			{Type: provider.EventTextDelta, Delta: "part"},
			{Type: provider.EventError, Err: api.NewStreamingError("scripted", "boom")},
		}},
	}
	store := memory.New()
	eng, err := New(prov, nil, store, nil, Config{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}

	conv := NewConversation()
	conv.Messages = []api.Message{api.NewUserMessage(api.TextContent("earlier"))}
	before := len(conv.Messages)

	_, err = eng.Send(context.Background(), conv, api.NewUserMessage(api.TextContent("again")))
	var streamErr *api.StreamingError
	if !errors.As(err, &streamErr) {
		t.Fatalf("expected StreamingError, got %v", err)
	}
	if len(conv.Messages) != before {
		t.Error("failed turn must not touch the conversation")
	}
	if _, err := store.Replay(context.Background(), conv.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Error("failed turn must not persist anything")
	}
}

func TestSendCancellationLeavesHistoryIntact(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel as soon as the first chunk arrives, mid-stream.
	sink := func(ev api.ConversationEvent) {
		if ev.Type == api.EventMessageProgress {
			cancel()
		}
	}
	store := memory.New()
	eng, err := New(&hangingProvider{}, nil, store, sink, Config{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}

	conv := NewConversation()
	conv.Messages = []api.Message{api.NewUserMessage(api.TextContent("earlier"))}
	before := len(conv.Messages)

	_, err = eng.Send(ctx, conv, api.NewUserMessage(api.TextContent("again")))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(conv.Messages) != before {
		t.Error("cancelled turn must not touch the conversation")
	}
	if _, err := store.Replay(context.Background(), conv.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Error("cancelled turn must not persist anything")
	}
}

func TestSendFatalInvocationAborts(t *testing.T) {
	prov := &scriptedProvider{
		caps: provider.Capabilities{Streaming: true, ToolCalling: true},
		events: [][]provider.Event{
			toolRound("call_1", "get_weather", map[string]any{"city": "Berlin"}),
			textRound("unreachable"),
		},
	}
	ens := weatherEnsemble(t, func(_ context.Context, _ map[string]any) (string, error) {
		return "", errors.New("backend exploded")
	})
	orch := invoke.NewOrchestrator([]invoke.Ensemble{ens}, 0, nil)

	eng, err := New(prov, orch, nil, nil, Config{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}

	conv := NewConversation()
	_, err = eng.Send(context.Background(), conv, api.NewUserMessage(api.TextContent("go")))

	var execErr *api.InvocationExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected InvocationExecutionError, got %v", err)
	}
	if execErr.Invoker != "get_weather" {
		t.Errorf("invoker = %q", execErr.Invoker)
	}
	if len(conv.Messages) != 0 {
		t.Error("failed turn must not touch the conversation")
	}
}

func TestSendMissingInvokerFlowsBackToModel(t *testing.T) {
	prov := &scriptedProvider{
		caps: provider.Capabilities{Streaming: true, ToolCalling: true},
		events: [][]provider.Event{
			toolRound("call_1", "nonexistent", map[string]any{}),
			textRound("I could not find that tool."),
		},
	}
	ens := weatherEnsemble(t, func(_ context.Context, _ map[string]any) (string, error) {
		return "22C", nil
	})
	orch := invoke.NewOrchestrator([]invoke.Ensemble{ens}, 0, nil)

	eng, err := New(prov, orch, nil, nil, Config{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}

	conv := NewConversation()
	appended, err := eng.Send(context.Background(), conv, api.NewUserMessage(api.TextContent("go")))
	if err != nil {
		t.Fatalf("missing invoker must not fail the turn: %v", err)
	}

	var result *api.ResultData
	for _, m := range appended {
		if m.Role == api.RoleResult {
			result = m.Result
		}
	}
	if result == nil || result.Error == "" {
		t.Fatal("expected an error result message for the unknown invoker")
	}
}

func TestSendNonStreamingFallback(t *testing.T) {
	assistant := api.NewAssistantMessage(api.TextContent("plain answer"))
	prov := &scriptedProvider{
		caps: provider.Capabilities{Streaming: false},
		resps: []*provider.Response{{
			Messages:     []api.Message{assistant},
			FinishReason: provider.FinishStop,
			Usage:        provider.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
		}},
	}
	sink := &recordingSink{}
	eng, err := New(prov, nil, nil, sink.sink(), Config{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}

	conv := NewConversation()
	appended, err := eng.Send(context.Background(), conv, api.NewUserMessage(api.TextContent("Hi")))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if appended[1].Text() != "plain answer" {
		t.Errorf("assistant text = %q", appended[1].Text())
	}

	got := sink.types()
	if len(got) != 2 || got[0] != api.EventMessageStarted || got[1] != api.EventMessageCompleted {
		t.Errorf("event sequence = %v, want started then completed", got)
	}
}

func TestSendRejectsNonUserMessage(t *testing.T) {
	prov := &scriptedProvider{caps: provider.Capabilities{Streaming: true}}
	eng, err := New(prov, nil, nil, nil, Config{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}

	conv := NewConversation()
	if _, err := eng.Send(context.Background(), conv, api.NewAssistantMessage()); err == nil {
		t.Error("expected rejection of a non-user turn input")
	}
}

func TestReplayRebuildsConversation(t *testing.T) {
	prov := &scriptedProvider{
		caps:   provider.Capabilities{Streaming: true},
		events: [][]provider.Event{textRound("remembered")},
	}
	store := memory.New()
	eng, err := New(prov, nil, store, nil, Config{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}

	conv := NewConversation()
	if _, err := eng.Send(context.Background(), conv, api.NewUserMessage(api.TextContent("Hi"))); err != nil {
		t.Fatal(err)
	}

	rebuilt, err := eng.Replay(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if rebuilt.ID != conv.ID || len(rebuilt.Messages) != len(conv.Messages) {
		t.Errorf("rebuilt %d messages for %s", len(rebuilt.Messages), rebuilt.ID)
	}
	if rebuilt.Messages[1].Text() != "remembered" {
		t.Errorf("rebuilt assistant text = %q", rebuilt.Messages[1].Text())
	}
}
