package openaichat

import (
	"context"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/rhuss/converser/pkg/api"
	"github.com/rhuss/converser/pkg/provider"
)

// aggCall accumulates the streamed fragments of one tool call. The id and
// name arrive on the first delta; arguments build up across deltas.
type aggCall struct {
	id, name, args string
}

// send forwards one event unless the consumer has abandoned the channel.
// Reports whether the event was delivered.
func send(ctx context.Context, ch chan<- provider.Event, ev provider.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// consumeStream drains the SDK stream, forwarding text deltas immediately and
// buffering tool-call deltas until the finish chunk, when each aggregated
// call is emitted as a single complete event.
func (p *ChatProvider) consumeStream(
	ctx context.Context,
	stream *ssestream.Stream[openai.ChatCompletionChunk],
	ch chan<- provider.Event,
) {
	defer stream.Close()

	agg := map[int64]*aggCall{}
	var finish provider.FinishReason = provider.FinishStop
	var usage *provider.Usage
	finished := false

	for stream.Next() {
		if ctx.Err() != nil {
			return
		}
		chunk := stream.Current()

		// Usage arrives in a trailing chunk with no choices when
		// stream_options.include_usage is set.
		if chunk.Usage.TotalTokens > 0 {
			usage = &provider.Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			}
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				if !send(ctx, ch, provider.Event{Type: provider.EventTextDelta, Delta: choice.Delta.Content}) {
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				ac, ok := agg[tc.Index]
				if !ok {
					ac = &aggCall{}
					agg[tc.Index] = ac
				}
				if tc.ID != "" {
					ac.id = tc.ID
				}
				if tc.Function.Name != "" {
					ac.name = tc.Function.Name
				}
				ac.args += tc.Function.Arguments
			}
			if choice.FinishReason != "" {
				finish = normalizeFinishReason(choice.FinishReason)
				finished = true
				if err := p.emitAggregatedCalls(ctx, agg, ch); err != nil {
					send(ctx, ch, provider.Event{Type: provider.EventError, Err: err})
					return
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		send(ctx, ch, provider.Event{
			Type: provider.EventError,
			Err:  api.NewStreamingError("openai-chat", err.Error()),
		})
		return
	}
	if !finished && len(agg) > 0 {
		// Backend closed without a finish chunk; salvage the calls.
		if err := p.emitAggregatedCalls(ctx, agg, ch); err != nil {
			send(ctx, ch, provider.Event{Type: provider.EventError, Err: err})
			return
		}
	}

	send(ctx, ch, provider.Event{Type: provider.EventDone, FinishReason: finish, Usage: usage})
}

// emitAggregatedCalls flushes completed tool calls in index order.
func (p *ChatProvider) emitAggregatedCalls(ctx context.Context, agg map[int64]*aggCall, ch chan<- provider.Event) error {
	indexes := make([]int64, 0, len(agg))
	for idx := range agg {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	for _, idx := range indexes {
		ac := agg[idx]
		args, err := parseArguments(ac.args)
		if err != nil {
			return api.NewNormalizationError("openai-chat", ac.args,
				"aggregated tool call arguments are not valid JSON")
		}
		if !send(ctx, ch, provider.Event{
			Type:       provider.EventToolCallDone,
			ToolCallID: ac.id,
			ToolName:   ac.name,
			Arguments:  args,
		}) {
			return nil
		}
		delete(agg, idx)
	}
	return nil
}
