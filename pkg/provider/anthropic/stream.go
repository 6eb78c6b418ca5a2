package anthropic

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/rhuss/converser/pkg/api"
	"github.com/rhuss/converser/pkg/provider"
)

// toolAgg accumulates one tool_use content block: id and name arrive on the
// block start event, input JSON builds up across input_json_delta events.
type toolAgg struct {
	id, name, inputJSON string
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

// consumeStream drains the Messages API event stream. Text deltas are
// forwarded as they arrive; each tool_use block is emitted as one complete
// event when its content_block_stop arrives.
func (p *MessagesProvider) consumeStream(
	ctx context.Context,
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion],
	ch chan<- provider.Event,
) {
	defer stream.Close()

	agg := map[int64]*toolAgg{}
	var usage provider.Usage
	var finish provider.FinishReason = provider.FinishStop

	for stream.Next() {
		if ctx.Err() != nil {
			return
		}
		event := stream.Current()

		switch ev := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage.PromptTokens = int(ev.Message.Usage.InputTokens)

		case anthropic.ContentBlockStartEvent:
			if ev.ContentBlock.Type == "tool_use" {
				agg[ev.Index] = &toolAgg{
					id:   ev.ContentBlock.ID,
					name: ev.ContentBlock.Name,
				}
			}

		case anthropic.ContentBlockDeltaEvent:
			switch ev.Delta.Type {
			case "text_delta":
				if ev.Delta.Text != "" {
					if !send(ctx, ch, provider.Event{Type: provider.EventTextDelta, Delta: ev.Delta.Text}) {
						return
					}
				}
			case "input_json_delta":
				if ac, ok := agg[ev.Index]; ok {
					ac.inputJSON += ev.Delta.PartialJSON
				}
			}

		case anthropic.ContentBlockStopEvent:
			ac, ok := agg[ev.Index]
			if !ok {
				continue
			}
			delete(agg, ev.Index)
			args, err := parseInput(ac.inputJSON)
			if err != nil {
				send(ctx, ch, provider.Event{
					Type: provider.EventError,
					Err: api.NewNormalizationError("anthropic", ac.inputJSON,
						"aggregated tool_use input is not valid JSON"),
				})
				return
			}
			if !send(ctx, ch, provider.Event{
				Type:       provider.EventToolCallDone,
				ToolCallID: ac.id,
				ToolName:   ac.name,
				Arguments:  args,
			}) {
				return
			}

		case anthropic.MessageDeltaEvent:
			if ev.Delta.StopReason != "" {
				finish = normalizeStopReason(string(ev.Delta.StopReason))
			}
			usage.CompletionTokens = int(ev.Usage.OutputTokens)

		case anthropic.MessageStopEvent:
			// Terminal event; stream.Next() returns false after this.
		}
	}

	if err := stream.Err(); err != nil {
		send(ctx, ch, provider.Event{
			Type: provider.EventError,
			Err:  api.NewStreamingError("anthropic", err.Error()),
		})
		return
	}

	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	send(ctx, ch, provider.Event{Type: provider.EventDone, FinishReason: finish, Usage: &usage})
}

// parseInput decodes an aggregated tool_use input. Zero-argument calls stream
// no input_json_delta events at all, leaving the buffer empty.
func parseInput(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}
