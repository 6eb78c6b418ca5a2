package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/converser/pkg/api"
	"github.com/rhuss/converser/pkg/observability"
	"github.com/rhuss/converser/pkg/provider"
)

// accumulator folds a provider event stream into one finalized assistant
// message plus any invocation messages, emitting lifecycle events to the
// sink along the way. One accumulator serves one provider round.
//
// Event ordering per message: exactly one started event, then any number of
// progress/updated events, then exactly one of completed or failed.
type accumulator struct {
	sink   api.EventSink
	logger *slog.Logger

	messageID   string
	text        strings.Builder
	invocations []api.Message
	finish      provider.FinishReason
	usage       *provider.Usage
}

func newAccumulator(sink api.EventSink, logger *slog.Logger) *accumulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &accumulator{sink: sink, logger: logger}
}

// consume drains the event channel and returns the finalized assistant
// message and the invocation messages in production order. On a stream
// error or context cancellation no completed event is emitted and the
// partial state is discarded by the caller.
func (a *accumulator) consume(ctx context.Context, events <-chan provider.Event) (api.Message, []api.Message, error) {
	a.messageID = api.NewMessageID()
	a.emit(api.ConversationEvent{Type: api.EventMessageStarted, MessageID: a.messageID})

	for {
		select {
		case <-ctx.Done():
			return api.Message{}, nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return a.finalize(), a.invocations, nil
			}
			if err := a.handle(ev); err != nil {
				return api.Message{}, nil, err
			}
		}
	}
}

// handle processes one provider event. A non-nil return aborts the stream.
func (a *accumulator) handle(ev provider.Event) error {
	switch ev.Type {
	case provider.EventTextDelta:
		observability.StreamEventsTotal.WithLabelValues("text_delta").Inc()
		a.text.WriteString(ev.Delta)
		a.emit(api.ConversationEvent{
			Type:      api.EventMessageProgress,
			MessageID: a.messageID,
			Chunk:     ev.Delta,
		})

	case provider.EventTextSnapshot:
		observability.StreamEventsTotal.WithLabelValues("text_snapshot").Inc()
		a.text.Reset()
		a.text.WriteString(ev.Snapshot)
		a.emit(api.ConversationEvent{
			Type:      api.EventMessageUpdated,
			MessageID: a.messageID,
			Content:   ev.Snapshot,
		})

	case provider.EventToolCallDone:
		observability.StreamEventsTotal.WithLabelValues("tool_call").Inc()
		a.invocations = append(a.invocations,
			api.NewInvocationMessage(ev.ToolCallID, ev.ToolName, ev.Arguments))

	case provider.EventDone:
		observability.StreamEventsTotal.WithLabelValues("done").Inc()
		a.finish = ev.FinishReason
		a.usage = ev.Usage

	case provider.EventError:
		observability.StreamEventsTotal.WithLabelValues("error").Inc()
		a.emit(api.ConversationEvent{
			Type:      api.EventMessageFailed,
			MessageID: a.messageID,
			Error:     ev.Err.Error(),
		})
		return ev.Err

	default:
		// Unknown event types from a newer provider are tolerated.
		observability.StreamEventsTotal.WithLabelValues("unknown").Inc()
		a.logger.Warn("unrecognized provider stream event", "type", int(ev.Type))
		a.emit(api.ConversationEvent{
			Type:      api.EventMessageProgress,
			MessageID: a.messageID,
		})
	}
	return nil
}

// finalize builds the assistant message from the accumulated text and emits
// the completed event. Empty content is valid for tool-call-only rounds.
func (a *accumulator) finalize() api.Message {
	msg := api.Message{
		ID:        a.messageID,
		Role:      api.RoleAssistant,
		Timestamp: time.Now().UTC(),
		Assistant: &api.AssistantData{},
	}
	if a.text.Len() > 0 {
		msg.Assistant.Content = []api.Content{api.TextContent(a.text.String())}
	}
	a.emit(api.ConversationEvent{
		Type:      api.EventMessageCompleted,
		MessageID: a.messageID,
		Content:   a.text.String(),
		Message:   &msg,
	})
	return msg
}

func (a *accumulator) emit(ev api.ConversationEvent) {
	if a.sink != nil {
		a.sink(ev)
	}
}
