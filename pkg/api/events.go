package api

// EventType identifies the kind of a conversation lifecycle event.
type EventType string

const (
	EventMessageStarted   EventType = "message.started"
	EventMessageProgress  EventType = "message.progress"
	EventMessageUpdated   EventType = "message.updated"
	EventMessageCompleted EventType = "message.completed"
	EventMessageFailed    EventType = "message.failed"
)

// ConversationEvent is one lifecycle notification for an in-flight message.
// Events for a message ID are totally ordered: exactly one started event
// precedes any progress/updated events, and exactly one of completed or
// failed terminates the sequence. Events are immutable and serializable and
// carry no reference to mutable engine state.
type ConversationEvent struct {
	Type      EventType `json:"type"`
	MessageID string    `json:"message_id"`

	// Chunk carries the incremental text of a progress event.
	Chunk string `json:"chunk,omitempty"`

	// Content carries the full current text snapshot for updated and
	// completed events (replacement, not append).
	Content string `json:"content,omitempty"`

	// Message is the finalized message on a completed event.
	Message *Message `json:"message,omitempty"`

	// Error describes why the message failed.
	Error string `json:"error,omitempty"`
}

// EventSink receives conversation events. It is invoked synchronously at
// each emission point; a sink that blocks stalls the conversation.
type EventSink func(ConversationEvent)
