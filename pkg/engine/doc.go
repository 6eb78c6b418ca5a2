// Package engine drives turn-based conversations against an LLM provider.
//
// A turn starts with one user message and loops provider rounds until the
// model produces a response without tool calls, dispatching invocation
// requests through an orchestrator between rounds. Conversation history is
// staged in a working copy and committed only when the full turn succeeds,
// so a failed round never corrupts the conversation.
package engine
