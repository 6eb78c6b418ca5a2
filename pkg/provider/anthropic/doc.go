// Package anthropic implements provider.Provider on top of the Anthropic
// Messages API using the official Go SDK. Supervisor messages are promoted to
// the request-level system prompt, invocation messages become tool_use blocks
// inside assistant turns, and result messages become tool_result blocks
// inside user turns. Consecutive same-role turns are merged because the
// Messages API requires strict user/assistant alternation.
package anthropic
