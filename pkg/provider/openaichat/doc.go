// Package openaichat implements provider.Provider on top of the OpenAI Chat
// Completions API using the official Go SDK. It nativizes the neutral message
// history into chat messages (folding invocation messages into assistant
// tool_calls and result messages into tool-role messages) and normalizes
// completions and stream chunks back into neutral form.
package openaichat
