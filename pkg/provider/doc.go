// Package provider defines the protocol-agnostic interface for LLM inference
// backends. Each adapter implementation (e.g., openaichat, anthropic) handles
// its own wire protocol internally: it nativizes the neutral message history
// into its backend's request shape and normalizes backend output back into
// neutral messages and events, keeping protocol details invisible to the
// engine.
package provider
