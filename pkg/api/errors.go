package api

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord is wrapped by record codec errors so callers can test
// with errors.Is.
var ErrMalformedRecord = errors.New("malformed message record")

// NormalizationError reports a provider payload that could not be converted
// to the neutral message model. Fragment holds the offending portion of the
// payload for offline diagnosis.
type NormalizationError struct {
	Provider string
	Fragment string
	Reason   string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalizing %s payload: %s (fragment: %s)", e.Provider, e.Reason, e.Fragment)
}

// NewNormalizationError creates a NormalizationError.
func NewNormalizationError(provider, fragment, reason string) *NormalizationError {
	return &NormalizationError{Provider: provider, Fragment: fragment, Reason: reason}
}

// NativizationError reports a neutral message sequence that could not be
// converted to a provider's native request shape.
type NativizationError struct {
	Provider string
	Reason   string
}

func (e *NativizationError) Error() string {
	return fmt.Sprintf("nativizing for %s: %s", e.Provider, e.Reason)
}

// NewNativizationError creates a NativizationError.
func NewNativizationError(provider, reason string) *NativizationError {
	return &NativizationError{Provider: provider, Reason: reason}
}

// StreamingError reports a provider-signaled failure mid-stream. Fatal to
// the turn, not to the process: no partial assistant message is committed.
type StreamingError struct {
	Provider string
	Reason   string
}

func (e *StreamingError) Error() string {
	return fmt.Sprintf("%s stream failed: %s", e.Provider, e.Reason)
}

// NewStreamingError creates a StreamingError.
func NewStreamingError(provider, reason string) *StreamingError {
	return &StreamingError{Provider: provider, Reason: reason}
}

// InvocationExecutionError reports an invocable that raised (or timed out)
// during execution. This is fatal to the current turn: it propagates to the
// driver's caller instead of becoming an error ResultMessage.
type InvocationExecutionError struct {
	Invoker      string
	InvocationID string
	TimedOut     bool
	Err          error
}

func (e *InvocationExecutionError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("invoker %s (invocation %s) timed out", e.Invoker, e.InvocationID)
	}
	return fmt.Sprintf("invoker %s (invocation %s) failed: %v", e.Invoker, e.InvocationID, e.Err)
}

func (e *InvocationExecutionError) Unwrap() error { return e.Err }

// TooManyToolRoundsError guards against runaway tool-call loops within a
// single turn.
type TooManyToolRoundsError struct {
	Rounds int
}

func (e *TooManyToolRoundsError) Error() string {
	return fmt.Sprintf("tool-call round limit exceeded (%d rounds)", e.Rounds)
}

// EnsembleConnectionError reports a failed ensemble connect. The
// conversation cannot use that ensemble's tools for the session.
type EnsembleConnectionError struct {
	Ensemble string
	Err      error
}

func (e *EnsembleConnectionError) Error() string {
	return fmt.Sprintf("connecting ensemble %q: %v", e.Ensemble, e.Err)
}

func (e *EnsembleConnectionError) Unwrap() error { return e.Err }
