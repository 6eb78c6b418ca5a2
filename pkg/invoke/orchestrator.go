package invoke

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rhuss/converser/pkg/api"
	"github.com/rhuss/converser/pkg/observability"
)

// DefaultInvocationTimeout bounds a single tool execution.
const DefaultInvocationTimeout = 30 * time.Second

// Orchestrator dispatches invocation rounds against a set of ensembles.
// Lookup failures and invalid arguments become error result messages that
// flow back to the model; execution failures and timeouts abort the round.
type Orchestrator struct {
	ensembles []Ensemble
	timeout   time.Duration
	logger    *slog.Logger
}

// NewOrchestrator creates an orchestrator over the given ensembles. A zero
// timeout selects DefaultInvocationTimeout.
func NewOrchestrator(ensembles []Ensemble, timeout time.Duration, logger *slog.Logger) *Orchestrator {
	if timeout == 0 {
		timeout = DefaultInvocationTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{ensembles: ensembles, timeout: timeout, logger: logger}
}

// Lookup finds an invoker across all ensembles, first match wins.
func (o *Orchestrator) Lookup(name string) (Invoker, bool) {
	for _, e := range o.ensembles {
		if inv, ok := e.Lookup(name); ok {
			return inv, ok
		}
	}
	return Invoker{}, false
}

// Invokers lists all invokers exposed by the connected ensembles.
func (o *Orchestrator) Invokers() []Invoker {
	var out []Invoker
	for _, e := range o.ensembles {
		out = append(out, e.Invokers()...)
	}
	return out
}

// Dispatch executes one round of invocation messages concurrently and
// returns result messages in request order. A raised or timed-out invocable
// aborts the round: remaining executions are cancelled and an
// InvocationExecutionError is returned instead of results.
func (o *Orchestrator) Dispatch(ctx context.Context, invocations []api.Message) ([]api.Message, error) {
	if len(invocations) == 0 {
		return nil, nil
	}

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]api.Message, len(invocations))
	fatals := make([]error, len(invocations))
	var wg sync.WaitGroup

	for i, msg := range invocations {
		if msg.Invocation == nil {
			results[i] = api.NewErrorResultMessage("", "malformed invocation message")
			continue
		}
		wg.Add(1)
		go func(idx int, inv *api.InvocationData) {
			defer wg.Done()

			result, err := o.dispatchOne(execCtx, inv)
			if err != nil {
				fatals[idx] = err
				cancel()
				return
			}
			results[idx] = result
		}(i, msg.Invocation)
	}
	wg.Wait()

	// Cancelling siblings makes them fail with context.Canceled; report the
	// failure that triggered the cancellation, not a casualty of it.
	var fatal error
	for _, err := range fatals {
		if err == nil {
			continue
		}
		if fatal == nil {
			fatal = err
		}
		if !errors.Is(err, context.Canceled) {
			fatal = err
			break
		}
	}
	if fatal != nil {
		return nil, fatal
	}
	return results, nil
}

// dispatchOne resolves, validates, and executes a single invocation.
func (o *Orchestrator) dispatchOne(ctx context.Context, inv *api.InvocationData) (api.Message, error) {
	invoker, ok := o.Lookup(inv.Name)
	if !ok {
		o.logger.Warn("no such invoker", "invoker", inv.Name, "invocation_id", inv.InvocationID)
		observability.InvocationsTotal.WithLabelValues(inv.Name, "missing").Inc()
		return api.NewErrorResultMessage(inv.InvocationID, "no such invoker: "+inv.Name), nil
	}

	if invoker.Schema != nil {
		if err := ValidateArguments(inv.Arguments, invoker.Schema); err != nil {
			o.logger.Warn("invalid invocation arguments",
				"invoker", inv.Name, "invocation_id", inv.InvocationID, "error", err)
			observability.InvocationsTotal.WithLabelValues(inv.Name, "invalid").Inc()
			return api.NewErrorResultMessage(inv.InvocationID, err.Error()), nil
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	output, err := invoker.Fn(execCtx, inv.Arguments)
	observability.InvocationDuration.WithLabelValues(inv.Name).Observe(time.Since(start).Seconds())

	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		o.logger.Warn("invocation returned tool error",
			"invoker", inv.Name, "invocation_id", inv.InvocationID, "error", toolErr.Message)
		observability.InvocationsTotal.WithLabelValues(inv.Name, "tool_error").Inc()
		return api.NewErrorResultMessage(inv.InvocationID, toolErr.Message), nil
	}

	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(execCtx.Err(), context.DeadlineExceeded)
		o.logger.Error("invocation failed",
			"invoker", inv.Name, "invocation_id", inv.InvocationID,
			"timed_out", timedOut, "error", err)
		observability.InvocationsTotal.WithLabelValues(inv.Name, "error").Inc()
		return api.Message{}, &api.InvocationExecutionError{
			Invoker:      inv.Name,
			InvocationID: inv.InvocationID,
			TimedOut:     timedOut,
			Err:          err,
		}
	}

	observability.InvocationsTotal.WithLabelValues(inv.Name, "ok").Inc()
	return api.NewResultMessage(inv.InvocationID, api.TextContent(output)), nil
}
