package invoke

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/converser/pkg/api"
)

func connectedEnsemble(t *testing.T, invokers ...Invoker) Ensemble {
	t.Helper()
	e := NewFunctionEnsemble("test")
	for _, inv := range invokers {
		require.NoError(t, e.Register(inv))
	}
	require.NoError(t, e.Connect(context.Background()))
	return e
}

func TestDispatchPreservesRequestOrder(t *testing.T) {
	slow := Invoker{
		Name: "slow",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			time.Sleep(50 * time.Millisecond)
			return "slow done", nil
		},
	}
	fast := Invoker{
		Name: "fast",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			return "fast done", nil
		},
	}

	o := NewOrchestrator([]Ensemble{connectedEnsemble(t, slow, fast)}, 0, nil)

	invocations := []api.Message{
		api.NewInvocationMessage("call_1", "slow", nil),
		api.NewInvocationMessage("call_2", "fast", nil),
	}
	results, err := o.Dispatch(context.Background(), invocations)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "call_1", results[0].Result.InvocationID)
	assert.Equal(t, "slow done", results[0].Text())
	assert.Equal(t, "call_2", results[1].Result.InvocationID)
	assert.Equal(t, "fast done", results[1].Text())
}

func TestDispatchUnknownInvokerYieldsErrorResult(t *testing.T) {
	o := NewOrchestrator([]Ensemble{connectedEnsemble(t)}, 0, nil)

	results, err := o.Dispatch(context.Background(), []api.Message{
		api.NewInvocationMessage("call_1", "nonexistent", nil),
	})
	require.NoError(t, err, "missing invoker is not fatal")
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Result)
	assert.Equal(t, "call_1", results[0].Result.InvocationID)
	assert.Contains(t, results[0].Result.Error, "no such invoker")
}

func TestDispatchInvalidArgumentsYieldErrorResult(t *testing.T) {
	inv := Invoker{
		Name: "strict",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"n": map[string]any{"type": "integer"}},
			"required":   []string{"n"},
		},
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			return "ok", nil
		},
	}
	o := NewOrchestrator([]Ensemble{connectedEnsemble(t, inv)}, 0, nil)

	results, err := o.Dispatch(context.Background(), []api.Message{
		api.NewInvocationMessage("call_1", "strict", map[string]any{}),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Result.Error, "required field is missing")
}

func TestDispatchToolErrorYieldsErrorResult(t *testing.T) {
	flaky := Invoker{
		Name: "flaky",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			return "", NewToolError("upstream returned 404")
		},
	}
	o := NewOrchestrator([]Ensemble{connectedEnsemble(t, flaky)}, 0, nil)

	results, err := o.Dispatch(context.Background(), []api.Message{
		api.NewInvocationMessage("call_1", "flaky", nil),
	})
	require.NoError(t, err, "tool errors are not fatal")
	require.Len(t, results, 1)
	assert.Equal(t, "upstream returned 404", results[0].Result.Error)
}

func TestDispatchRaisedInvocableIsFatal(t *testing.T) {
	boom := Invoker{
		Name: "boom",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			return "", fmt.Errorf("disk on fire")
		},
	}
	o := NewOrchestrator([]Ensemble{connectedEnsemble(t, boom)}, 0, nil)

	_, err := o.Dispatch(context.Background(), []api.Message{
		api.NewInvocationMessage("call_1", "boom", nil),
	})
	require.Error(t, err)

	var execErr *api.InvocationExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "boom", execErr.Invoker)
	assert.Equal(t, "call_1", execErr.InvocationID)
	assert.False(t, execErr.TimedOut)
}

func TestDispatchTimeoutIsFatalAndCancelsSiblings(t *testing.T) {
	hang := Invoker{
		Name: "hang",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	siblingCancelled := make(chan struct{}, 1)
	sibling := Invoker{
		Name: "sibling",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			select {
			case <-ctx.Done():
				siblingCancelled <- struct{}{}
				return "", ctx.Err()
			case <-time.After(5 * time.Second):
				return "too late", nil
			}
		},
	}
	o := NewOrchestrator([]Ensemble{connectedEnsemble(t, hang, sibling)}, 20*time.Millisecond, nil)

	_, err := o.Dispatch(context.Background(), []api.Message{
		api.NewInvocationMessage("call_1", "hang", nil),
		api.NewInvocationMessage("call_2", "sibling", nil),
	})
	require.Error(t, err)

	var execErr *api.InvocationExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.True(t, execErr.TimedOut)

	select {
	case <-siblingCancelled:
	case <-time.After(time.Second):
		t.Fatal("sibling invocation was not cancelled")
	}
}

func TestDispatchFatalReportsRootCauseNotSiblingCancellation(t *testing.T) {
	// waiter blocks until the round is cancelled, so its failure is a plain
	// context.Canceled caused by bomber's raise.
	waiter := Invoker{
		Name: "waiter",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	bomber := Invoker{
		Name: "bomber",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			time.Sleep(20 * time.Millisecond)
			return "", fmt.Errorf("disk on fire")
		},
	}
	o := NewOrchestrator([]Ensemble{connectedEnsemble(t, waiter, bomber)}, 0, nil)

	_, err := o.Dispatch(context.Background(), []api.Message{
		api.NewInvocationMessage("call_1", "waiter", nil),
		api.NewInvocationMessage("call_2", "bomber", nil),
	})
	require.Error(t, err)

	var execErr *api.InvocationExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "bomber", execErr.Invoker)
	assert.False(t, errors.Is(err, context.Canceled), "root cause must not be masked by a sibling's cancellation")
}

func TestDispatchEmptyRound(t *testing.T) {
	o := NewOrchestrator(nil, 0, nil)
	results, err := o.Dispatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestLookupAcrossEnsemblesFirstMatchWins(t *testing.T) {
	first := connectedEnsemble(t, Invoker{
		Name: "dup",
		Fn:   func(ctx context.Context, args map[string]any) (string, error) { return "first", nil },
	})
	second := connectedEnsemble(t, Invoker{
		Name: "dup",
		Fn:   func(ctx context.Context, args map[string]any) (string, error) { return "second", nil },
	})
	o := NewOrchestrator([]Ensemble{first, second}, 0, nil)

	inv, ok := o.Lookup("dup")
	require.True(t, ok)
	out, err := inv.Fn(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "first", out)
}

func TestDispatchContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blocked := Invoker{
		Name: "blocked",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	o := NewOrchestrator([]Ensemble{connectedEnsemble(t, blocked)}, time.Second, nil)

	_, err := o.Dispatch(ctx, []api.Message{
		api.NewInvocationMessage("call_1", "blocked", nil),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || errors.As(err, new(*api.InvocationExecutionError)))
}
