package invoke

import (
	"context"
	"fmt"
	"sync"
)

// Ensemble groups related invokers behind a shared lifecycle. Local function
// ensembles connect trivially; remote ensembles (MCP) establish a session on
// Connect and tear it down on Disconnect.
type Ensemble interface {
	// Name identifies the ensemble in logs and errors.
	Name() string

	// Connect prepares the ensemble for use. Calling Connect on an already
	// connected ensemble is a no-op.
	Connect(ctx context.Context) error

	// Disconnect releases ensemble resources. Idempotent.
	Disconnect() error

	// Invokers lists the invokers currently exposed by the ensemble.
	// Only valid while connected.
	Invokers() []Invoker

	// Lookup finds an invoker by name.
	Lookup(name string) (Invoker, bool)
}

// FunctionEnsemble is an in-process ensemble backed by registered Go
// functions. Safe for concurrent use.
type FunctionEnsemble struct {
	name string

	mu        sync.RWMutex
	connected bool
	invokers  map[string]Invoker
	order     []string
}

var _ Ensemble = (*FunctionEnsemble)(nil)

// NewFunctionEnsemble creates an empty local ensemble.
func NewFunctionEnsemble(name string) *FunctionEnsemble {
	return &FunctionEnsemble{
		name:     name,
		invokers: make(map[string]Invoker),
	}
}

// Register adds an invoker. Registering a duplicate or anonymous name or a
// nil function is an error.
func (e *FunctionEnsemble) Register(inv Invoker) error {
	if inv.Name == "" {
		return fmt.Errorf("ensemble %s: invoker name must not be empty", e.name)
	}
	if inv.Fn == nil {
		return fmt.Errorf("ensemble %s: invoker %s has no function", e.name, inv.Name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.invokers[inv.Name]; exists {
		return fmt.Errorf("ensemble %s: invoker %s already registered", e.name, inv.Name)
	}
	e.invokers[inv.Name] = inv
	e.order = append(e.order, inv.Name)
	return nil
}

// Name returns the ensemble identifier.
func (e *FunctionEnsemble) Name() string { return e.name }

// Connect marks the ensemble usable. Local ensembles hold no external
// resources, so this only flips state.
func (e *FunctionEnsemble) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = true
	return nil
}

// Disconnect marks the ensemble unusable.
func (e *FunctionEnsemble) Disconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = false
	return nil
}

// Invokers lists registered invokers in registration order. Returns nil when
// the ensemble is not connected.
func (e *FunctionEnsemble) Invokers() []Invoker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.connected {
		return nil
	}
	out := make([]Invoker, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.invokers[name])
	}
	return out
}

// Lookup finds an invoker by name. Misses while disconnected.
func (e *FunctionEnsemble) Lookup(name string) (Invoker, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.connected {
		return Invoker{}, false
	}
	inv, ok := e.invokers[name]
	return inv, ok
}
