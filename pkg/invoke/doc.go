// Package invoke provides the tool invocation layer: invoker definitions,
// ensembles that group and manage invoker lifecycles, and the orchestrator
// that dispatches a round of invocation requests concurrently while
// preserving request order in the results.
package invoke
