// Package orchestrator interprets chain definitions.
//
// ExecuteChain resolves a chain by name, walks its steps in order and
// finalizes a chain.Result, all inside a performance monitor scope. Single
// steps run in place; parallel blocks go through the scheduler and their
// executed tasks are appended in the block's order. The first failure stops
// the remaining steps. Start is the cancellable variant with the same
// ordering.
//
// Every task a catalog names is resolved when the Orchestrator is built, so
// a missing implementation is reported at startup rather than mid-run.
package orchestrator
