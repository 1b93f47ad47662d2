// Package monitor captures per-iteration performance metrics and checks them
// against a budget table.
//
// A Scope taken with Monitor.Begin measures wall-clock time and heap growth
// until it is closed. Closing it persists exactly one Record under the
// iteration id and evaluates the budget; closing again returns the same
// Report. Budget violations are advisory and never turn a run into a failure.
package monitor
