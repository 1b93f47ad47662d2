// Package resilience provides the concurrency and retry primitives used by
// the scheduler and orchestrator.
//
//   - Bulkhead: a long-lived slot pool capping concurrent task execution
//   - Retry: re-runs a failed task with exponential backoff
//
//	bh := resilience.NewBulkhead(resilience.BulkheadConfig{Name: "chain", MaxConcurrent: 3, MaxWait: resilience.WaitForever})
//	err := bh.Execute(ctx, func() error { return task.Run(ctx, view) })
package resilience
