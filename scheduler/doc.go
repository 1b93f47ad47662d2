// Package scheduler runs the tasks of a parallel block concurrently under a
// fixed cap.
//
// A Scheduler owns a single bulkhead for its lifetime, so the cap holds across
// every RunParallel call made on it at the same time. Results come back in
// input order whatever order the tasks finish in, and a failing task never
// cancels its siblings: the first error by input index is returned once every
// task has completed.
package scheduler
