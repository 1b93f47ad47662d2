package orchestrator

import (
	"context"

	"github.com/kbukum/chainkit/chain"
)

// Run is a chain execution started with Start.
type Run struct {
	cancel context.CancelFunc
	done   chan struct{}
	result *chain.Result
	err    error
}

// Start runs the chain in the background. Cancelling the run, or ctx, stops
// steps that have not started, cancels in-flight parallel tasks through
// their context and yields a "cancelled" result.
func (o *Orchestrator) Start(ctx context.Context, name string, c *chain.Context) *Run {
	ctx, cancel := context.WithCancel(ctx)
	r := &Run{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		defer cancel()
		r.result, r.err = o.ExecuteChain(ctx, name, c)
	}()
	return r
}

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes and returns its outcome.
func (r *Run) Wait() (*chain.Result, error) {
	<-r.done
	return r.result, r.err
}

// Cancel asks the run to stop. It does not wait.
func (r *Run) Cancel() { r.cancel() }
