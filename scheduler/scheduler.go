package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kbukum/chainkit/chain"
	"github.com/kbukum/chainkit/errors"
	"github.com/kbukum/chainkit/logger"
	"github.com/kbukum/chainkit/observability"
	"github.com/kbukum/chainkit/resilience"
	"github.com/kbukum/chainkit/validation"
)

// DefaultName names schedulers created without one.
const DefaultName = "default"

// Config configures a Scheduler.
type Config struct {
	// MaxParallel caps how many tasks hold a slot at once. It must be > 0.
	MaxParallel int
	// Name identifies the scheduler in logs and metrics.
	Name string
}

// RunFunc runs one task on its view of the chain context.
type RunFunc func(ctx context.Context, name string, c *chain.Context) (chain.TaskResult, error)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithMetrics reports slot usage on the scheduler.inflight gauge.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithJournal appends a markdown entry to w after every parallel block.
func WithJournal(w io.Writer) Option {
	return func(s *Scheduler) { s.journal = w }
}

// Scheduler runs parallel blocks with a bounded number of in-flight tasks.
type Scheduler struct {
	name     string
	bulkhead *resilience.Bulkhead
	log      *logger.Logger
	metrics  *observability.Metrics

	journalMu sync.Mutex
	journal   io.Writer
	now       func() time.Time
}

// New creates a Scheduler. MaxParallel <= 0 is an INVALID_CONFIG error.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	if err := validation.New().Positive("max_parallel", cfg.MaxParallel).Error(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	s := &Scheduler{name: cfg.Name, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get("scheduler")
	}
	s.bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{
		Name:          cfg.Name,
		MaxConcurrent: cfg.MaxParallel,
		MaxWait:       resilience.WaitForever,
		OnAcquire: func(name string) {
			s.metrics.AddInFlight(context.Background(), name, 1)
		},
		OnRelease: func(name string) {
			s.metrics.AddInFlight(context.Background(), name, -1)
		},
	})
	return s, nil
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string { return s.name }

// MaxParallel returns the slot cap.
func (s *Scheduler) MaxParallel() int { return s.bulkhead.MaxConcurrent() }

// InFlight returns the number of tasks holding a slot right now.
func (s *Scheduler) InFlight() int { return s.bulkhead.InUse() }

// Peak returns the most slots ever held at once.
func (s *Scheduler) Peak() int { return s.bulkhead.Peak() }

// RunParallel runs every name through run, each on its own view of c, and
// returns the results in input order. Views of tasks that executed are
// committed to c in input order once all tasks are done; c records each
// executed task as it completes. Tasks still waiting for a slot when ctx is
// cancelled are reported as cancelled and never run.
func (s *Scheduler) RunParallel(ctx context.Context, names []string, run RunFunc, c *chain.Context) ([]chain.TaskResult, error) {
	if len(names) == 0 {
		return nil, nil
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanParallelBlock)
	defer span.End()
	parallelism := min(len(names), s.MaxParallel())
	observability.SetSpanAttribute(ctx, observability.AttrParallelism, parallelism)
	observability.SetSpanAttribute(ctx, "scheduler.tasks", names)

	log := s.log.WithContext(ctx)
	log.Debug("parallel block started", logger.Fields(
		logger.FieldTasks, names,
		"parallelism", parallelism,
	))
	start := time.Now()

	results := make([]chain.TaskResult, len(names))
	errs := make([]error, len(names))
	views := make([]*chain.Context, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		views[i] = c.Fork()
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i], errs[i] = s.runOne(ctx, name, run, views[i])
		}(i, name)
	}
	wg.Wait()

	committed := make([]*chain.Context, 0, len(views))
	for i, r := range results {
		if r.Status == chain.TaskExecuted {
			committed = append(committed, views[i])
		}
	}
	if err := c.Commit(committed...); err != nil {
		return results, errors.Internal(err)
	}

	s.writeJournal(results)

	var firstErr error
	for _, err := range errs {
		if err != nil {
			firstErr = err
			break
		}
	}

	fields := logger.Fields(
		logger.FieldTasks, names,
		logger.FieldDuration, time.Since(start).Milliseconds(),
	)
	if firstErr != nil {
		observability.SetSpanError(ctx, firstErr)
		log.Warn("parallel block finished with errors", logger.MergeWithError(fields, firstErr))
	} else {
		log.Debug("parallel block finished", fields)
	}
	return results, firstErr
}

func (s *Scheduler) runOne(ctx context.Context, name string, run RunFunc, view *chain.Context) (chain.TaskResult, error) {
	var (
		result  chain.TaskResult
		runErr  error
		started bool
	)
	slotErr := s.bulkhead.Execute(ctx, func() (err error) {
		started = true
		defer func() {
			if r := recover(); r != nil {
				runErr = errors.TaskExecution(name, fmt.Errorf("panic: %v", r))
				result = chain.TaskResult{Task: name, Status: chain.TaskFailed, Err: runErr}
				err = runErr
			}
		}()
		result, runErr = run(ctx, name, view)
		return runErr
	})

	if !started {
		err := errors.Cancelled(fmt.Sprintf("task %q", name), slotErr)
		return chain.TaskResult{Task: name, Status: chain.TaskCancelled, Err: err}, err
	}

	if result.Task == "" {
		result.Task = name
	}
	switch {
	case result.Status == "" && runErr != nil:
		result.Status = chain.TaskFailed
	case result.Status == "":
		result.Status = chain.TaskExecuted
	}
	if runErr != nil && result.Err == nil {
		result.Err = runErr
	}
	if runErr == nil && result.Status != chain.TaskExecuted {
		if result.Err == nil {
			result.Err = unexplained(name, result.Status)
		}
		runErr = result.Err
	}
	if result.Status == chain.TaskExecuted {
		view.MarkExecuted(name)
	}
	return result, runErr
}

// unexplained builds the error for a task that reported a non-executed
// status without one.
func unexplained(name string, status chain.TaskStatus) error {
	if status == chain.TaskCancelled {
		return errors.Cancelled(fmt.Sprintf("task %q", name), nil)
	}
	return errors.TaskExecution(name, fmt.Errorf("reported status %s without an error", status))
}

func (s *Scheduler) writeJournal(results []chain.TaskResult) {
	if s.journal == nil {
		return
	}
	s.journalMu.Lock()
	defer s.journalMu.Unlock()

	if _, err := fmt.Fprintf(s.journal, "## Execution %s\n\n", s.now().UTC().Format(time.RFC3339)); err != nil {
		s.log.Warn("journal write failed", logger.ErrorFields("journal", err))
		return
	}
	for _, r := range results {
		if _, err := fmt.Fprintf(s.journal, "- %s: %s\n", r.Task, r.Status); err != nil {
			s.log.Warn("journal write failed", logger.ErrorFields("journal", err))
			return
		}
	}
	_, _ = io.WriteString(s.journal, "\n")
}
