package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/chainkit/chain"
	"github.com/kbukum/chainkit/contextgraph"
	"github.com/kbukum/chainkit/errors"
	"github.com/kbukum/chainkit/logger"
	"github.com/kbukum/chainkit/monitor"
	"github.com/kbukum/chainkit/observability"
	"github.com/kbukum/chainkit/resilience"
	"github.com/kbukum/chainkit/scheduler"
)

// Orchestrator executes chains from a catalog.
type Orchestrator struct {
	catalog  *chain.Catalog
	registry *chain.Registry
	sched    *scheduler.Scheduler
	mon      *monitor.Monitor

	strict      bool
	retry       resilience.RetryConfig
	taskTimeout time.Duration
	log         *logger.Logger
	metrics     *observability.Metrics
	tracing     bool
	tracePrefix string
	newID       func(string) string
	graph       *contextgraph.Graph

	mu    sync.RWMutex
	tasks map[string]chain.Task
}

// New builds an Orchestrator and resolves every task the catalog references.
// A missing task is a TASK_NOT_FOUND error. A nil monitor records nothing.
func New(catalog *chain.Catalog, registry *chain.Registry, sched *scheduler.Scheduler, mon *monitor.Monitor, opts ...Option) (*Orchestrator, error) {
	switch {
	case catalog == nil:
		return nil, errors.Configuration("catalog", "a chain catalog is required")
	case registry == nil:
		return nil, errors.Configuration("registry", "a task registry is required")
	case sched == nil:
		return nil, errors.Configuration("scheduler", "a scheduler is required")
	}
	o := &Orchestrator{
		catalog:  catalog,
		registry: registry,
		sched:    sched,
		mon:      mon,
		newID:    NewIterationID,
		tasks:    make(map[string]chain.Task),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.Get("orchestrator")
	}
	if o.mon == nil {
		o.mon = monitor.New(nil, nil, monitor.WithLogger(o.log))
	}

	if err := registry.Verify(catalog); err != nil {
		return nil, err
	}
	for _, name := range catalog.TaskNames() {
		if _, err := o.resolve(name); err != nil {
			return nil, err
		}
	}
	o.log.Debug("orchestrator ready", logger.Fields(
		"chains", len(catalog.Names()),
		logger.FieldTasks, len(o.tasks),
		"max_parallel", sched.MaxParallel(),
	))
	return o, nil
}

// Chains returns the catalog's chain names, sorted.
func (o *Orchestrator) Chains() []string { return o.catalog.Names() }

// Catalog returns the catalog.
func (o *Orchestrator) Catalog() *chain.Catalog { return o.catalog }

// resolve returns the decorated task for name, building it on first use.
func (o *Orchestrator) resolve(name string) (chain.Task, error) {
	o.mu.RLock()
	t, ok := o.tasks[name]
	o.mu.RUnlock()
	if ok {
		return t, nil
	}

	raw, err := o.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	if o.tracing {
		t = chain.Decorate(raw, o.log, o.metrics, o.tracePrefix)
	} else {
		t = chain.WithMetrics(chain.WithLogging(raw, o.log), o.metrics)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if existing, ok := o.tasks[name]; ok {
		return existing, nil
	}
	o.tasks[name] = t
	return t, nil
}

// ExecuteChain runs the chain called name on c (a fresh context when nil).
//
// The error is non-nil only when strict mode rejects an unknown chain. Task
// failures and cancellation are reported through Result.Status and
// Result.Err. If the metrics record cannot be written the result is still
// returned with MetricsPersisted false.
func (o *Orchestrator) ExecuteChain(ctx context.Context, name string, c *chain.Context) (*chain.Result, error) {
	if c == nil {
		c = chain.NewContext(nil)
	}
	def, ok := o.catalog.Lookup(name)
	if !ok {
		return o.unknownChain(ctx, name)
	}

	start := time.Now()
	id := o.newID(name)
	ctx = logger.ContextWithIteration(ctx, id)
	ctx, span := observability.StartSpan(ctx, observability.SpanChainExecute)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrChain, name)
	observability.SetSpanAttribute(ctx, observability.AttrIteration, id)

	log := o.log.WithContext(ctx)
	log.Info("chain started", logger.Fields(logger.FieldChain, name, "steps", def.Len()))

	digest := monitor.NewLatencyDigest()
	scope := o.mon.Begin(ctx, id)
	defer func() {
		if r := recover(); r != nil {
			scope.Close(digest.Metrics())
			panic(r)
		}
	}()

	w := o.walk(ctx, def, c, digest)
	report := scope.Close(digest.Metrics())

	res := &chain.Result{
		Chain:              name,
		Iteration:          id,
		Status:             w.status,
		Executed:           w.executed,
		Tasks:              w.tasks,
		Err:                w.err,
		PerformanceMetrics: report.Record.Metrics(),
		PerformanceAlerts:  alerts(report.Compliance.Violations),
		MetricsPersisted:   report.Persisted,
		Duration:           time.Since(start),
	}
	o.finish(ctx, res)
	return res, nil
}

func (o *Orchestrator) unknownChain(ctx context.Context, name string) (*chain.Result, error) {
	if o.strict {
		return nil, errors.UnknownChain(name)
	}
	o.log.WithContext(ctx).Warn("unknown chain, nothing executed", logger.Fields(logger.FieldChain, name))
	res := &chain.Result{Chain: name, Status: chain.ChainExecuted, Executed: []string{}}
	o.metrics.RecordChain(ctx, name, string(res.Status), 0)
	o.recordGraph(res)
	return res, nil
}

type walkResult struct {
	status   chain.ChainStatus
	executed []string
	tasks    []chain.TaskResult
	err      error
}

func (o *Orchestrator) walk(ctx context.Context, def chain.Definition, c *chain.Context, digest *monitor.LatencyDigest) walkResult {
	w := walkResult{status: chain.ChainCompleted, executed: []string{}}
	run := o.runFunc(digest)

	for i, step := range def.Steps() {
		if err := ctx.Err(); err != nil {
			w.status, w.err = chain.ChainCancelled, errors.Cancelled(fmt.Sprintf("chain %q", def.Name()), err)
			return w
		}
		observability.SetSpanAttribute(ctx, observability.AttrStepIndex, i)

		var err error
		if step.IsParallel() {
			var results []chain.TaskResult
			results, err = o.sched.RunParallel(ctx, step.TaskNames(), run, c)
			w.tasks = append(w.tasks, results...)
			for _, r := range results {
				if r.Status == chain.TaskExecuted {
					w.executed = append(w.executed, r.Task)
				}
			}
		} else {
			var r chain.TaskResult
			r, err = run(ctx, step.Task(), c)
			w.tasks = append(w.tasks, r)
			if r.Status == chain.TaskExecuted {
				c.MarkExecuted(r.Task)
				w.executed = append(w.executed, r.Task)
			}
		}

		if err != nil {
			w.err = err
			w.status = chain.ChainFailed
			if ctx.Err() != nil || errors.IsCode(err, errors.ErrCodeCancelled) {
				w.status = chain.ChainCancelled
			}
			o.log.WithContext(ctx).Warn("chain step failed, stopping", logger.MergeWithError(
				logger.Fields(logger.FieldChain, def.Name(), logger.FieldStep, i), err))
			return w
		}
	}
	return w
}

// runFunc runs one task with the retry policy and the per-attempt timeout,
// observing its duration in digest.
func (o *Orchestrator) runFunc(digest *monitor.LatencyDigest) scheduler.RunFunc {
	return func(ctx context.Context, name string, c *chain.Context) (chain.TaskResult, error) {
		task, err := o.resolve(name)
		if err != nil {
			return chain.TaskResult{Task: name, Status: chain.TaskFailed, Err: err}, err
		}

		start := time.Now()
		payload, attempts, err := resilience.Retry(ctx, o.retry, func(attempt int) (any, error) {
			if attempt > 1 {
				o.log.WithContext(ctx).Debug("retrying task", logger.Fields(logger.FieldTask, name, logger.FieldAttempt, attempt))
			}
			return o.attempt(ctx, task, c)
		})
		d := time.Since(start)
		digest.Observe(d)

		res := chain.TaskResult{Task: name, Status: chain.TaskExecuted, Payload: payload, Attempts: attempts, Duration: d}
		if err == nil {
			return res, nil
		}

		res.Payload = nil
		switch {
		case ctx.Err() != nil:
			res.Status = chain.TaskCancelled
			err = errors.Cancelled(fmt.Sprintf("task %q", name), ctx.Err())
		case stderrors.Is(err, context.DeadlineExceeded) && !errors.IsCode(err, errors.ErrCodeTimeout):
			res.Status = chain.TaskFailed
			err = errors.Timeout(fmt.Sprintf("task %q", name)).WithCause(err)
		default:
			res.Status = chain.TaskFailed
			if _, ok := errors.AsAppError(err); !ok {
				err = errors.TaskExecution(name, err)
			}
		}
		res.Err = err
		return res, err
	}
}

// attempt runs task once, turning a panic into a TASK_FAILED error. An
// attempt that outlives the per-task timeout while ctx is still live fails
// with a retryable TIMEOUT.
func (o *Orchestrator) attempt(ctx context.Context, task chain.Task, c *chain.Context) (payload any, err error) {
	actx := ctx
	if o.taskTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, o.taskTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			payload, err = nil, errors.TaskExecution(task.Name(), fmt.Errorf("panic: %v", r))
			return
		}
		if err != nil && ctx.Err() == nil && stderrors.Is(actx.Err(), context.DeadlineExceeded) {
			if _, ok := errors.AsAppError(err); !ok {
				payload, err = nil, errors.Timeout(fmt.Sprintf("task %q", task.Name())).WithCause(err)
			}
		}
	}()
	return task.Run(actx, c)
}

func (o *Orchestrator) finish(ctx context.Context, res *chain.Result) {
	o.metrics.RecordChain(ctx, res.Chain, string(res.Status), res.Duration)
	observability.SetSpanAttribute(ctx, observability.AttrStatus, string(res.Status))
	observability.SetSpanAttribute(ctx, observability.AttrDurationMs, res.Duration.Milliseconds())
	o.recordGraph(res)

	fields := logger.Fields(
		logger.FieldChain, res.Chain,
		logger.FieldStatus, string(res.Status),
		logger.FieldDuration, res.Duration.Milliseconds(),
		"executed", len(res.Executed),
		"metrics_persisted", res.MetricsPersisted,
	)
	log := o.log.WithContext(ctx)
	switch {
	case res.Err != nil:
		observability.SetSpanError(ctx, res.Err)
		log.Error("chain finished", logger.MergeWithError(fields, res.Err))
	case !res.MetricsPersisted:
		log.Warn("chain finished; metrics not durably recorded", fields)
	default:
		log.Info("chain finished", fields)
	}
}

func (o *Orchestrator) recordGraph(res *chain.Result) {
	if o.graph == nil {
		return
	}
	o.graph.Update(map[string]any{
		"chain":     res.Chain,
		"status":    string(res.Status),
		"executed":  append([]string{}, res.Executed...),
		"iteration": res.Iteration,
	})
}

// ExecuteModule runs a single registered task on c inside its own monitor
// scope. An unregistered name is a TASK_NOT_FOUND error; a task failure is
// returned both in the result and as the error.
func (o *Orchestrator) ExecuteModule(ctx context.Context, name string, c *chain.Context) (chain.TaskResult, error) {
	if _, err := o.resolve(name); err != nil {
		return chain.TaskResult{}, err
	}
	if c == nil {
		c = chain.NewContext(nil)
	}

	id := o.newID(name)
	ctx = logger.ContextWithIteration(ctx, id)
	ctx, op := observability.StartOperation(ctx, observability.SpanModuleExecute,
		attribute.String(observability.AttrTask, name),
		attribute.String(observability.AttrIteration, id),
	)

	digest := monitor.NewLatencyDigest()
	scope := o.mon.Begin(ctx, id)
	res, err := o.runFunc(digest)(ctx, name, c)
	scope.Close(digest.Metrics())
	op.End(string(res.Status), err)

	if res.Status == chain.TaskExecuted {
		c.MarkExecuted(name)
	}
	if o.graph != nil {
		o.graph.Update(map[string]any{"module": name, "status": string(res.Status), "iteration": id})
	}
	return res, err
}

func alerts(vs []monitor.Violation) []chain.Alert {
	if len(vs) == 0 {
		return nil
	}
	out := make([]chain.Alert, len(vs))
	for i, v := range vs {
		out[i] = chain.Alert{Metric: v.Metric, Message: v.Message}
	}
	return out
}
