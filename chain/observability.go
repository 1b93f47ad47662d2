package chain

import (
	"context"
	"time"

	"github.com/kbukum/chainkit/logger"
	"github.com/kbukum/chainkit/observability"
)

// WithTracing wraps a Task with span creation. Each run creates a span named
// "{prefix}{taskName}"; an empty prefix uses "task.".
func WithTracing(task Task, prefix string) Task {
	if prefix == "" {
		prefix = observability.SpanTaskPrefix
	}
	return &tracingTask{inner: task, prefix: prefix}
}

type tracingTask struct {
	inner  Task
	prefix string
}

func (t *tracingTask) Name() string { return t.inner.Name() }

func (t *tracingTask) Run(ctx context.Context, c *Context) (any, error) {
	ctx, span := observability.StartSpan(ctx, t.prefix+t.inner.Name())
	defer span.End()

	observability.SetSpanAttribute(ctx, observability.AttrTask, t.inner.Name())

	payload, err := t.inner.Run(ctx, c)
	if err != nil {
		observability.SetSpanError(ctx, err)
	}
	return payload, err
}

// WithMetrics wraps a Task with run count and duration recording.
func WithMetrics(task Task, metrics *observability.Metrics) Task {
	return &metricsTask{inner: task, metrics: metrics}
}

type metricsTask struct {
	inner   Task
	metrics *observability.Metrics
}

func (t *metricsTask) Name() string { return t.inner.Name() }

func (t *metricsTask) Run(ctx context.Context, c *Context) (any, error) {
	start := time.Now()
	payload, err := t.inner.Run(ctx, c)

	status := string(TaskExecuted)
	if err != nil {
		status = string(TaskFailed)
	}
	t.metrics.RecordTask(ctx, t.inner.Name(), status, time.Since(start))
	return payload, err
}

// WithLogging wraps a Task with a debug line on success and an error line on
// failure.
func WithLogging(task Task, log *logger.Logger) Task {
	if log == nil {
		log = logger.Get("chain")
	}
	return &loggingTask{inner: task, log: log}
}

type loggingTask struct {
	inner Task
	log   *logger.Logger
}

func (t *loggingTask) Name() string { return t.inner.Name() }

func (t *loggingTask) Run(ctx context.Context, c *Context) (any, error) {
	start := time.Now()
	payload, err := t.inner.Run(ctx, c)

	fields := logger.Fields(
		logger.FieldTask, t.inner.Name(),
		logger.FieldDuration, time.Since(start).Milliseconds(),
	)
	log := t.log.WithContext(ctx)
	if err != nil {
		log.Error("task failed", logger.MergeWithError(fields, err))
	} else {
		log.Debug("task completed", fields)
	}
	return payload, err
}

// Decorate wraps task with logging and metrics inside a tracing span.
func Decorate(task Task, log *logger.Logger, metrics *observability.Metrics, prefix string) Task {
	return WithTracing(WithMetrics(WithLogging(task, log), metrics), prefix)
}
