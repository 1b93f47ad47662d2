package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/chainkit/errors"
	"github.com/kbukum/chainkit/logger"
	"github.com/kbukum/chainkit/observability"
)

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(m *Monitor) { m.log = log }
}

// WithMetrics counts budget violations and persistence failures.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// WithClock overrides the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Monitor records iteration metrics and evaluates them against a budget.
type Monitor struct {
	budget  Budget
	sink    Sink
	log     *logger.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// New creates a Monitor. The budget is copied; a nil sink discards records.
func New(budget Budget, sink Sink, opts ...Option) *Monitor {
	if sink == nil {
		sink = NopSink{}
	}
	m := &Monitor{budget: budget.Clone(), sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Get("monitor")
	}
	return m
}

// Budget returns a copy of the budget table.
func (m *Monitor) Budget() Budget { return m.budget.Clone() }

// Sink returns the configured sink.
func (m *Monitor) Sink() Sink { return m.sink }

// Report is what closing a Scope produced.
type Report struct {
	Record     Record
	Compliance Compliance
	Persisted  bool
	PersistErr error
}

// Scope measures one iteration between Begin and Close.
type Scope struct {
	m     *Monitor
	ctx   context.Context
	id    string
	probe Probe

	once   sync.Once
	report Report
}

// Begin starts measuring the iteration id.
func (m *Monitor) Begin(ctx context.Context, id string) *Scope {
	return &Scope{m: m, ctx: ctx, id: id, probe: Begin()}
}

// ID returns the iteration id.
func (s *Scope) ID() string { return s.id }

// Close stops the measurement, persists the record with extra merged in and
// evaluates the budget. Only the first call does any work; later calls
// return the same Report. Persisting ignores cancellation of the scope's
// context, so a cancelled run is still recorded.
func (s *Scope) Close(extra map[string]float64) Report {
	s.once.Do(func() {
		runtimeMS, memDelta := s.probe.End()
		rec := Record{
			IterationID: s.id,
			Timestamp:   s.m.now().UTC(),
			RuntimeMS:   float64Ptr(runtimeMS),
			MemoryDelta: float64Ptr(memDelta),
		}
		if len(extra) > 0 {
			rec.Extra = make(map[string]float64, len(extra))
			for k, v := range extra {
				rec.Extra[k] = v
			}
		}
		s.report = s.m.finish(context.WithoutCancel(s.ctx), rec)
	})
	return s.report
}

func (m *Monitor) finish(ctx context.Context, rec Record) Report {
	report := Report{Record: rec, Persisted: true}
	log := m.log.WithContext(ctx)

	if err := m.sink.Persist(ctx, rec); err != nil {
		report.Persisted = false
		report.PersistErr = err
		m.metrics.RecordPersistFailure(ctx)
		log.Warn("iteration metrics not recorded", logger.MergeWithError(
			logger.Fields(logger.FieldIteration, rec.IterationID), err))
	}

	metrics := rec.Metrics()
	report.Compliance = m.evaluate(ctx, metrics)
	fields := logger.Fields(
		logger.FieldIteration, rec.IterationID,
		"runtime_ms", metrics[MetricRuntimeMS],
		"memory_delta", metrics[MetricMemoryDelta],
		"compliant", report.Compliance.Compliant,
	)
	if !report.Compliance.Compliant {
		fields["violations"] = violationMetrics(report.Compliance.Violations)
		log.Warn("performance budget exceeded", fields)
	} else {
		log.Debug("iteration metrics recorded", fields)
	}
	return report
}

func (m *Monitor) evaluate(ctx context.Context, metrics map[string]float64) Compliance {
	c := Evaluate(metrics, m.budget)
	for _, v := range c.Violations {
		m.metrics.RecordBudgetViolation(ctx, v.Metric)
	}
	return c
}

// Track runs fn inside a scope for id. The scope is closed when fn returns,
// fails or panics; a panic is re-raised after the record is written.
func (m *Monitor) Track(ctx context.Context, id string, fn func(ctx context.Context) error) (report Report, err error) {
	scope := m.Begin(ctx, id)
	defer func() {
		if r := recover(); r != nil {
			scope.Close(nil)
			panic(r)
		}
	}()
	err = fn(ctx)
	return scope.Close(nil), err
}

// UpdateIterationMetrics persists externally collected metrics for id and
// reports whether the write succeeded.
func (m *Monitor) UpdateIterationMetrics(ctx context.Context, id string, metrics map[string]float64) bool {
	rec := RecordFromMetrics(id, m.now().UTC(), metrics)
	if err := m.sink.Persist(ctx, rec); err != nil {
		m.metrics.RecordPersistFailure(ctx)
		m.log.WithContext(ctx).Warn("iteration metrics not recorded", logger.MergeWithError(
			logger.Fields(logger.FieldIteration, id), err))
		return false
	}
	m.log.WithContext(ctx).Debug("iteration metrics updated", logger.Fields(
		logger.FieldIteration, id,
		"metrics", len(metrics),
	))
	return true
}

// CheckBudgetCompliance evaluates metrics against the monitor's budget.
func (m *Monitor) CheckBudgetCompliance(metrics map[string]float64) Compliance {
	return m.evaluate(context.Background(), metrics)
}

// Dashboard writes a markdown index of the recorded iterations next to the
// records and returns the locator of every file it wrote.
func (m *Monitor) Dashboard(ctx context.Context) ([]string, error) {
	archive, ok := m.sink.(Archive)
	if !ok {
		return nil, errors.Configuration("monitor", "the metrics sink cannot list iterations")
	}
	ids, err := archive.Iterations(ctx)
	if err != nil {
		return nil, errors.Persistence("dashboard", err)
	}

	var b strings.Builder
	b.WriteString("# Performance Dashboard\n\n")
	for _, id := range ids {
		rec, err := archive.Load(ctx, id)
		if err != nil {
			fmt.Fprintf(&b, "- %s.json\n", id)
			continue
		}
		c := Evaluate(rec.Metrics(), m.budget)
		status := "compliant"
		if !c.Compliant {
			status = "violations: " + strings.Join(violationMetrics(c.Violations), ", ")
		}
		runtime := "runtime n/a"
		if rec.RuntimeMS != nil {
			runtime = fmt.Sprintf("runtime %.1f ms", *rec.RuntimeMS)
		}
		fmt.Fprintf(&b, "- %s.json (%s, %s)\n", id, runtime, status)
	}

	loc, err := archive.WriteReport(ctx, DashboardFile, []byte(b.String()))
	if err != nil {
		return nil, errors.Persistence("dashboard", err)
	}
	m.log.WithContext(ctx).Info("performance dashboard written", logger.Fields(
		"path", loc,
		"iterations", len(ids),
	))
	return []string{loc}, nil
}

func violationMetrics(vs []Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Metric
	}
	return out
}
