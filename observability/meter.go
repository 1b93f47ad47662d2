package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/chainkit/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure bool   `yaml:"insecure" mapstructure:"insecure"`
	// Interval is the metric export interval.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	ServiceName    string `yaml:"-" mapstructure:"-"`
	ServiceVersion string `yaml:"-" mapstructure:"-"`
	Environment    string `yaml:"-" mapstructure:"-"`
}

// DefaultMeterConfig returns development defaults with metrics disabled.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter installs a periodic OTLP meter provider as the global provider.
// The caller shuts it down on exit.
func InitMeter(ctx context.Context, cfg MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Get("observability").Info("meter initialized", logger.Fields(
		"service", cfg.ServiceName,
		"endpoint", cfg.Endpoint,
		"interval", cfg.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the chain engine's instruments. All methods are no-ops on a
// nil receiver.
type Metrics struct {
	chainRuns        metric.Int64Counter
	chainDuration    metric.Float64Histogram
	taskRuns         metric.Int64Counter
	taskDuration     metric.Float64Histogram
	budgetViolations metric.Int64Counter
	inFlight         metric.Int64UpDownCounter
	persistFailures  metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.chainRuns, err = meter.Int64Counter("chain.runs",
		metric.WithDescription("Chain executions by chain and final status"),
	); err != nil {
		return nil, fmt.Errorf("creating chain.runs counter: %w", err)
	}
	if m.chainDuration, err = meter.Float64Histogram("chain.duration",
		metric.WithDescription("Wall-clock duration of chain executions"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating chain.duration histogram: %w", err)
	}
	if m.taskRuns, err = meter.Int64Counter("task.runs",
		metric.WithDescription("Task invocations by task and status"),
	); err != nil {
		return nil, fmt.Errorf("creating task.runs counter: %w", err)
	}
	if m.taskDuration, err = meter.Float64Histogram("task.duration",
		metric.WithDescription("Duration of task invocations"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating task.duration histogram: %w", err)
	}
	if m.budgetViolations, err = meter.Int64Counter("budget.violations",
		metric.WithDescription("Performance budget violations by metric"),
	); err != nil {
		return nil, fmt.Errorf("creating budget.violations counter: %w", err)
	}
	if m.inFlight, err = meter.Int64UpDownCounter("scheduler.inflight",
		metric.WithDescription("Tasks currently holding a scheduler slot"),
	); err != nil {
		return nil, fmt.Errorf("creating scheduler.inflight gauge: %w", err)
	}
	if m.persistFailures, err = meter.Int64Counter("metrics.persist_failures",
		metric.WithDescription("Iteration metric records that could not be persisted"),
	); err != nil {
		return nil, fmt.Errorf("creating metrics.persist_failures counter: %w", err)
	}
	return &m, nil
}

// RecordChain records one finished chain execution.
func (m *Metrics) RecordChain(ctx context.Context, chainName, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.chainRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("chain", chainName),
		attribute.String("status", status),
	))
	m.chainDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("chain", chainName)))
}

// RecordTask records one task invocation.
func (m *Metrics) RecordTask(ctx context.Context, task, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", task),
		attribute.String("status", status),
	))
	m.taskDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("task", task)))
}

// RecordBudgetViolation counts a violated budget metric.
func (m *Metrics) RecordBudgetViolation(ctx context.Context, metricName string) {
	if m == nil {
		return
	}
	m.budgetViolations.Add(ctx, 1, metric.WithAttributes(attribute.String("metric", metricName)))
}

// AddInFlight moves the scheduler in-flight gauge by delta.
func (m *Metrics) AddInFlight(ctx context.Context, scheduler string, delta int64) {
	if m == nil {
		return
	}
	m.inFlight.Add(ctx, delta, metric.WithAttributes(attribute.String("scheduler", scheduler)))
}

// RecordPersistFailure counts a metrics record that was not written.
func (m *Metrics) RecordPersistFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.persistFailures.Add(ctx, 1)
}
