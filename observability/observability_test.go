package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestDefaultConfigs(t *testing.T) {
	tc := DefaultTracerConfig("chainkit")
	if tc.ServiceName != "chainkit" || tc.Endpoint != "localhost:4318" || tc.SampleRate != 1.0 || !tc.Insecure {
		t.Errorf("tracer defaults = %+v", tc)
	}
	if tc.Enabled {
		t.Error("tracing should be disabled by default")
	}

	mc := DefaultMeterConfig("chainkit")
	if mc.Interval != 15*time.Second || mc.Enabled {
		t.Errorf("meter defaults = %+v", mc)
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.5, "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		if got := samplerFor(tt.rate).Description(); got != tt.want {
			t.Errorf("samplerFor(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestNewResourceCarriesServiceName(t *testing.T) {
	res, err := newResource("chainkit", "1.2.3", "test")
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	v, ok := attrValue(res.Attributes(), AttrServiceName)
	if !ok || v.AsString() != "chainkit" {
		t.Errorf("service.name = %v", v)
	}
}

func TestOperationRecordsStatusAndError(t *testing.T) {
	exporter := installRecorder(t)

	ctx, op := StartOperation(context.Background(), SpanChainExecute, attribute.String(AttrChain, "demo"))
	if OperationFromContext(WithOperation(ctx, op)) != op {
		t.Fatal("operation not found in context")
	}
	op.End("failed", errors.New("boom"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != SpanChainExecute {
		t.Errorf("name = %s", s.Name)
	}
	if s.Status.Code != codes.Error {
		t.Errorf("status = %v", s.Status)
	}
	if v, _ := attrValue(s.Attributes, AttrChain); v.AsString() != "demo" {
		t.Errorf("chain attr = %v", v)
	}
	if v, _ := attrValue(s.Attributes, AttrStatus); v.AsString() != "failed" {
		t.Errorf("status attr = %v", v)
	}
	if len(s.Events) == 0 {
		t.Error("expected a recorded error event")
	}
}

func TestOperationFromContextNotSet(t *testing.T) {
	if OperationFromContext(context.Background()) != nil {
		t.Error("expected nil")
	}
}

func TestSetSpanAttributeAndError(t *testing.T) {
	exporter := installRecorder(t)

	ctx, span := StartSpan(context.Background(), "attrs")
	SetSpanAttribute(ctx, "s", "v")
	SetSpanAttribute(ctx, "i", 42)
	SetSpanAttribute(ctx, "i64", int64(7))
	SetSpanAttribute(ctx, "f", 1.5)
	SetSpanAttribute(ctx, "b", true)
	SetSpanAttribute(ctx, "ss", []string{"A", "B"})
	SetSpanAttribute(ctx, "ignored", struct{}{})
	SetSpanError(ctx, errors.New("bad"))
	span.End()

	s := exporter.GetSpans()[0]
	if len(s.Attributes) != 6 {
		t.Errorf("attributes = %v, want 6", s.Attributes)
	}
	if s.Status.Code != codes.Error {
		t.Errorf("status = %v", s.Status)
	}
}

func TestSpanHelpersWithoutRecorder(t *testing.T) {
	ctx := context.Background()
	SetSpanAttribute(ctx, "key", "value")
	SetSpanError(ctx, errors.New("no span"))
	if SpanFromContext(ctx) == nil {
		t.Fatal("expected noop span")
	}
}

func TestMetricsRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background()) //nolint:errcheck

	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.RecordChain(ctx, "demo", "completed", time.Second)
	m.RecordTask(ctx, "A", "executed", 10*time.Millisecond)
	m.RecordTask(ctx, "B", "failed", 10*time.Millisecond)
	m.RecordBudgetViolation(ctx, "runtime_ms")
	m.AddInFlight(ctx, "default", 1)
	m.AddInFlight(ctx, "default", -1)
	m.RecordPersistFailure(ctx)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	seen := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			seen[md.Name] = true
			if md.Name == "task.runs" {
				sum, ok := md.Data.(metricdata.Sum[int64])
				if !ok || len(sum.DataPoints) != 2 {
					t.Errorf("task.runs data = %#v", md.Data)
				}
			}
		}
	}
	for _, name := range []string{"chain.runs", "chain.duration", "task.runs", "task.duration",
		"budget.violations", "scheduler.inflight", "metrics.persist_failures"} {
		if !seen[name] {
			t.Errorf("instrument %s not collected", name)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordChain(ctx, "demo", "completed", time.Second)
	m.RecordTask(ctx, "A", "executed", time.Millisecond)
	m.RecordBudgetViolation(ctx, "x")
	m.AddInFlight(ctx, "s", 1)
	m.RecordPersistFailure(ctx)
}

func TestNewMetricsOnNoopMeter(t *testing.T) {
	if _, err := NewMetrics(noop.NewMeterProvider().Meter("test")); err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
}

func TestInitTracerAndMeter(t *testing.T) {
	prevTP := otel.GetTracerProvider()
	prevMP := otel.GetMeterProvider()
	defer func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	}()

	// Exporters connect lazily, so construction succeeds without a collector.
	tp, err := InitTracer(context.Background(), DefaultTracerConfig("chainkit"))
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = tp.Shutdown(ctx)

	mp, err := InitMeter(context.Background(), DefaultMeterConfig("chainkit"))
	if err != nil {
		t.Fatalf("InitMeter: %v", err)
	}
	_ = mp.Shutdown(ctx)
}
