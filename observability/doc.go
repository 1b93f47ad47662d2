// Package observability wires OpenTelemetry tracing and metrics into chain
// execution.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, cfg.Tracing)
//	defer tp.Shutdown(ctx)
//
//	ctx, op := observability.StartOperation(ctx, "chain.execute", attribute.String(observability.AttrChain, name))
//	defer op.End(status, err)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, cfg.Metrics)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("chainkit"))
//	metrics.RecordTask(ctx, "Module_A", "executed", d)
//
// A nil *Metrics is valid and records nothing.
package observability
