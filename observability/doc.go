// Package observability wires OpenTelemetry tracing and metrics for graph
// runs.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("dagflow"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanNode)
//	defer span.End()
//
// Metrics:
//
//	metrics, err := observability.NewMetrics(observability.Meter("dagflow"))
//	metrics.RecordNode(ctx, "task", "completed", duration)
//
// Setup initializes both providers from a config.TelemetryConfig and returns
// a single shutdown function.
package observability
