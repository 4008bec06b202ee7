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

	"github.com/kbukum/dagflow/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
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

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.WithComponent("telemetry").Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the instruments recorded while graphs run.
type Metrics struct {
	nodeTotal    metric.Int64Counter
	nodeDuration metric.Float64Histogram
	nodeActive   metric.Int64UpDownCounter
	runTotal     metric.Int64Counter
	runDuration  metric.Float64Histogram
	retryTotal   metric.Int64Counter
	errorTotal   metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	nodeTotal, err := meter.Int64Counter("dagflow.node.total",
		metric.WithDescription("Nodes executed by kind and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dagflow.node.total counter: %w", err)
	}

	nodeDuration, err := meter.Float64Histogram("dagflow.node.duration",
		metric.WithDescription("Duration of node execution in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dagflow.node.duration histogram: %w", err)
	}

	nodeActive, err := meter.Int64UpDownCounter("dagflow.node.active",
		metric.WithDescription("Nodes currently executing"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dagflow.node.active gauge: %w", err)
	}

	runTotal, err := meter.Int64Counter("dagflow.run.total",
		metric.WithDescription("Graph runs by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dagflow.run.total counter: %w", err)
	}

	runDuration, err := meter.Float64Histogram("dagflow.run.duration",
		metric.WithDescription("Duration of graph runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dagflow.run.duration histogram: %w", err)
	}

	retryTotal, err := meter.Int64Counter("dagflow.retry.total",
		metric.WithDescription("Task attempts that were retried"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dagflow.retry.total counter: %w", err)
	}

	errorTotal, err := meter.Int64Counter("dagflow.error.total",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dagflow.error.total counter: %w", err)
	}

	return &Metrics{
		nodeTotal:    nodeTotal,
		nodeDuration: nodeDuration,
		nodeActive:   nodeActive,
		runTotal:     runTotal,
		runDuration:  runDuration,
		retryTotal:   retryTotal,
		errorTotal:   errorTotal,
	}, nil
}

// RecordNodeStart increments the active node count.
func (m *Metrics) RecordNodeStart(ctx context.Context, kind string) {
	m.nodeActive.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordNodeEnd decrements active nodes and records the finished node.
func (m *Metrics) RecordNodeEnd(ctx context.Context, kind, status string, duration time.Duration) {
	m.nodeActive.Add(ctx, -1, metric.WithAttributes(attribute.String("kind", kind)))
	m.RecordNode(ctx, kind, status, duration)
}

// RecordNode records one node execution.
func (m *Metrics) RecordNode(ctx context.Context, kind, status string, duration time.Duration) {
	m.nodeTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
	m.nodeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordRun records a finished graph run.
func (m *Metrics) RecordRun(ctx context.Context, graph, status string, duration time.Duration) {
	m.runTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("graph", graph),
		attribute.String("status", status),
	))
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("graph", graph),
	))
}

// RecordRetry records a retried attempt.
func (m *Metrics) RecordRetry(ctx context.Context, node string) {
	m.retryTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("node", node)))
}

// RecordError records an error by code and component.
func (m *Metrics) RecordError(ctx context.Context, code, component string) {
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", code),
		attribute.String("component", component),
	))
}
