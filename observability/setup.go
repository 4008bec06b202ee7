package observability

import (
	"context"
	"errors"

	"github.com/kbukum/dagflow/config"
	"github.com/kbukum/dagflow/version"
)

// ShutdownFunc flushes and stops the telemetry providers.
type ShutdownFunc func(context.Context) error

// Setup initializes tracing and metrics from cfg. When telemetry is disabled
// it leaves the global no-op providers in place and returns a no-op shutdown.
func Setup(ctx context.Context, serviceName, environment string, cfg config.TelemetryConfig) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	tcfg := DefaultTracerConfig(serviceName)
	tcfg.ServiceVersion = version.GetVersionInfo().Version
	tcfg.Environment = environment
	tcfg.Endpoint = cfg.Endpoint
	tcfg.Insecure = cfg.Insecure
	tcfg.SampleRate = cfg.SampleRate

	tp, err := InitTracer(ctx, tcfg)
	if err != nil {
		return nil, err
	}

	mcfg := DefaultMeterConfig(serviceName)
	mcfg.ServiceVersion = tcfg.ServiceVersion
	mcfg.Environment = environment
	mcfg.Endpoint = cfg.Endpoint
	mcfg.Insecure = cfg.Insecure

	mp, err := InitMeter(ctx, mcfg)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
