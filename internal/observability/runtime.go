package observability

import (
	"context"
	"errors"
	"log/slog"

	"github.com/berry-13/vicsam-group-sub002/internal/config"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Runtime owns the OTel providers. Logger is bridged into OTel logs when they
// are enabled and is the logger the rest of the process should use.
type Runtime struct {
	Logger         *slog.Logger
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
	LoggerProvider *sdklog.LoggerProvider
}

func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{Logger: logger}
	var err error
	if rt.MeterProvider, err = InitMetrics(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if rt.TracerProvider, err = InitTracing(ctx, cfg, logger); err != nil {
		return nil, errors.Join(err, rt.Shutdown(ctx))
	}
	if rt.Logger, rt.LoggerProvider, err = InitLogging(ctx, cfg, logger); err != nil {
		rt.Logger = logger
		return nil, errors.Join(err, rt.Shutdown(ctx))
	}
	return rt, nil
}

// Shutdown flushes traces and metrics before logs so that anything logged
// while they drain is still exported.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var steps []func(context.Context) error
	if r.TracerProvider != nil {
		steps = append(steps, r.TracerProvider.Shutdown)
	}
	if r.MeterProvider != nil {
		steps = append(steps, r.MeterProvider.Shutdown)
	}
	if r.LoggerProvider != nil {
		steps = append(steps, r.LoggerProvider.Shutdown)
	}
	var errs []error
	for _, step := range steps {
		if err := step(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
