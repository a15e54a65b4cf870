package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/berry-13/vicsam-group-sub002/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/berry-13/vicsam-group-sub002"

type AppMetrics struct {
	authLoginCounter      metric.Int64Counter
	authRefreshCounter    metric.Int64Counter
	authLogoutCounter     metric.Int64Counter
	repositoryCounter     metric.Int64Counter
	securityEventCounter  metric.Int64Counter
	keyStateGauge         metric.Int64Gauge
	legacyTokenCounter    metric.Int64Counter
	permissionCacheEvents metric.Int64Counter
	accessTokenCounter    metric.Int64Counter
	rateLimitCounter      metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	if err := registerInstruments(mp.Meter(meterName)); err != nil {
		return nil, err
	}
	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

// registerInstruments creates every instrument on meter and makes them the
// active set. Until it runs, the Record* functions are no-ops.
func registerInstruments(meter metric.Meter) error {
	var (
		m   AppMetrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.authLoginCounter, "auth.login.attempts"},
		{&m.authRefreshCounter, "auth.refresh.attempts"},
		{&m.authLogoutCounter, "auth.logout.attempts"},
		{&m.repositoryCounter, "repository.operations"},
		{&m.securityEventCounter, "security.events"},
		{&m.legacyTokenCounter, "legacy_token.validations"},
		{&m.permissionCacheEvents, "rbac.permission_cache.events"},
		{&m.accessTokenCounter, "auth.access_token.validations"},
		{&m.rateLimitCounter, "http.rate_limit.decisions"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name); err != nil {
			return fmt.Errorf("create counter %s: %w", c.name, err)
		}
	}
	if m.keyStateGauge, err = meter.Int64Gauge("keys.state"); err != nil {
		return fmt.Errorf("create gauge keys.state: %w", err)
	}

	metricsMu.Lock()
	appMetrics = &m
	metricsMu.Unlock()
	return nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthLogin(ctx context.Context, status string) {
	if m := current(); m != nil {
		m.authLoginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func RecordAuthRefresh(ctx context.Context, status string) {
	if m := current(); m != nil {
		m.authRefreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func RecordAuthLogout(ctx context.Context, status string) {
	if m := current(); m != nil {
		m.authLogoutCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, status string) {
	if m := current(); m != nil {
		m.repositoryCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("operation", operation),
			attribute.String("status", status),
		))
	}
}

// RecordSecurityEvent counts events such as rejected wildcards, refresh token
// reuse and account lockouts.
func RecordSecurityEvent(ctx context.Context, event, reason string) {
	if m := current(); m != nil {
		m.securityEventCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event", event),
			attribute.String("reason", reason),
		))
	}
}

func RecordKeyManagerState(ctx context.Context, state int64, name string) {
	if m := current(); m != nil {
		m.keyStateGauge.Record(ctx, state, metric.WithAttributes(attribute.String("state", name)))
	}
}

func RecordLegacyTokenValidation(ctx context.Context, result string) {
	if m := current(); m != nil {
		m.legacyTokenCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

func RecordRBACPermissionCacheEvent(ctx context.Context, event string) {
	if m := current(); m != nil {
		m.permissionCacheEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
	}
}

func RecordAccessTokenValidation(ctx context.Context, outcome string) {
	if m := current(); m != nil {
		m.accessTokenCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func RecordRateLimitDecision(ctx context.Context, scope, decision string) {
	if m := current(); m != nil {
		m.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("decision", decision),
		))
	}
}
