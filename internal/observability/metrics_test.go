package observability

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordFunctionsAreNoopsBeforeInit(t *testing.T) {
	metricsMu.Lock()
	prev := appMetrics
	appMetrics = nil
	metricsMu.Unlock()
	t.Cleanup(func() {
		metricsMu.Lock()
		appMetrics = prev
		metricsMu.Unlock()
	})

	ctx := context.Background()
	RecordAuthLogin(ctx, "success")
	RecordRepositoryOperation(ctx, "user", "create", "success")
	RecordSecurityEvent(ctx, "permission_denied", "invalid_wildcard")
	RecordKeyManagerState(ctx, 2, "ready")
}

func TestRegisterInstrumentsRecordsCounters(t *testing.T) {
	metricsMu.Lock()
	prev := appMetrics
	metricsMu.Unlock()
	t.Cleanup(func() {
		metricsMu.Lock()
		appMetrics = prev
		metricsMu.Unlock()
	})

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	if err := registerInstruments(mp.Meter("test")); err != nil {
		t.Fatalf("register instruments: %v", err)
	}

	ctx := context.Background()
	RecordSecurityEvent(ctx, "permission_denied", "invalid_wildcard")
	RecordSecurityEvent(ctx, "permission_denied", "invalid_wildcard")
	RecordLegacyTokenValidation(ctx, "valid")
	RecordKeyManagerState(ctx, 2, "ready")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	sums := map[string]int64{}
	gauges := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					gauges[m.Name] = dp.Value
				}
			}
		}
	}
	if sums["security.events"] != 2 {
		t.Fatalf("expected 2 security events, got %d", sums["security.events"])
	}
	if sums["legacy_token.validations"] != 1 {
		t.Fatalf("expected 1 legacy validation, got %d", sums["legacy_token.validations"])
	}
	if gauges["keys.state"] != 2 {
		t.Fatalf("expected keys.state=2, got %d", gauges["keys.state"])
	}
}
