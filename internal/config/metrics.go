package config

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var loadCounter = sync.OnceValue(func() metric.Int64Counter {
	c, err := otel.Meter("authd").Int64Counter("config.load.events",
		metric.WithDescription("Configuration loads by outcome"))
	if err != nil {
		return nil
	}
	return c
})

// recordLoadOutcome counts a Load call. The meter is resolved lazily so the
// count lands on whichever provider is installed first.
func recordLoadOutcome(ctx context.Context, env string, err error) {
	c := loadCounter()
	if c == nil {
		return
	}
	class, key := classifyLoadError(err)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := []attribute.KeyValue{
		attribute.String("env", envLabel(env)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", class),
	}
	if key != "" {
		attrs = append(attrs, attribute.String("key", key))
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// envLabel bounds the env attribute to the known environments.
func envLabel(env string) string {
	switch v := strings.ToLower(strings.TrimSpace(env)); v {
	case EnvDevelopment, EnvProduction, EnvTest:
		return v
	case "":
		return "unset"
	default:
		return "other"
	}
}

// classifyLoadError returns the error class and, for parse failures, the
// offending key.
func classifyLoadError(err error) (class, key string) {
	var (
		parseErr *ParseError
		validErr *ValidationError
	)
	switch {
	case err == nil:
		return "none", ""
	case errors.As(err, &parseErr):
		return "parse", parseErr.Key
	case errors.As(err, &validErr):
		return "validation", ""
	default:
		return "load", ""
	}
}
