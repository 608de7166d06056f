// Package observability wires OpenTelemetry tracing.
//
// Spans are exported over OTLP/HTTP to a local collector or agent, which
// handles authentication and forwarding to whatever backend is configured.
// The endpoint defaults to localhost:4318, the standard OTLP HTTP port.
//
// Verify the collector endpoint is reachable with:
//
//	curl -v http://localhost:4318/v1/traces
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/corvus-ai/corvid/internal/config"
	"github.com/corvus-ai/corvid/internal/log"
)

// DefaultEndpoint is the standard local OTLP HTTP endpoint.
const DefaultEndpoint = "localhost:4318"

// Setup installs the global TracerProvider per the tracing config and
// returns a shutdown function that flushes pending spans. When tracing is
// disabled the returned shutdown is a no-op and the global provider stays
// untouched, so otel.Tracer callers get the default no-op tracer.
func Setup(ctx context.Context, cfg config.TracingConfig, logger log.Logger) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("building trace resource: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
		"sample_ratio", ratio,
	)

	return tp.Shutdown, nil
}
