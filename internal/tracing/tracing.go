// Package tracing wires OpenTelemetry for the runtime. Tracing is off unless
// FNSDK_OTEL_ENABLED is set, in which case spans go to an OTLP gRPC collector.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// EnvEnabled switches the OTLP exporter on.
	EnvEnabled = "FNSDK_OTEL_ENABLED"
	// EnvSampleRatio is the fraction of root traces kept, 0 to 1.
	EnvSampleRatio = "FNSDK_OTEL_SAMPLE_RATIO"

	defaultEndpoint = "localhost:4317"
)

// Config holds tracing configuration.
type Config struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

// ConfigFromEnv reads tracing settings. OTEL_EXPORTER_OTLP_ENDPOINT keeps its
// standard meaning.
func ConfigFromEnv(serviceName string) Config {
	cfg := Config{
		Enabled:     strings.EqualFold(os.Getenv(EnvEnabled), "true"),
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName: serviceName,
		SampleRatio: 1,
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if v, err := strconv.ParseFloat(os.Getenv(EnvSampleRatio), 64); err == nil && v >= 0 && v <= 1 {
		cfg.SampleRatio = v
	}
	return cfg
}

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Setup installs the global tracer provider and propagator and returns the
// runtime tracer. When disabled the tracer is a no-op and shutdown does nothing.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (trace.Tracer, ShutdownFunc, error) {
	if !cfg.Enabled {
		logger.Info("tracing disabled")
		return noop.NewTracerProvider().Tracer(cfg.ServiceName), func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(Propagator())

	logger.Info("tracing enabled", "endpoint", cfg.Endpoint, "service", cfg.ServiceName, "sample_ratio", cfg.SampleRatio)
	return tp.Tracer(cfg.ServiceName), tp.Shutdown, nil
}

// Propagator is the W3C trace-context and baggage propagator used on every
// transport.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}
