package tracing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv(EnvEnabled, "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv(EnvSampleRatio, "")

	cfg := ConfigFromEnv("fnsdk-runtime")
	if cfg.Enabled {
		t.Error("expected tracing disabled by default")
	}
	if cfg.Endpoint != "localhost:4317" {
		t.Errorf("expected default endpoint, got %s", cfg.Endpoint)
	}
	if cfg.SampleRatio != 1 {
		t.Errorf("expected sample ratio 1, got %v", cfg.SampleRatio)
	}
}

func TestConfigFromEnv_Values(t *testing.T) {
	tests := []struct {
		env     string
		ratio   string
		enabled bool
		want    float64
	}{
		{"true", "0.25", true, 0.25},
		{"TRUE", "", true, 1},
		{"True", "2", true, 1},
		{"yes", "-1", false, 1},
		{"false", "0", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.ratio, func(t *testing.T) {
			t.Setenv(EnvEnabled, tt.env)
			t.Setenv(EnvSampleRatio, tt.ratio)
			t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

			cfg := ConfigFromEnv("svc")
			if cfg.Enabled != tt.enabled {
				t.Errorf("expected enabled %v, got %v", tt.enabled, cfg.Enabled)
			}
			if cfg.SampleRatio != tt.want {
				t.Errorf("expected ratio %v, got %v", tt.want, cfg.SampleRatio)
			}
			if cfg.Endpoint != "collector:4317" {
				t.Errorf("unexpected endpoint %s", cfg.Endpoint)
			}
		})
	}
}

func TestSetup_Disabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracer, shutdown, err := Setup(context.Background(), Config{ServiceName: "svc"}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracer == nil {
		t.Fatal("expected a tracer")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

func TestSpanHelpers(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tracer := tp.Tracer("test")

	_, span := StartSpan(context.Background(), tracer, SpanMessageDecode)
	SetSpanError(span, errors.New("bad envelope"))
	span.End()

	_, span = StartSpan(context.Background(), tracer, SpanAck)
	SetSpanOK(span)
	span.End()

	ended := rec.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(ended))
	}
	if ended[0].Name() != SpanMessageDecode || ended[0].Status().Code != codes.Error {
		t.Errorf("unexpected first span %s %v", ended[0].Name(), ended[0].Status())
	}
	if ended[1].Status().Code != codes.Ok {
		t.Errorf("expected ok status, got %v", ended[1].Status())
	}
}

func TestStartSpan_NilTracer(t *testing.T) {
	ctx := context.Background()
	got, span := StartSpan(ctx, nil, SpanHandlerInvoke)
	if got != ctx || span == nil {
		t.Error("expected context passthrough and a non-nil span")
	}
	SetSpanError(nil, errors.New("ignored"))
	SetSpanOK(nil)
}

func TestPropagator(t *testing.T) {
	fields := Propagator().Fields()
	if len(fields) == 0 {
		t.Error("expected propagator fields")
	}
}
