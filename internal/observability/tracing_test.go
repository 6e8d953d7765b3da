package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/signalsfoundry/geodesy/internal/logging"
)

func TestInitTracingDisabledInstallsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	defer ShutdownWithTimeout(context.Background(), shutdown, nil)

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Fatalf("expected noop span when tracing is disabled")
	}
}

func TestTracerProviderStdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	tp, err := NewTracerProvider(ctx, TracingConfig{
		Enabled:     true,
		ServiceName: "geodesy-test",
		Exporter:    "stdout",
		SampleRatio: 1,
		Output:      &buf,
	})
	if err != nil {
		t.Fatalf("NewTracerProvider: %v", err)
	}

	_, span := tp.Tracer("test").Start(ctx, "geodesy/distance")
	span.End()
	ShutdownWithTimeout(ctx, tp.Shutdown, logging.Noop())

	out := buf.String()
	if !strings.Contains(out, "geodesy/distance") {
		t.Fatalf("stdout exporter output missing span name:\n%s", out)
	}
	if !strings.Contains(out, "geodesy-test") {
		t.Fatalf("stdout exporter output missing service name:\n%s", out)
	}
}

func TestTracerProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewTracerProvider(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"})
	if err == nil || !strings.Contains(err.Error(), "unsupported tracing exporter") {
		t.Fatalf("error = %v, want unsupported exporter", err)
	}
}

func TestTracingConfigDefaults(t *testing.T) {
	cfg := TracingConfig{SampleRatio: 4}.withDefaults()
	if cfg.ServiceName != "geodesy" || cfg.Exporter != "stdout" || cfg.SampleRatio != 1 || cfg.Output == nil {
		t.Fatalf("defaults = %+v", cfg)
	}
}
