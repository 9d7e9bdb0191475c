package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation scope of bmplot spans.
const TracerName = "github.com/davidfague/bmtool"

// TracingConfig selects the span exporter.
type TracingConfig struct {
	Enabled  bool
	Exporter string // "stdout" or "none"
	Service  string
	Version  string
}

// Tracing owns a tracer and the provider behind it.
type Tracing struct {
	Tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// NewTracing builds a tracer. Disabled tracing and the "none" exporter
// return a no-op tracer. The stdout exporter writes spans to w.
func NewTracing(cfg TracingConfig, w io.Writer) (*Tracing, error) {
	if !cfg.Enabled || cfg.Exporter == "none" {
		return &Tracing{Tracer: noop.NewTracerProvider().Tracer(TracerName)}, nil
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "", "stdout":
		e, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		exporter = e
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}

	service := cfg.Service
	if service == "" {
		service = "bmplot"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", service),
		attribute.String("service.version", cfg.Version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return &Tracing{
		Tracer:   tp.Tracer(TracerName, trace.WithInstrumentationVersion(cfg.Version)),
		provider: tp,
	}, nil
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
