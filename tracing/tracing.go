// Package tracing wraps go.opentelemetry.io/otel to emit one span per
// association call and one child span per rule invocation, mirroring the
// shape (if not the full OTLP exporter configuration) of OPA's
// internal/distributedtracing package.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/GeminiDRSoftware/GeminiCalMgr/assoc"

// NewProvider builds an sdktrace.TracerProvider using opts (an exporter, a
// resource, a sampler) supplied by the caller, and registers it as the
// global provider the way a long-lived service wires tracing once at
// startup.
func NewProvider(opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp
}

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartAssociation opens the span for one Associate call.
func StartAssociation(ctx context.Context, instrument, caltype string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "assoc.Associate",
		trace.WithAttributes(
			attribute.String("instrument", instrument),
			attribute.String("caltype", caltype),
		),
	)
}

// StartRule opens the child span for one rule invocation.
func StartRule(ctx context.Context, instrument, caltype string, processed bool) (context.Context, trace.Span) {
	return tracer().Start(ctx, "rule.Invoke",
		trace.WithAttributes(
			attribute.String("instrument", instrument),
			attribute.String("caltype", caltype),
			attribute.Bool("processed", processed),
		),
	)
}
