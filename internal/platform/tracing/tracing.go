package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ramsey-B/fern/internal/platform/reqctx"
)

var tracer trace.Tracer

func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a child span tagged with the acting user and caller found
// on ctx. Without a tracer it returns ctx's current span.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	var attrs []attribute.KeyValue
	if actor := reqctx.GetUserID(ctx); actor != "" {
		attrs = append(attrs, attribute.String("fern.actor_id", actor))
	}
	if source := reqctx.GetSource(ctx); source != "" {
		attrs = append(attrs, attribute.String("fern.source", source))
	}
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// GetTraceParent renders ctx's span as a W3C traceparent header, or "" when
// no span is recording.
func GetTraceParent(ctx context.Context) string {
	if tracer == nil || !trace.SpanContextFromContext(ctx).IsValid() {
		return ""
	}
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get("traceparent")
}

// WithTraceParent continues the trace named by a traceparent header.
func WithTraceParent(ctx context.Context, traceParent string) context.Context {
	if traceParent == "" {
		return ctx
	}
	return propagation.TraceContext{}.Extract(ctx, propagation.MapCarrier{"traceparent": traceParent})
}
