package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ramsey-B/fern/internal/platform/reqctx"
)

func TestTraceParentRoundTrip(t *testing.T) {
	provider := sdktrace.NewTracerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	SetTracer(provider.Tracer("test"))
	defer SetTracer(nil)

	ctx := reqctx.SetUserID(context.Background(), "u1")
	ctx, span := StartSpan(ctx, "tracing.test")
	defer span.End()

	traceParent := GetTraceParent(ctx)
	require.NotEmpty(t, traceParent)

	remote := trace.SpanContextFromContext(WithTraceParent(context.Background(), traceParent))
	assert.True(t, remote.IsRemote())
	assert.Equal(t, span.SpanContext().TraceID(), remote.TraceID())
}

func TestGetTraceParent_NoTracer(t *testing.T) {
	SetTracer(nil)
	ctx, span := StartSpan(context.Background(), "tracing.test")
	defer span.End()

	assert.Empty(t, GetTraceParent(ctx))
	assert.Equal(t, ctx, WithTraceParent(ctx, ""))
}
