package tracing

import (
	"context"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/fern/internal/platform/tracing/exporters"
)

type ProviderConfig struct {
	ServiceName  string
	OTLPEndpoint string
	OTLPProtocol string
	SampleRatio  float64
}

// Setup installs a global tracer provider and returns its shutdown func.
// Without an OTLP endpoint finished spans go to the logger at debug level.
func Setup(ctx context.Context, cfg ProviderConfig, logger ectologger.Logger) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter = &exporters.ConsoleExporter{Logger: logger}
	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := exporters.NewOTLPExporter(ctx, cfg.OTLPEndpoint, cfg.OTLPProtocol)
		if err != nil {
			logger.WithError(err).Error("Failed to create OTLP exporter")
			return nil, err
		}
		exporter = otlpExporter
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 {
		ratio = 1.0
	}

	res := resource.NewWithAttributes("", attribute.String("service.name", cfg.ServiceName))
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	SetTracer(provider.Tracer(cfg.ServiceName))

	return provider.Shutdown, nil
}
