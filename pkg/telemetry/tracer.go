package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer provides tracing for provisioning runs.
type Tracer struct {
	config   TracingConfig
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// NewTracer creates a new tracer with the given configuration. When tracing
// is disabled or the exporter is "none" a no-op tracer is returned, so
// callers never branch on whether tracing is active.
func NewTracer(cfg TracingConfig, serviceName, serviceVersion string) (*Tracer, error) {
	if !cfg.Enabled || cfg.Exporter == "none" {
		return &Tracer{
			config: cfg,
			tracer: otel.GetTracerProvider().Tracer("noop"),
		}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
			sdktrace.WithBatchTimeout(cfg.ExportTimeout),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
	)

	otel.SetTracerProvider(provider)

	return &Tracer{
		config:   cfg,
		tracer:   provider.Tracer(serviceName),
		provider: provider,
	}, nil
}

// StartRunSpan starts a span covering an entire provisioning run. The
// returned function ends the span and records the terminal error, if any.
func (t *Tracer) StartRunSpan(ctx context.Context, runID string) (context.Context, func(error)) {
	ctx, span := t.tracer.Start(ctx, "rig.run",
		trace.WithAttributes(attribute.String("run.id", runID)),
	)
	return ctx, func(err error) {
		endSpan(span, err)
	}
}

// StartStepSpan starts a span for a single step within a run.
func (t *Tracer) StartStepSpan(ctx context.Context, runID, stepName string) (context.Context, func(error)) {
	ctx, span := t.tracer.Start(ctx, "rig.step",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("step.name", stepName),
		),
	)
	return ctx, func(err error) {
		endSpan(span, err)
	}
}

// SetSpanAttributes adds attributes to the span in the current context.
func SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attrs...)
}

// Shutdown flushes pending spans and shuts down the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
