package telemetry

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	// Global tracer for the application
	Tracer trace.Tracer

	// Global meter for custom metrics
	Meter metric.Meter

	// Custom metrics
	TasksSubmitted   metric.Int64Counter
	TasksCompleted   metric.Int64Counter
	TasksFailed      metric.Int64Counter
	EscalationsTotal metric.Int64Counter
	ConsultLatency   metric.Float64Histogram
)

// InitTelemetry initializes OpenTelemetry tracing and metrics.
func InitTelemetry(ctx context.Context, serviceName, environment, otelEndpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
			attribute.String("environment", environment),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	Tracer = otel.Tracer(serviceName)
	Meter = otel.Meter(serviceName)

	if err := initMetrics(); err != nil {
		return nil, err
	}

	log.Printf("[Telemetry] Initialized with endpoint %s", otelEndpoint)

	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return traceProvider.Shutdown(shutdownCtx)
	}, nil
}

// initMetrics creates all custom metrics.
func initMetrics() error {
	var err error

	TasksSubmitted, err = Meter.Int64Counter(
		"counsel.tasks.submitted",
		metric.WithDescription("Number of tasks submitted for consultation"),
	)
	if err != nil {
		return err
	}

	TasksCompleted, err = Meter.Int64Counter(
		"counsel.tasks.completed",
		metric.WithDescription("Number of tasks completed successfully"),
	)
	if err != nil {
		return err
	}

	TasksFailed, err = Meter.Int64Counter(
		"counsel.tasks.failed",
		metric.WithDescription("Number of tasks that ended in a reported failure"),
	)
	if err != nil {
		return err
	}

	EscalationsTotal, err = Meter.Int64Counter(
		"counsel.escalations.total",
		metric.WithDescription("Number of tier escalations"),
	)
	if err != nil {
		return err
	}

	ConsultLatency, err = Meter.Float64Histogram(
		"counsel.consult.latency",
		metric.WithDescription("End-to-end task processing latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}
