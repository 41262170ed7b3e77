// OpenTelemetry tracing for the compiler core.
package observability

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// TracerConfig tunes the OTLP pipeline.
type TracerConfig struct {
	ServiceName string
	Endpoint    string
	// SamplingRatio in (0,1]. Compile spans fire on every keystroke in
	// watch mode, so production deployments want a fraction; <= 0 falls
	// back to 1 (trace everything, the right default for a dev tool).
	SamplingRatio float64
	// Insecure skips TLS on the exporter connection (local collectors).
	Insecure bool
	// Environment tags the deployment (development, staging, production).
	Environment string
}

// InitTracer initializes OpenTelemetry tracing with an OTLP exporter.
// Returns a shutdown function that must be called on service termination;
// it flushes the batch processor before exit.
func InitTracer(serviceName, otlpEndpoint string) (func(context.Context) error, error) {
	return InitTracerWithConfig(TracerConfig{
		ServiceName: serviceName,
		Endpoint:    otlpEndpoint,
		Insecure:    true,
		Environment: "development",
	})
}

// InitTracerWithConfig initializes tracing with explicit sampling and
// transport settings.
func InitTracerWithConfig(cfg TracerConfig) (func(context.Context) error, error) {
	ctx := context.Background()

	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(10 * time.Second),
	}
	if cfg.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	host, _ := os.Hostname()
	env := cfg.Environment
	if env == "" {
		env = "development"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
			semconv.DeploymentEnvironment(env),
			semconv.HostName(host),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Parent-based sampling keeps whole traces together: the compile span
	// decides and the session/bundle child spans follow it.
	ratio := cfg.SamplingRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	sampler := trace.ParentBased(trace.TraceIDRatioBased(ratio))

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
