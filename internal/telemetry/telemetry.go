package telemetry

import (
	"context"
	"log"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Options struct {
	ServiceName string
	Endpoint    string
	Insecure    bool
	// SampleRatio is the fraction of root spans kept. Zero or less keeps everything.
	SampleRatio float64
}

// OptionsFromEnv reads the standard OTEL_* variables.
func OptionsFromEnv(serviceName string) Options {
	opts := Options{
		ServiceName: serviceName,
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:    os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
	}
	if raw := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); raw != "" {
		if ratio, err := strconv.ParseFloat(raw, 64); err == nil {
			opts.SampleRatio = ratio
		}
	}
	return opts
}

// Setup installs a global OTLP tracer provider and returns its shutdown.
// Without an endpoint it does nothing.
func Setup(ctx context.Context, opts Options) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if opts.Endpoint == "" {
		return noop
	}

	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		log.Printf("otel exporter error: %v", err)
		return noop
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(opts.ServiceName)))
	if err != nil {
		log.Printf("otel resource error: %v", err)
	}

	sampler := trace.AlwaysSample()
	if opts.SampleRatio > 0 && opts.SampleRatio < 1 {
		sampler = trace.ParentBased(trace.TraceIDRatioBased(opts.SampleRatio))
	}
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	log.Printf("otel tracing enabled service=%s endpoint=%s", opts.ServiceName, opts.Endpoint)

	return provider.Shutdown
}
