package telemetry

import (
	"context"
	"testing"
)

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	opts := OptionsFromEnv("appointment-service")
	if opts.Endpoint != "collector:4317" || !opts.Insecure || opts.SampleRatio != 0.25 {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown := Setup(context.Background(), Options{ServiceName: "appointment-service"})
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("expected noop shutdown, got %v", err)
	}
}
