// Package telemetry provides OpenTelemetry tracing spans around the DAG
// Executor's waves and phases, and the Phase Runner's worker iterations
// and hook invocations — ambient observability, not the "persistent
// audit-log formatting" Non-goal spec.md excludes (that's presentation of
// the audit log; this is distributed tracing of the run itself).
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "forge"

// Provider owns the process-wide tracer provider and its exporter.
// Shutdown flushes and closes the exporter; callers should defer it once
// at process startup.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider builds a Provider exporting spans to OTEL_EXPORTER_OTLP_ENDPOINT
// over OTLP/HTTP when that environment variable is set, or to stdout
// otherwise — so a run always produces inspectable traces even with no
// collector configured.
func NewProvider(ctx context.Context, runID string) (*Provider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return nil, fmt.Errorf("create span exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("forge"),
			attribute.String("forge.run_id", runID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp}, nil
}

// Shutdown flushes pending spans and releases the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartWave opens a span covering one DAG Executor wave.
func StartWave(ctx context.Context, waveIndex, phaseCount int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "forge.wave", trace.WithAttributes(
		attribute.Int("forge.wave_index", waveIndex),
		attribute.Int("forge.wave_phase_count", phaseCount),
	))
}

// StartPhase opens a span covering one phase's full run (every
// iteration, from the Executor's perspective).
func StartPhase(ctx context.Context, phaseNumber, phaseName string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "forge.phase", trace.WithAttributes(
		attribute.String("forge.phase_number", phaseNumber),
		attribute.String("forge.phase_name", phaseName),
	))
}

// StartIteration opens a span covering one worker invocation within a
// phase.
func StartIteration(ctx context.Context, phaseNumber string, iteration int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "forge.iteration", trace.WithAttributes(
		attribute.String("forge.phase_number", phaseNumber),
		attribute.Int("forge.iteration", iteration),
	))
}

// StartHook opens a span covering one hook invocation.
func StartHook(ctx context.Context, event, command string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "forge.hook", trace.WithAttributes(
		attribute.String("forge.hook_event", event),
		attribute.String("forge.hook_command", command),
	))
}
