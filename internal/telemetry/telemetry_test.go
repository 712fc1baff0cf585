package telemetry

import (
	"context"
	"os"
	"testing"
)

func TestNewProviderDefaultsToStdout(t *testing.T) {
	os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	ctx := context.Background()
	p, err := NewProvider(ctx, "run1")
	if err != nil {
		t.Fatal(err)
	}
	defer p.Shutdown(ctx)

	_, span := StartPhase(ctx, "01", "scaffold")
	span.End()
}

func TestStartWaveAndIterationProduceSpans(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(ctx, "run1")
	if err != nil {
		t.Fatal(err)
	}
	defer p.Shutdown(ctx)

	waveCtx, waveSpan := StartWave(ctx, 0, 2)
	_, iterSpan := StartIteration(waveCtx, "01", 1)
	iterSpan.End()
	waveSpan.End()
}

func TestShutdownNilProviderIsNoOp(t *testing.T) {
	var p *Provider
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected no error shutting down a nil provider, got %v", err)
	}
}
