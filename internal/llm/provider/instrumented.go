package provider

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/parley-dev/parley/internal/observability"
	pkgobs "github.com/parley-dev/parley/pkg/observability"
)

// InstrumentedProvider wraps a Provider with tracing and metrics.
// All generation calls get an OpenTelemetry span and a Prometheus
// counter/duration observation.
type InstrumentedProvider struct {
	provider Provider
	enabled  bool
}

// NewInstrumentedProvider wraps a provider with automatic observability
func NewInstrumentedProvider(provider Provider, enabled bool) *InstrumentedProvider {
	return &InstrumentedProvider{provider: provider, enabled: enabled}
}

// Name returns the underlying provider name
func (p *InstrumentedProvider) Name() string {
	return p.provider.Name()
}

// CreateCompletion creates a completion with automatic instrumentation
func (p *InstrumentedProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	if !p.enabled {
		return p.provider.CreateCompletion(ctx, request)
	}

	ctx, span := observability.StartSpan(ctx, fmt.Sprintf("llm.%s.completion", p.provider.Name()),
		trace.WithAttributes(
			attribute.String("llm.provider", p.provider.Name()),
			attribute.String("llm.model", request.Model),
			attribute.Int("llm.messages_count", len(request.Messages)),
		),
	)
	defer span.End()

	start := time.Now()
	response, err := p.provider.CreateCompletion(ctx, request)
	p.finish(span, "completion", start, err)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("llm.total_tokens", response.Usage.TotalTokens))
	return response, nil
}

// CreateStructured creates a structured response with automatic instrumentation
func (p *InstrumentedProvider) CreateStructured(ctx context.Context, request StructuredRequest) (*StructuredResponse, error) {
	if !p.enabled {
		return p.provider.CreateStructured(ctx, request)
	}

	ctx, span := observability.StartSpan(ctx, fmt.Sprintf("llm.%s.structured", p.provider.Name()),
		trace.WithAttributes(
			attribute.String("llm.provider", p.provider.Name()),
			attribute.String("llm.model", request.Model),
		),
	)
	defer span.End()

	start := time.Now()
	response, err := p.provider.CreateStructured(ctx, request)
	p.finish(span, "structured", start, err)
	if err != nil {
		return nil, err
	}
	return response, nil
}

// CreateStreaming creates a streaming response with automatic instrumentation.
// The span covers stream setup only; fragment relay belongs to the caller.
func (p *InstrumentedProvider) CreateStreaming(ctx context.Context, request CompletionRequest) (Stream, error) {
	if !p.enabled {
		return p.provider.CreateStreaming(ctx, request)
	}

	ctx, span := observability.StartSpan(ctx, fmt.Sprintf("llm.%s.streaming", p.provider.Name()),
		trace.WithAttributes(
			attribute.String("llm.provider", p.provider.Name()),
			attribute.String("llm.model", request.Model),
		),
	)
	defer span.End()

	start := time.Now()
	stream, err := p.provider.CreateStreaming(ctx, request)
	p.finish(span, "streaming", start, err)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (p *InstrumentedProvider) finish(span trace.Span, op string, start time.Time, err error) {
	duration := time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	span.SetAttributes(
		attribute.Int64("llm.duration_ms", duration.Milliseconds()),
		attribute.Bool("llm.success", err == nil),
	)
	pkgobs.RecordProviderCall(p.provider.Name(), op, status, duration)
}
