// Package telemetry owns the process tracer provider and decides which parts
// of the stats pipeline emit spans.
package telemetry

import (
	"context"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is reported when the configuration leaves the service name empty.
const DefaultServiceName = "github-stats-card"

// Mode selects how much of the pipeline is traced.
type Mode string

const (
	// ModeOff records nothing and skips the HTTP span wrappers.
	ModeOff Mode = "off"
	// ModeErrors keeps request spans at a low sample rate.
	ModeErrors Mode = "errors"
	// ModeSampled keeps request spans at the configured ratio.
	ModeSampled Mode = "sampled"
	// ModeDetailed records every request plus one span per GitHub, snapshot
	// and insights call.
	ModeDetailed Mode = "detailed"
)

// errorsModeFloor is the sample ratio used in ModeErrors when none is configured.
const errorsModeFloor = 0.01

// ParseMode maps a configured trace mode onto a Mode. Unknown values select
// ModeSampled.
func ParseMode(raw string) Mode {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case ModeOff, ModeErrors, ModeDetailed:
		return mode
	default:
		return ModeSampled
	}
}

// Config configures the tracer provider.
type Config struct {
	Enabled          bool
	ServiceName      string
	ServiceVersion   string
	TraceMode        string
	TraceSampleRatio float64
}

// Provider is the installed tracer provider together with its mode.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	mode           Mode
}

var active atomic.Pointer[Provider]

// Setup builds a tracer provider from cfg, installs it as the global otel
// provider and makes its mode the current one. Disabled tracing forces ModeOff.
func Setup(cfg Config) (*Provider, error) {
	mode := ParseMode(cfg.TraceMode)
	if !cfg.Enabled {
		mode = ModeOff
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(serviceName),
		attribute.String("github_stats_card.trace_mode", string(mode)),
	}
	if version := strings.TrimSpace(cfg.ServiceVersion); version != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(version))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, err
	}

	provider := &Provider{
		tracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithSampler(samplerFor(mode, cfg.TraceSampleRatio)),
			sdktrace.WithResource(res),
		),
		mode: mode,
	}
	otel.SetTracerProvider(provider.tracerProvider)
	active.Store(provider)
	return provider, nil
}

// Mode reports the mode the provider was built with.
func (p *Provider) Mode() Mode {
	if p == nil {
		return ModeOff
	}
	return p.mode
}

// Shutdown flushes and stops the provider. The current mode falls back to
// ModeOff when p is still the active provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	active.CompareAndSwap(p, nil)
	return p.tracerProvider.Shutdown(ctx)
}

// CurrentMode reports the mode of the active provider, or ModeOff before Setup.
func CurrentMode() Mode {
	return active.Load().Mode()
}

// DependencySpansEnabled reports whether each upstream call gets its own span.
func DependencySpansEnabled() bool {
	return CurrentMode() == ModeDetailed
}

func samplerFor(mode Mode, ratio float64) sdktrace.Sampler {
	switch mode {
	case ModeOff:
		return sdktrace.NeverSample()
	case ModeDetailed:
		return sdktrace.AlwaysSample()
	}

	ratio = min(max(ratio, 0), 1)
	if mode == ModeErrors && ratio == 0 {
		ratio = errorsModeFloor
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// StartDependencySpan starts a span around an upstream call in ModeDetailed.
// In every other mode it returns ctx unchanged and a no-op span, so callers
// may always pass the span to EndSpan.
func StartDependencySpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if !DependencySpansEnabled() {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// EndSpan records the outcome of an operation on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
