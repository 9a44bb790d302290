// Package otel provides OpenTelemetry implementations for homelink observability interfaces.
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tsarna/homelink/pkg/homelink/o11y"
)

// instrument is the metadata exported with a homelink metric.
type instrument struct {
	description string
	unit        string
}

// instruments describes the metrics recorded by the request and channel
// clients. Unknown names are exported without metadata.
var instruments = map[string]instrument{
	"homelink.request.attempts":         {"HTTP attempts sent, retries included", "{attempt}"},
	"homelink.request.retries":          {"HTTP attempts repeated after a 503 or network failure", "{retry}"},
	"homelink.request.failures":         {"Requests that ended in a reported failure, by kind", "{request}"},
	"homelink.request.duration":         {"Time spent in Execute, retry waits included", "s"},
	"homelink.request.retry_delay_ms":   {"Delay before each repeated attempt", "ms"},
	"homelink.channel.frames":           {"Frames read from the event channel", "{frame}"},
	"homelink.channel.malformed_frames": {"Frames dropped as malformed", "{frame}"},
	"homelink.channel.reconnects":       {"Reconnect attempts scheduled after a lost connection", "{reconnect}"},
	"homelink.channel.state":            {"Current channel state: 0 disconnected, 1 connecting, 2 connected, 3 erroring", "1"},
}

// Provider implements both MetricsProvider and TracingProvider using the
// globally registered OpenTelemetry providers. Without an SDK installed the
// globals are no-ops.
type Provider struct {
	meter  metric.Meter
	tracer trace.Tracer
}

// NewProvider creates a provider scoped to the given instrumentation name.
func NewProvider(serviceName, serviceVersion string) *Provider {
	return &Provider{
		meter:  otel.Meter(serviceName, metric.WithInstrumentationVersion(serviceVersion)),
		tracer: otel.Tracer(serviceName, trace.WithInstrumentationVersion(serviceVersion)),
	}
}

// Counter creates an Int64Counter carrying the homelink description and unit.
func (p *Provider) Counter(name string) o11y.Counter {
	i := instruments[name]
	counter, _ := p.meter.Int64Counter(name, metric.WithDescription(i.description), metric.WithUnit(i.unit))
	return &otelCounter{counter: counter}
}

// Histogram creates a Float64Histogram.
func (p *Provider) Histogram(name string) o11y.Histogram {
	i := instruments[name]
	histogram, _ := p.meter.Float64Histogram(name, metric.WithDescription(i.description), metric.WithUnit(i.unit))
	return &otelHistogram{histogram: histogram}
}

// Gauge uses a synchronous Float64Gauge, recording the absolute value.
func (p *Provider) Gauge(name string) o11y.Gauge {
	i := instruments[name]
	gauge, _ := p.meter.Float64Gauge(name, metric.WithDescription(i.description), metric.WithUnit(i.unit))
	return &otelGauge{gauge: gauge}
}

// StartSpan starts a span on the homelink tracer.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

func attributes(labels []o11y.Label) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(labels))
	for i, label := range labels {
		attrs[i] = attribute.String(label.Key, label.Value)
	}
	return attrs
}

// otelCounter wraps an Int64Counter
type otelCounter struct {
	counter metric.Int64Counter
}

func (c *otelCounter) Add(ctx context.Context, value int64, labels ...o11y.Label) {
	c.counter.Add(ctx, value, metric.WithAttributes(attributes(labels)...))
}

// otelHistogram wraps a Float64Histogram
type otelHistogram struct {
	histogram metric.Float64Histogram
}

func (h *otelHistogram) Record(ctx context.Context, value float64, labels ...o11y.Label) {
	h.histogram.Record(ctx, value, metric.WithAttributes(attributes(labels)...))
}

// otelGauge wraps a Float64Gauge
type otelGauge struct {
	gauge metric.Float64Gauge
}

func (g *otelGauge) Set(ctx context.Context, value float64, labels ...o11y.Label) {
	g.gauge.Record(ctx, value, metric.WithAttributes(attributes(labels)...))
}

// otelSpan wraps a trace.Span
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) SetAttributes(labels ...o11y.Label) {
	s.span.SetAttributes(attributes(labels)...)
}

// SetStatus maps o11y status codes onto otel codes; unknown codes are Unset.
func (s *otelSpan) SetStatus(code o11y.SpanStatusCode, description string) {
	switch code {
	case o11y.SpanStatusOK:
		s.span.SetStatus(codes.Ok, description)
	case o11y.SpanStatusError:
		s.span.SetStatus(codes.Error, description)
	default:
		s.span.SetStatus(codes.Unset, description)
	}
}

func (s *otelSpan) End() {
	s.span.End()
}
