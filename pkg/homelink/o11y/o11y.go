// Package o11y defines the small metrics and tracing surface the transport
// clients report through. The otel package adapts it to OpenTelemetry; Nop
// is used when nothing is configured.
package o11y

import (
	"context"
	"sync"
)

// MetricsProvider hands out named instruments.
type MetricsProvider interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// TracingProvider starts spans.
type TracingProvider interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Counter represents a monotonically increasing metric
type Counter interface {
	Add(ctx context.Context, value int64, labels ...Label)
}

// Histogram records distribution of values
type Histogram interface {
	Record(ctx context.Context, value float64, labels ...Label)
}

// Gauge represents a value that can go up and down
type Gauge interface {
	Set(ctx context.Context, value float64, labels ...Label)
}

// Span represents a unit of work in a trace
type Span interface {
	SetAttributes(labels ...Label)
	SetStatus(code SpanStatusCode, description string)
	End()
}

// Label represents a key-value pair for metrics and tracing
type Label struct {
	Key   string
	Value string
}

// L builds a Label.
func L(key, value string) Label { return Label{Key: key, Value: value} }

// SpanStatusCode represents the status of a span
type SpanStatusCode int

const (
	SpanStatusUnset SpanStatusCode = iota
	SpanStatusOK
	SpanStatusError
)

// Nop implements both providers and discards everything.
type Nop struct{}

func (Nop) Counter(string) Counter { return nopInstrument{} }
func (Nop) Histogram(string) Histogram { return nopInstrument{} }
func (Nop) Gauge(string) Gauge { return nopInstrument{} }

func (Nop) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, nopInstrument{}
}

type nopInstrument struct{}

func (nopInstrument) Add(context.Context, int64, ...Label) {}
func (nopInstrument) Record(context.Context, float64, ...Label) {}
func (nopInstrument) Set(context.Context, float64, ...Label) {}
func (nopInstrument) SetAttributes(...Label) {}
func (nopInstrument) SetStatus(SpanStatusCode, string) {}
func (nopInstrument) End() {}

// Memory is a MetricsProvider that keeps totals in memory. Counter values
// are summed, gauges keep the last value, histograms keep every sample.
type Memory struct {
	mu         sync.Mutex
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

func NewMemory() *Memory {
	return &Memory{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (m *Memory) Counter(name string) Counter { return memoryInstrument{m: m, name: name} }
func (m *Memory) Histogram(name string) Histogram { return memoryInstrument{m: m, name: name} }
func (m *Memory) Gauge(name string) Gauge { return memoryInstrument{m: m, name: name} }

// CounterValue returns the running total of a counter.
func (m *Memory) CounterValue(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// GaugeValue returns the last value set on a gauge.
func (m *Memory) GaugeValue(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[name]
}

// Samples returns the values recorded on a histogram.
func (m *Memory) Samples(name string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.histograms[name]))
	copy(out, m.histograms[name])
	return out
}

type memoryInstrument struct {
	m    *Memory
	name string
}

func (i memoryInstrument) Add(_ context.Context, value int64, _ ...Label) {
	i.m.mu.Lock()
	i.m.counters[i.name] += value
	i.m.mu.Unlock()
}

func (i memoryInstrument) Record(_ context.Context, value float64, _ ...Label) {
	i.m.mu.Lock()
	i.m.histograms[i.name] = append(i.m.histograms[i.name], value)
	i.m.mu.Unlock()
}

func (i memoryInstrument) Set(_ context.Context, value float64, _ ...Label) {
	i.m.mu.Lock()
	i.m.gauges[i.name] = value
	i.m.mu.Unlock()
}
