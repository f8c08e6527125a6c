package telemetry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/itsneelabh/storefront/core"
)

// MetricInstruments holds cached metric instruments for efficient recording
type MetricInstruments struct {
	meter      metric.Meter
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	mu         sync.RWMutex
}

// NewMetricInstruments creates a new metrics instrument cache on the global
// meter provider
func NewMetricInstruments(meterName string) *MetricInstruments {
	return NewMetricInstrumentsWithMeter(otel.Meter(meterName))
}

// NewMetricInstrumentsWithMeter creates an instrument cache on a specific meter
func NewMetricInstrumentsWithMeter(meter metric.Meter) *MetricInstruments {
	return &MetricInstruments{
		meter:      meter,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// RecordCounter increments a counter metric
func (m *MetricInstruments) RecordCounter(ctx context.Context, name string, value int64, opts ...metric.AddOption) error {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		// Double-check after acquiring write lock
		if counter, exists = m.counters[name]; !exists {
			var err error
			counter, err = m.meter.Int64Counter(name)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to create counter %s: %w", name, err)
			}
			m.counters[name] = counter
		}
		m.mu.Unlock()
	}

	counter.Add(ctx, value, opts...)
	return nil
}

// RecordHistogram records a value distribution (like latencies)
func (m *MetricInstruments) RecordHistogram(ctx context.Context, name string, value float64, opts ...metric.RecordOption) error {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if histogram, exists = m.histograms[name]; !exists {
			var err error
			histogram, err = m.meter.Float64Histogram(name)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to create histogram %s: %w", name, err)
			}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.Record(ctx, value, opts...)
	return nil
}

// Recorder adapts MetricInstruments to core.Metrics
type Recorder struct {
	instruments *MetricInstruments
	logger      core.Logger
}

// NewRecorder wraps instruments as a core.Metrics
func NewRecorder(instruments *MetricInstruments, logger core.Logger) *Recorder {
	return &Recorder{instruments: instruments, logger: core.LoggerOrNoOp(logger)}
}

func (r *Recorder) Counter(ctx context.Context, name string, value int64, labels map[string]string) {
	if err := r.instruments.RecordCounter(ctx, name, value, metric.WithAttributes(toAttributes(labels)...)); err != nil {
		r.logger.Debug("Metric not recorded", map[string]interface{}{"metric": name, "error": err})
	}
}

func (r *Recorder) Histogram(ctx context.Context, name string, value float64, labels map[string]string) {
	if err := r.instruments.RecordHistogram(ctx, name, value, metric.WithAttributes(toAttributes(labels)...)); err != nil {
		r.logger.Debug("Metric not recorded", map[string]interface{}{"metric": name, "error": err})
	}
}

func toAttributes(labels map[string]string) []attribute.KeyValue {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(labels))
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, labels[k]))
	}
	return attrs
}
