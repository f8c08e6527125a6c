package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRecorder_CounterAndHistogram(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	rec := NewRecorder(NewMetricInstrumentsWithMeter(mp.Meter("test")), nil)
	ctx := context.Background()

	rec.Counter(ctx, "storefront.fetch.requests", 1, map[string]string{"method": "GET", "status": "200"})
	rec.Counter(ctx, "storefront.fetch.requests", 2, map[string]string{"method": "GET", "status": "200"})
	rec.Histogram(ctx, "storefront.fetch.duration_ms", 42, map[string]string{"method": "GET"})

	metrics := collect(t, reader)

	counter, ok := metrics["storefront.fetch.requests"]
	require.True(t, ok)
	sum, ok := counter.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
	status, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("status"))
	assert.Equal(t, "200", status.AsString())

	hist, ok := metrics["storefront.fetch.duration_ms"]
	require.True(t, ok)
	h, ok := hist.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, h.DataPoints, 1)
	assert.Equal(t, uint64(1), h.DataPoints[0].Count)
}

func TestMetricInstruments_CachesInstruments(t *testing.T) {
	mp := sdkmetric.NewMeterProvider()
	m := NewMetricInstrumentsWithMeter(mp.Meter("test"))
	ctx := context.Background()

	require.NoError(t, m.RecordCounter(ctx, "a", 1))
	require.NoError(t, m.RecordCounter(ctx, "a", 1))
	require.NoError(t, m.RecordHistogram(ctx, "b", 1.5))

	assert.Len(t, m.counters, 1)
	assert.Len(t, m.histograms, 1)
}

func TestToAttributes_Sorted(t *testing.T) {
	attrs := toAttributes(map[string]string{"z": "1", "a": "2"})
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("a"), attrs[0].Key)
	assert.Equal(t, attribute.Key("z"), attrs[1].Key)
}
