package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrEthical07/printdesk"
	"github.com/MrEthical07/printdesk/metrics/export/internaldefs"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot printdesk.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() printdesk.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := printdesk.MetricsSnapshot{
		Counters:   make(map[printdesk.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[printdesk.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) EventsDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

// pointValue finds the data point of name carrying exactly attrs.
func pointValue(rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) (int64, bool) {
	want := attribute.NewSet(attrs...)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			var points []metricdata.DataPoint[int64]
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				points = data.DataPoints
			case metricdata.Gauge[int64]:
				points = data.DataPoints
			}
			for _, dp := range points {
				if dp.Attributes.Equals(&want) {
					return dp.Value, true
				}
			}
		}
	}
	return 0, false
}

func TestEveryCounterHasASeries(t *testing.T) {
	declared := map[string]bool{}
	for _, def := range counterInstruments {
		declared[def.name] = true
	}
	for _, def := range internaldefs.CounterDefs {
		s, ok := counterSeries[def.ID]
		require.True(t, ok, "%s has no series", def.Name)
		require.True(t, declared[s.instrument], "%s maps to undeclared %s", def.Name, s.instrument)
	}
	for _, def := range internaldefs.HistogramDefs {
		_, ok := latencyInstruments[def.ID]
		require.True(t, ok, "%s has no instrument", def.Name)
	}
}

func TestExporterSplitsCountersByAttribute(t *testing.T) {
	reader, provider := newReader(t)

	src := &fakeSource{
		snapshot: printdesk.MetricsSnapshot{
			Counters: map[printdesk.MetricID]uint64{
				printdesk.MetricRequests:       7,
				printdesk.MetricRefreshStarted: 2,
				printdesk.MetricRefreshSuccess: 1,
				printdesk.MetricRefreshFailure: 1,
				printdesk.MetricStaleReplays:   3,
				printdesk.MetricSessionExpired: 1,
			},
		},
		dropped: 4,
	}
	exp, err := NewExporterFromSource(provider.Meter("printdesk-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	rm := collect(t, reader)
	cases := []struct {
		name string
		attr []attribute.KeyValue
		want int64
	}{
		{instRequests, nil, 7},
		{instRefresh, []attribute.KeyValue{attribute.String("stage", "started")}, 2},
		{instRefresh, []attribute.KeyValue{attribute.String("stage", "succeeded")}, 1},
		{instRefresh, []attribute.KeyValue{attribute.String("stage", "failed")}, 1},
		{instRefresh, []attribute.KeyValue{attribute.String("stage", "joined")}, 0},
		{instReplays, []attribute.KeyValue{attribute.String("token", "stale")}, 3},
		{instErrors, []attribute.KeyValue{attribute.String("kind", "network")}, 0},
		{instExpired, nil, 1},
		{instDropped, nil, 4},
	}
	for _, tc := range cases {
		v, ok := pointValue(rm, tc.name, tc.attr...)
		require.True(t, ok, "%s %v missing", tc.name, tc.attr)
		require.Equal(t, tc.want, v, "%s %v", tc.name, tc.attr)
	}
}

func TestExporterLatencyBuckets(t *testing.T) {
	reader, provider := newReader(t)

	src := &fakeSource{
		snapshot: printdesk.MetricsSnapshot{
			Counters: map[printdesk.MetricID]uint64{},
			Histograms: map[printdesk.MetricID][]uint64{
				printdesk.MetricRefreshLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
	}
	exp, err := NewExporterFromSource(provider.Meter("printdesk-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	rm := collect(t, reader)
	name := latencyInstruments[printdesk.MetricRefreshLatency].name

	v, ok := pointValue(rm, name, attribute.String("le", "0.005"))
	require.True(t, ok)
	require.Equal(t, int64(1), v)

	v, ok = pointValue(rm, name, attribute.String("le", "0.1"))
	require.True(t, ok)
	require.Equal(t, int64(5), v)

	v, ok = pointValue(rm, name, attribute.String("le", "+Inf"))
	require.True(t, ok)
	require.Equal(t, int64(8), v)

	_, ok = pointValue(rm, latencyInstruments[printdesk.MetricRequestLatency].name, attribute.String("le", "+Inf"))
	require.False(t, ok, "absent histograms are not observed")
}

func TestExporterRejectsNilSource(t *testing.T) {
	_, provider := newReader(t)
	meter := provider.Meter("printdesk-test")

	_, err := NewExporterFromSource(meter, nil)
	require.ErrorIs(t, err, ErrNilSource)

	_, err = NewExporter(meter, nil)
	require.ErrorIs(t, err, ErrNilSource)

	_, err = NewExporterFromSource(nil, &fakeSource{})
	require.ErrorIs(t, err, ErrNilMeter)
}

func TestExporterReadsLiveClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := printdesk.New().WithBaseURL(srv.URL).Build()
	require.NoError(t, err)
	defer client.Close()

	reader, provider := newReader(t)
	exp, err := NewExporter(provider.Meter("printdesk-test"), client)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	_, err = client.Do(context.Background(), printdesk.NewRequest(http.MethodGet, "/ping", nil))
	require.NoError(t, err)

	v, ok := pointValue(collect(t, reader), instRequests)
	require.True(t, ok)
	require.Equal(t, int64(1), v)
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader(t)

	src := &fakeSource{
		snapshot: printdesk.MetricsSnapshot{
			Counters: map[printdesk.MetricID]uint64{
				printdesk.MetricRequests: 1,
			},
			Histograms: map[printdesk.MetricID][]uint64{
				printdesk.MetricRequestLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewExporterFromSource(provider.Meter("printdesk-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[printdesk.MetricRequests] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
