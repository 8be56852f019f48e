package printdesk

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one client counter or histogram.
type MetricID uint16

const (
	// MetricRequests counts dispatched requests, replays included.
	MetricRequests MetricID = iota
	// MetricNetworkErrors counts requests that got no HTTP response.
	MetricNetworkErrors
	// MetricAPIErrors counts non-success responses surfaced to callers.
	MetricAPIErrors
	// MetricUnauthorized counts 401 responses seen before any replay.
	MetricUnauthorized
	// MetricRefreshStarted counts refresh exchanges led by this client.
	MetricRefreshStarted
	// MetricRefreshSuccess counts exchanges that returned a new access token.
	MetricRefreshSuccess
	// MetricRefreshFailure counts exchanges that ended the session.
	MetricRefreshFailure
	// MetricRefreshJoined counts requests queued behind an in-flight exchange.
	MetricRefreshJoined
	// MetricReplays counts requests re-sent with a refreshed token.
	MetricReplays
	// MetricReplayRejected counts replays that were answered with 401 again.
	MetricReplayRejected
	// MetricStaleReplays counts replays that reused a token refreshed by someone else.
	MetricStaleReplays
	// MetricSessionExpired counts forced logouts.
	MetricSessionExpired
	// MetricRefreshWaitTimeout counts queued requests that gave up waiting.
	MetricRefreshWaitTimeout
	// MetricProactiveRefresh counts refreshes started before sending an expired token.
	MetricProactiveRefresh
	// MetricRefreshLatency is the exchange round-trip histogram.
	MetricRefreshLatency
	// MetricRequestLatency is the per-attempt request histogram.
	MetricRequestLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func isHistogram(id MetricID) bool {
	return id == MetricRefreshLatency || id == MetricRequestLatency
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram for id. Non-histogram ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || !isHistogram(id) {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 2),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isHistogram(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []MetricID{MetricRefreshLatency, MetricRequestLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
