package internaldefs

import (
	"github.com/MrEthical07/printdesk"
)

// CounterDef maps a client counter to its exported name.
type CounterDef struct {
	ID   printdesk.MetricID
	Name string
	Help string
}

// HistogramDef maps a client latency histogram to its exported name.
type HistogramDef struct {
	ID   printdesk.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: printdesk.MetricRequests, Name: "printdesk_requests_total", Help: "Requests dispatched, replays included."},
	{ID: printdesk.MetricNetworkErrors, Name: "printdesk_network_errors_total", Help: "Requests that received no HTTP response."},
	{ID: printdesk.MetricAPIErrors, Name: "printdesk_api_errors_total", Help: "Non-success responses surfaced to callers."},
	{ID: printdesk.MetricUnauthorized, Name: "printdesk_unauthorized_total", Help: "First-attempt 401 responses."},
	{ID: printdesk.MetricRefreshStarted, Name: "printdesk_refresh_started_total", Help: "Refresh exchanges started."},
	{ID: printdesk.MetricRefreshSuccess, Name: "printdesk_refresh_success_total", Help: "Refresh exchanges that produced a new access token."},
	{ID: printdesk.MetricRefreshFailure, Name: "printdesk_refresh_failure_total", Help: "Refresh exchanges that ended the session."},
	{ID: printdesk.MetricRefreshJoined, Name: "printdesk_refresh_joined_total", Help: "Requests queued behind an in-flight refresh."},
	{ID: printdesk.MetricReplays, Name: "printdesk_replays_total", Help: "Requests replayed with a refreshed token."},
	{ID: printdesk.MetricReplayRejected, Name: "printdesk_replay_rejected_total", Help: "Replays answered with 401 again."},
	{ID: printdesk.MetricStaleReplays, Name: "printdesk_stale_replays_total", Help: "Replays that reused a token refreshed by another request."},
	{ID: printdesk.MetricSessionExpired, Name: "printdesk_session_expired_total", Help: "Sessions forced back to login."},
	{ID: printdesk.MetricRefreshWaitTimeout, Name: "printdesk_refresh_wait_timeout_total", Help: "Queued requests that gave up waiting for a refresh."},
	{ID: printdesk.MetricProactiveRefresh, Name: "printdesk_proactive_refresh_total", Help: "Refreshes started before sending an expired token."},
}

var HistogramDefs = []HistogramDef{
	{ID: printdesk.MetricRefreshLatency, Name: "printdesk_refresh_latency_seconds", Help: "Refresh exchange latency."},
	{ID: printdesk.MetricRequestLatency, Name: "printdesk_request_latency_seconds", Help: "Per-attempt request latency."},
}

const (
	EventsDroppedName = "printdesk_events_dropped_total"
	EventsDroppedHelp = "Session events dropped due to dispatcher backpressure."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// client bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
