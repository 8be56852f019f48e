// Package prometheus exposes printdesk client metrics as a Prometheus collector.
//
// [NewCollector] reads [printdesk.Client.MetricsSnapshot] on every scrape and
// publishes printdesk_*_total counters plus the refresh and request latency
// histograms. [Handler] mounts the collector on a private registry.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate client state.
package prometheus
