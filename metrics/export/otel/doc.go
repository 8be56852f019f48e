// Package otel publishes printdesk client metrics through an OpenTelemetry Meter.
//
// Client counters are grouped onto a handful of instruments and told apart by
// attribute: printdesk.client.errors{kind}, printdesk.client.replays{token},
// printdesk.refresh.activity{stage}. Latency histograms are exposed as
// cumulative gauges keyed by an le attribute, one gauge per histogram.
// A single callback reads [printdesk.Client.MetricsSnapshot] per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate client state.
package otel
