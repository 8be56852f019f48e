package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/printdesk"
	"github.com/MrEthical07/printdesk/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() printdesk.MetricsSnapshot
	EventsDropped() uint64
}

const (
	instRequests = "printdesk.client.requests"
	instErrors   = "printdesk.client.errors"
	instReplays  = "printdesk.client.replays"
	instRefresh  = "printdesk.refresh.activity"
	instExpired  = "printdesk.session.expired"
	instDropped  = "printdesk.events.dropped"
)

type instrumentDef struct {
	name string
	unit string
	desc string
}

var counterInstruments = []instrumentDef{
	{instRequests, "{request}", "Requests dispatched, replays included."},
	{instErrors, "{request}", "Failed requests by kind."},
	{instReplays, "{request}", "Requests replayed after a 401, by where the token came from."},
	{instRefresh, "{event}", "Refresh cycle activity by stage."},
	{instExpired, "{session}", "Sessions forced back to login."},
}

// series places one client counter on an instrument, optionally split by a
// single attribute.
type series struct {
	instrument string
	attr       attribute.KeyValue
}

var counterSeries = map[printdesk.MetricID]series{
	printdesk.MetricRequests:           {instrument: instRequests},
	printdesk.MetricNetworkErrors:      {instErrors, attribute.String("kind", "network")},
	printdesk.MetricAPIErrors:          {instErrors, attribute.String("kind", "api")},
	printdesk.MetricUnauthorized:       {instErrors, attribute.String("kind", "unauthorized")},
	printdesk.MetricReplayRejected:     {instErrors, attribute.String("kind", "replay_rejected")},
	printdesk.MetricReplays:            {instReplays, attribute.String("token", "refreshed")},
	printdesk.MetricStaleReplays:       {instReplays, attribute.String("token", "stale")},
	printdesk.MetricRefreshStarted:     {instRefresh, attribute.String("stage", "started")},
	printdesk.MetricRefreshSuccess:     {instRefresh, attribute.String("stage", "succeeded")},
	printdesk.MetricRefreshFailure:     {instRefresh, attribute.String("stage", "failed")},
	printdesk.MetricRefreshJoined:      {instRefresh, attribute.String("stage", "joined")},
	printdesk.MetricRefreshWaitTimeout: {instRefresh, attribute.String("stage", "wait_timeout")},
	printdesk.MetricProactiveRefresh:   {instRefresh, attribute.String("stage", "proactive")},
	printdesk.MetricSessionExpired:     {instrument: instExpired},
}

var latencyInstruments = map[printdesk.MetricID]instrumentDef{
	printdesk.MetricRefreshLatency: {"printdesk.refresh.duration.buckets", "{sample}", "Cumulative refresh exchange latency samples per upper bound."},
	printdesk.MetricRequestLatency: {"printdesk.request.duration.buckets", "{sample}", "Cumulative per-attempt request latency samples per upper bound."},
}

type observedSeries struct {
	id         printdesk.MetricID
	instrument metric.Int64ObservableCounter
	opts       []metric.ObserveOption
}

// Exporter observes a client's snapshot on every collection cycle and keeps
// its instruments registered until Close.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	series       []observedSeries
	latency      map[printdesk.MetricID]metric.Int64ObservableGauge
	bounds       [8]metric.ObserveOption
	dropped      metric.Int64ObservableCounter
}

// NewExporter registers client's metrics on meter.
func NewExporter(meter metric.Meter, client *printdesk.Client) (*Exporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, client)
}

func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:  source,
		latency: make(map[printdesk.MetricID]metric.Int64ObservableGauge, len(latencyInstruments)),
	}
	var observables []metric.Observable

	counters := make(map[string]metric.Int64ObservableCounter, len(counterInstruments))
	for _, def := range counterInstruments {
		ins, err := meter.Int64ObservableCounter(def.name, metric.WithUnit(def.unit), metric.WithDescription(def.desc))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.name, err)
		}
		counters[def.name] = ins
		observables = append(observables, ins)
	}
	for id, s := range counterSeries {
		ob := observedSeries{id: id, instrument: counters[s.instrument]}
		if s.attr.Valid() {
			ob.opts = []metric.ObserveOption{metric.WithAttributes(s.attr)}
		}
		e.series = append(e.series, ob)
	}

	for id, def := range latencyInstruments {
		ins, err := meter.Int64ObservableGauge(def.name, metric.WithUnit(def.unit), metric.WithDescription(def.desc))
		if err != nil {
			return nil, fmt.Errorf("create gauge %s: %w", def.name, err)
		}
		e.latency[id] = ins
		observables = append(observables, ins)
	}
	for i := range e.bounds {
		le := "+Inf"
		if i < len(internaldefs.HistogramUpperBounds) {
			le = strconv.FormatFloat(internaldefs.HistogramUpperBounds[i], 'f', -1, 64)
		}
		e.bounds[i] = metric.WithAttributes(attribute.String("le", le))
	}

	dropped, err := meter.Int64ObservableCounter(instDropped,
		metric.WithUnit("{event}"),
		metric.WithDescription(internaldefs.EventsDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", instDropped, err)
	}
	e.dropped = dropped
	observables = append(observables, dropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, s := range e.series {
		o.ObserveInt64(s.instrument, int64(snap.Counters[s.id]), s.opts...)
	}
	for id, g := range e.latency {
		raw, ok := snap.Histograms[id]
		if !ok {
			// Latency histograms are off.
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, n := range cumulative {
			o.ObserveInt64(g, int64(n), e.bounds[i])
		}
	}
	o.ObserveInt64(e.dropped, int64(e.source.EventsDropped()))
	return nil
}

func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
