package printdesk

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/printdesk/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/MrEthical07/printdesk"

// Builder assembles a Client. A Builder can be used once.
type Builder struct {
	config Config

	kv        store.KV
	transport http.RoundTripper
	log       *zap.Logger
	sink      EventSink
	tracer    trace.TracerProvider
	onExpired func(SessionEvent)
	now       func() time.Time

	built bool
}

// New starts a Builder from DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.BaseURL = baseURL
	return b
}

// WithStore sets the substrate credentials are kept in. Defaults to an
// in-memory store.
func (b *Builder) WithStore(kv store.KV) *Builder {
	b.kv = kv
	return b
}

// WithTransport replaces the tuned default transport, e.g. with a test
// server's transport.
func (b *Builder) WithTransport(rt http.RoundTripper) *Builder {
	b.transport = rt
	return b
}

func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// WithEventSink receives session events in addition to the logger.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.sink = sink
	return b
}

func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracer = tp
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// OnSessionExpired registers fn to run once per forced logout, after the
// store is cleared. fn runs on the goroutine that led the failed refresh and
// should only schedule the navigation to ev.LoginURL.
func (b *Builder) OnSessionExpired(fn func(ev SessionEvent)) *Builder {
	b.onExpired = fn
	return b
}

func (b *Builder) withClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready Client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL, err := resolveURL(nil, cfg.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	refreshURL, err := resolveURL(baseURL, cfg.Refresh.Path, nil)
	if err != nil {
		return nil, err
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}
	tp := b.tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	c := &Client{
		config:     cfg,
		baseURL:    baseURL,
		refreshURL: refreshURL,
		http:       newHTTPClient(cfg, b.transport),
		creds:      NewCredentialStore(b.kv, cfg.Credentials),
		log:        log.Named("printdesk"),
		tracer:     tp.Tracer(tracerName),
		metrics:    NewMetrics(cfg.Metrics),
		events:     newEventDispatcher(cfg.Events, log, NewLoggerSink(log), b.sink),
		onExpired:  b.onExpired,
		now:        now,
	}

	b.built = true
	return c, nil
}
