package printdesk

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config holds every tunable of a Client.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	BaseURL     string            `mapstructure:"base_url"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Refresh     RefreshConfig     `mapstructure:"refresh"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Session     SessionConfig     `mapstructure:"session"`
	Events      EventsConfig      `mapstructure:"events"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Store       StoreConfig       `mapstructure:"store"`
	Log         LogConfig         `mapstructure:"log"`
}

// HTTPConfig tunes the base transport.
type HTTPConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	FollowRedirects bool          `mapstructure:"follow_redirects"`
	UserAgent       string        `mapstructure:"user_agent"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	// MaxResponseBytes caps a buffered response body. Larger bodies fail
	// with ErrResponseTooLarge instead of being cut short.
	MaxResponseBytes int64 `mapstructure:"max_response_bytes"`
}

// RefreshConfig controls the refresh exchange and how long queued requests
// wait for it.
type RefreshConfig struct {
	Path string `mapstructure:"path"`
	// Timeout bounds the exchange call itself.
	Timeout time.Duration `mapstructure:"timeout"`
	// WaitTimeout bounds how long a queued request waits for the in-flight
	// exchange. Zero waits until the exchange resolves or ctx is done.
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
	// ProactiveSkew > 0 refreshes before sending when the stored access token
	// expires within the skew.
	ProactiveSkew time.Duration `mapstructure:"proactive_skew"`
}

// CredentialsConfig names the two store keys.
type CredentialsConfig struct {
	AccessKey  string `mapstructure:"access_key"`
	RefreshKey string `mapstructure:"refresh_key"`
}

// SessionConfig describes where a user is sent after a forced logout.
type SessionConfig struct {
	LoginURL string `mapstructure:"login_url"`
}

// EventsConfig controls async session event delivery.
type EventsConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

// TracingConfig toggles OpenTelemetry spans and transport instrumentation.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// StoreConfig selects the credential store backend used by the CLI tools.
type StoreConfig struct {
	Driver      string        `mapstructure:"driver"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`
	FilePath    string        `mapstructure:"file_path"`
	Passphrase  string        `mapstructure:"passphrase"`
}

// LogConfig configures the zap logger built by the CLI tools.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Store drivers.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreFile   = "file"
)

const (
	defaultRefreshPath = "/api/token/refresh/"
	defaultAccessKey   = "access_token"
	defaultRefreshKey  = "refresh_token"
)

func defaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Timeout:          30 * time.Second,
			FollowRedirects:  true,
			UserAgent:        "printdesk-client/1",
			MaxIdleConns:     100,
			MaxResponseBytes: 32 << 20,
		},
		Refresh: RefreshConfig{
			Path:        defaultRefreshPath,
			Timeout:     15 * time.Second,
			WaitTimeout: 30 * time.Second,
		},
		Credentials: CredentialsConfig{
			AccessKey:  defaultAccessKey,
			RefreshKey: defaultRefreshKey,
		},
		Session: SessionConfig{
			LoginURL: "/login",
		},
		Events: EventsConfig{
			Enabled:    true,
			BufferSize: 64,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			ServiceName: "printdesk",
		},
		Store: StoreConfig{
			Driver:      StoreMemory,
			RedisPrefix: "pd",
			FilePath:    "~/.printdesk/credentials.json",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultConfig returns the baseline configuration. BaseURL must still be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for values Build cannot work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("BaseURL required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("BaseURL must be an absolute http(s) URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("BaseURL scheme must be http or https")
	}

	if c.HTTP.Timeout < 0 {
		return errors.New("HTTP Timeout must be >= 0")
	}
	if c.HTTP.MaxIdleConns < 0 {
		return errors.New("HTTP MaxIdleConns must be >= 0")
	}
	if c.HTTP.MaxResponseBytes <= 0 {
		return errors.New("HTTP MaxResponseBytes must be > 0")
	}

	if !strings.HasPrefix(c.Refresh.Path, "/") && !strings.Contains(c.Refresh.Path, "://") {
		return errors.New("Refresh Path must be absolute")
	}
	if c.Refresh.Timeout <= 0 {
		return errors.New("Refresh Timeout must be > 0")
	}
	if c.Refresh.WaitTimeout < 0 {
		return errors.New("Refresh WaitTimeout must be >= 0")
	}
	if c.Refresh.ProactiveSkew < 0 {
		return errors.New("Refresh ProactiveSkew must be >= 0")
	}

	if c.Credentials.AccessKey == "" || c.Credentials.RefreshKey == "" {
		return errors.New("Credentials keys must be non-empty")
	}
	if c.Credentials.AccessKey == c.Credentials.RefreshKey {
		return errors.New("Credentials AccessKey and RefreshKey must differ")
	}

	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when enabled")
	}

	switch c.Store.Driver {
	case "", StoreMemory, StoreFile:
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("Store RedisAddr required for redis driver")
		}
	default:
		return errors.New("Store Driver must be memory, redis, or file")
	}
	if c.Store.RedisTTL < 0 {
		return errors.New("Store RedisTTL must be >= 0")
	}

	return nil
}
