package printdesk

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PRINTDESK_BASE_URL or
// PRINTDESK_REFRESH_WAIT_TIMEOUT.
const EnvPrefix = "PRINTDESK"

// LoadConfig reads a YAML file (optional) and environment overrides on top of
// DefaultConfig. The result is validated.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	setDefaults(v, defaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("base_url", d.BaseURL)

	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.follow_redirects", d.HTTP.FollowRedirects)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)
	v.SetDefault("http.max_idle_conns", d.HTTP.MaxIdleConns)
	v.SetDefault("http.max_response_bytes", d.HTTP.MaxResponseBytes)

	v.SetDefault("refresh.path", d.Refresh.Path)
	v.SetDefault("refresh.timeout", d.Refresh.Timeout)
	v.SetDefault("refresh.wait_timeout", d.Refresh.WaitTimeout)
	v.SetDefault("refresh.proactive_skew", d.Refresh.ProactiveSkew)

	v.SetDefault("credentials.access_key", d.Credentials.AccessKey)
	v.SetDefault("credentials.refresh_key", d.Credentials.RefreshKey)

	v.SetDefault("session.login_url", d.Session.LoginURL)

	v.SetDefault("events.enabled", d.Events.Enabled)
	v.SetDefault("events.buffer_size", d.Events.BufferSize)
	v.SetDefault("events.drop_if_full", d.Events.DropIfFull)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.enable_latency_histograms", d.Metrics.EnableLatencyHistograms)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.redis_addr", d.Store.RedisAddr)
	v.SetDefault("store.redis_prefix", d.Store.RedisPrefix)
	v.SetDefault("store.redis_ttl", d.Store.RedisTTL)
	v.SetDefault("store.file_path", d.Store.FilePath)
	v.SetDefault("store.passphrase", d.Store.Passphrase)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
}
