package printdesk

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func newBaseTransport(cfg HTTPConfig) *http.Transport {
	dialTimeout := cfg.Timeout
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// newHTTPClient builds the client every attempt and the refresh exchange go
// through. rt overrides the tuned default transport.
func newHTTPClient(cfg Config, rt http.RoundTripper) *http.Client {
	if rt == nil {
		rt = newBaseTransport(cfg.HTTP)
	}
	if cfg.Tracing.Enabled {
		rt = otelhttp.NewTransport(rt)
	}

	client := &http.Client{Timeout: cfg.HTTP.Timeout, Transport: rt}
	if !cfg.HTTP.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}
