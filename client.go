package printdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/printdesk/internal/flight"
	"github.com/MrEthical07/printdesk/jwt"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Client sends authenticated requests and keeps the stored credential pair
// fresh. It is safe for concurrent use.
type Client struct {
	config     Config
	baseURL    *url.URL
	refreshURL *url.URL

	http    *http.Client
	creds   *CredentialStore
	refresh flight.Group

	log       *zap.Logger
	tracer    trace.Tracer
	metrics   *Metrics
	events    *eventDispatcher
	onExpired func(SessionEvent)
	now       func() time.Time

	expired atomic.Bool
	closed  atomic.Bool
}

// Do sends req with the stored access token. 2xx and 3xx responses are
// returned verbatim; a first 401 runs the refresh cycle and replays req once.
// Any other status comes back as *APIError, and network failures are
// returned as-is.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if req == nil {
		return nil, errNilRequest
	}
	if ctx == nil {
		ctx = context.Background()
	}

	env := req.clone()
	if env.Header.Get(headerRequestID) == "" {
		env.Header.Set(headerRequestID, uuid.NewString())
	}

	ctx, span := c.tracer.Start(ctx, "printdesk.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", env.Method),
			attribute.String("printdesk.path", env.Path),
			attribute.String("printdesk.request_id", env.Header.Get(headerRequestID)),
		),
	)
	defer span.End()

	resp, err := c.do(ctx, env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return resp, nil
}

func (c *Client) do(ctx context.Context, env *Request) (*Response, error) {
	if c.config.Refresh.ProactiveSkew > 0 {
		if resp, handled, err := c.proactive(ctx, env); handled {
			return resp, err
		}
	}

	resp, err := c.send(ctx, env, "")
	if err != nil {
		return nil, err
	}
	return c.classify(ctx, env, resp)
}

// send performs one attempt. An empty token means "use whatever is stored".
func (c *Client) send(ctx context.Context, env *Request, token string) (*Response, error) {
	u, err := resolveURL(c.baseURL, env.Path, env.Query)
	if err != nil {
		return nil, err
	}

	if token == "" {
		token, err = c.creds.AccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("read access token: %w", err)
		}
	}

	var body io.Reader
	if env.Body != nil {
		body = bytes.NewReader(env.Body)
	}
	hr, err := http.NewRequestWithContext(ctx, env.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	for k, vs := range env.Header {
		hr.Header[k] = append([]string(nil), vs...)
	}
	if token != "" {
		hr.Header.Set(headerAuthorization, bearer(token))
	}
	if hr.Header.Get(headerUserAgent) == "" && c.config.HTTP.UserAgent != "" {
		hr.Header.Set(headerUserAgent, c.config.HTTP.UserAgent)
	}
	env.sentToken = token

	start := c.now()
	res, err := c.http.Do(hr)
	c.metrics.Inc(MetricRequests)
	if err != nil {
		c.metrics.Inc(MetricNetworkErrors)
		return nil, err
	}
	defer res.Body.Close()

	limit := c.config.HTTP.MaxResponseBytes
	data, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		c.metrics.Inc(MetricNetworkErrors)
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s %s exceeds %d bytes", ErrResponseTooLarge, env.Method, env.Path, limit)
	}
	c.metrics.Observe(MetricRequestLatency, c.now().Sub(start))

	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       data,
	}, nil
}

func (c *Client) classify(ctx context.Context, env *Request, resp *Response) (*Response, error) {
	if isSuccess(resp.StatusCode) {
		return resp, nil
	}

	apiErr := newAPIError(resp.StatusCode, resp.Header, resp.Body)
	if apiErr.IsUnauthorized() {
		if !env.retried {
			return c.unauthorized(ctx, env, apiErr)
		}
		c.metrics.Inc(MetricReplayRejected)
		c.logger(ctx).Debug("replayed request rejected",
			zap.String("method", env.Method),
			zap.String("path", env.Path),
		)
	}
	c.metrics.Inc(MetricAPIErrors)
	return nil, apiErr
}

// GetJSON sends a GET and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	req := NewRequest(http.MethodGet, path, nil)
	req.Query = query
	return c.doJSON(ctx, req, out)
}

// PostJSON encodes in as the body of a POST and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) PutJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPut, path, in, out)
}

func (c *Client) PatchJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPatch, path, in, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.doJSON(ctx, NewRequest(http.MethodDelete, path, nil), nil)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req := NewRequest(method, path, body)
	if body != nil {
		req.Header.Set(headerContentType, contentTypeJSON)
	}
	return c.doJSON(ctx, req, out)
}

func (c *Client) doJSON(ctx context.Context, req *Request, out any) error {
	req.Header.Set(headerAccept, contentTypeJSON)
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.DecodeJSON(out)
}

// SetTokens stores a freshly issued pair, as a login flow does, and clears
// the expired state reported by SessionExpired.
func (c *Client) SetTokens(ctx context.Context, t Tokens) error {
	if err := c.creds.SetTokens(ctx, t); err != nil {
		return err
	}
	c.expired.Store(false)
	c.emit(ctx, SessionEvent{
		Type:    EventSessionLogin,
		Subject: subjectOf(t.Access),
	})
	return nil
}

// Logout clears both tokens. No expired signal is emitted.
func (c *Client) Logout(ctx context.Context) error {
	access, err := c.creds.AccessToken(ctx)
	if err != nil {
		// The event loses its subject; clearing still goes ahead.
		c.logger(ctx).Debug("read access token before logout", zap.Error(err))
	}
	if err := c.creds.Clear(ctx); err != nil {
		return err
	}
	c.emit(ctx, SessionEvent{
		Type:    EventSessionLogout,
		Subject: subjectOf(access),
	})
	return nil
}

// Credentials exposes the credential store shared with other components,
// such as the realtime channel.
func (c *Client) Credentials() *CredentialStore {
	return c.creds
}

// AccessToken returns the stored access token.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.creds.AccessToken(ctx)
}

// SessionExpired reports whether the last refresh cycle ended the session
// and no new tokens were stored since.
func (c *Client) SessionExpired() bool {
	return c.expired.Load()
}

// RefreshInFlight reports whether a refresh exchange is outstanding.
func (c *Client) RefreshInFlight() bool {
	return c.refresh.InFlight()
}

// RefreshWaiting reports how many requests are queued on the outstanding exchange.
func (c *Client) RefreshWaiting() int {
	return c.refresh.Waiting()
}

func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// EventsDropped reports session events dropped because the buffer was full.
func (c *Client) EventsDropped() uint64 {
	return c.events.Dropped()
}

// Close flushes pending events and releases idle connections. Requests made
// afterwards fail with ErrClientClosed.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.events.Close()
	c.http.CloseIdleConnections()
}

func (c *Client) emit(ctx context.Context, ev SessionEvent) {
	if c.events == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.Timestamp = c.now()
	c.events.Emit(context.WithoutCancel(ctx), ev)
}

func subjectOf(access string) string {
	if access == "" {
		return ""
	}
	claims, err := jwt.Inspect(access)
	if err != nil {
		return ""
	}
	return claims.Principal()
}
