package printdesk

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/printdesk/internal/flight"
	"github.com/MrEthical07/printdesk/internal/obs"
	"github.com/MrEthical07/printdesk/jwt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// unauthorized handles a first 401 for env. It either replays with a token
// someone else already refreshed, or joins the refresh cycle.
func (c *Client) unauthorized(ctx context.Context, env *Request, apiErr *APIError) (*Response, error) {
	c.metrics.Inc(MetricUnauthorized)
	env.retried = true

	current, err := c.creds.AccessToken(ctx)
	if err == nil && current != "" && current != env.sentToken {
		c.metrics.Inc(MetricStaleReplays)
		return c.replay(ctx, env, current)
	}

	return c.coordinate(ctx, env, apiErr)
}

// proactive routes env into the refresh cycle before sending when the stored
// access token is already past its exp claim.
func (c *Client) proactive(ctx context.Context, env *Request) (*Response, bool, error) {
	token, err := c.creds.AccessToken(ctx)
	if err != nil || token == "" {
		return nil, false, nil
	}
	claims, err := jwt.Inspect(token)
	if err != nil || !claims.Expired(c.now(), c.config.Refresh.ProactiveSkew) {
		return nil, false, nil
	}

	c.metrics.Inc(MetricProactiveRefresh)
	env.retried = true
	env.sentToken = token
	resp, err := c.coordinate(ctx, env, nil)
	return resp, true, err
}

// coordinate either leads the exchange or waits for the one in flight, then
// replays env with the resulting token.
func (c *Client) coordinate(ctx context.Context, env *Request, apiErr *APIError) (*Response, error) {
	leader, wait := c.refresh.Acquire()
	if leader {
		// A refresh may have finished between our 401 and Acquire.
		if current, err := c.creds.AccessToken(ctx); err == nil && current != "" && current != env.sentToken {
			c.refresh.Resolve(current)
			c.metrics.Inc(MetricStaleReplays)
			return c.replay(ctx, env, current)
		}
		token, err := c.runRefresh(ctx)
		if err != nil {
			return nil, withUnauthorized(err, apiErr)
		}
		return c.replay(ctx, env, token)
	}

	c.metrics.Inc(MetricRefreshJoined)
	out, err := flight.Wait(ctx, wait, c.config.Refresh.WaitTimeout)
	if err != nil {
		if errors.Is(err, flight.ErrWaitTimeout) {
			c.metrics.Inc(MetricRefreshWaitTimeout)
			return nil, fmt.Errorf("%w after %s", ErrRefreshWaitTimeout, c.config.Refresh.WaitTimeout)
		}
		return nil, err
	}
	if out.Err != nil {
		return nil, withUnauthorized(out.Err, apiErr)
	}
	return c.replay(ctx, env, out.Token)
}

func (c *Client) replay(ctx context.Context, env *Request, token string) (*Response, error) {
	c.metrics.Inc(MetricReplays)
	resp, err := c.send(ctx, env, token)
	if err != nil {
		return nil, err
	}
	return c.classify(ctx, env, resp)
}

// runRefresh is executed by the leader only. It always ends the attempt with
// Resolve or Fail, so queued requests are released whatever happens here.
func (c *Client) runRefresh(ctx context.Context) (string, error) {
	// The exchange must outlive the caller that happened to trigger it.
	xctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Refresh.Timeout)
	defer cancel()

	xctx, span := c.tracer.Start(xctx, "printdesk.refresh")
	defer span.End()
	log := c.logger(xctx)

	c.metrics.Inc(MetricRefreshStarted)
	start := c.now()

	tokens, err := c.creds.Tokens(xctx)
	if err != nil {
		err = fmt.Errorf("read credentials: %w", err)
		c.refresh.Fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("refresh aborted", zap.Error(err))
		return "", err
	}

	var cause error
	var access, rotated string
	if tokens.Refresh == "" {
		cause = ErrNoRefreshToken
	} else {
		access, rotated, cause = c.exchange(xctx, tokens.Refresh)
	}
	c.metrics.Observe(MetricRefreshLatency, c.now().Sub(start))

	if cause != nil {
		return "", c.expire(xctx, tokens, cause, span)
	}

	if err := c.creds.SetAccessToken(xctx, access, rotated); err != nil {
		log.Warn("refreshed token not persisted", zap.Error(err))
	}
	c.expired.Store(false)
	released := c.refresh.Resolve(access)

	c.metrics.Inc(MetricRefreshSuccess)
	span.SetAttributes(
		attribute.Int("printdesk.refresh.released", released),
		attribute.Bool("printdesk.refresh.rotated", rotated != ""),
	)
	log.Info("access token refreshed",
		zap.Int("released", released),
		zap.Bool("rotated", rotated != ""),
		zap.Duration("took", c.now().Sub(start)),
	)
	c.emit(xctx, SessionEvent{
		Type:    EventSessionRefreshed,
		Subject: subjectOf(access),
	})
	return access, nil
}

// expire is the terminal failure path: clear the store, fail every waiter,
// and signal the application once per stored session that ended.
func (c *Client) expire(ctx context.Context, tokens Tokens, cause error, span trace.Span) error {
	log := c.logger(ctx)
	if err := c.creds.Clear(ctx); err != nil {
		log.Error("clear credentials", zap.Error(err))
	}

	sessionErr := &SessionExpiredError{
		LoginURL: c.config.Session.LoginURL,
		Cause:    cause,
	}
	released := c.refresh.Fail(sessionErr)
	c.metrics.Inc(MetricRefreshFailure)
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	c.expired.Store(true)
	// Nothing was stored: the session already ended and was signalled then.
	if tokens.Access == "" && tokens.Refresh == "" {
		log.Debug("refresh failed without credentials", zap.Error(cause), zap.Int("released", released))
		return sessionErr
	}

	c.metrics.Inc(MetricSessionExpired)
	log.Warn("session expired",
		zap.Error(cause),
		zap.Int("released", released),
		zap.String("login_url", c.config.Session.LoginURL),
	)
	ev := SessionEvent{
		Type:     EventSessionExpired,
		Subject:  subjectOf(tokens.Access),
		Reason:   expiryReason(cause),
		LoginURL: c.config.Session.LoginURL,
	}
	c.emit(ctx, ev)
	if c.onExpired != nil {
		ev.Timestamp = c.now()
		c.onExpired(ev)
	}
	return sessionErr
}

// withUnauthorized attaches the caller's own 401 to a shared session error.
func withUnauthorized(err error, apiErr *APIError) error {
	var se *SessionExpiredError
	if apiErr == nil || !errors.As(err, &se) {
		return err
	}
	cp := *se
	cp.Unauthorized = apiErr
	return &cp
}

func expiryReason(cause error) string {
	switch {
	case errors.Is(cause, ErrNoRefreshToken):
		return "no_refresh_token"
	case errors.Is(cause, ErrRefreshRejected):
		return "refresh_rejected"
	case errors.Is(cause, ErrRefreshMalformed):
		return "refresh_malformed"
	default:
		return "refresh_unreachable"
	}
}

func (c *Client) logger(ctx context.Context) *zap.Logger {
	return obs.WithTrace(ctx, c.log)
}
