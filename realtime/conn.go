package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrHandshakeUnauthorized is returned when the server rejects the upgrade with 401 or 403.
	ErrHandshakeUnauthorized = errors.New("realtime handshake unauthorized")
	// ErrNoToken is returned when the credential store holds no access token.
	ErrNoToken = errors.New("realtime: no access token")
	// ErrClosed is returned by Send after Close or after the read loop ended.
	ErrClosed = errors.New("realtime connection closed")
)

// TokenSource yields the current access token. *printdesk.Client satisfies it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Config describes one realtime endpoint.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	Buffer           int
	Logger           *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	if c.Buffer <= 0 {
		c.Buffer = 32
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Message is one notification or chat frame.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Conn is an open channel. Messages is closed when the connection ends.
type Conn struct {
	ws       *websocket.Conn
	cfg      Config
	log      *zap.Logger
	messages chan Message
	done     chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial opens the channel with the token currently held by tokens.
func Dial(ctx context.Context, cfg Config, tokens TokenSource) (*Conn, error) {
	cfg = cfg.withDefaults()
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("realtime: invalid url %q", cfg.URL)
	}
	if tokens == nil {
		return nil, ErrNoToken
	}
	token, err := tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("realtime: read token: %w", err)
	}
	if token == "" {
		return nil, ErrNoToken
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", ErrHandshakeUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	c := &Conn{
		ws:       ws,
		cfg:      cfg,
		log:      cfg.Logger.Named("realtime"),
		messages: make(chan Message, cfg.Buffer),
		done:     make(chan struct{}),
	}
	ws.SetReadLimit(cfg.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(2 * cfg.PingInterval))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(2 * cfg.PingInterval))
	})

	go c.readLoop()
	go c.pingLoop()
	c.log.Debug("realtime connected", zap.String("host", u.Host))
	return c, nil
}

func (c *Conn) Messages() <-chan Message {
	return c.messages
}

// Err reports why the connection ended, or nil while it is open or after Close.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Send writes v as one JSON text frame.
func (c *Conn) Send(ctx context.Context, v any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime: encode: %w", err)
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.TextMessage, body)
}

// Close sends a normal closure frame and releases the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.WriteTimeout))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	defer close(c.messages)
	for {
		op, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.setErr(err)
					c.log.Warn("realtime read failed", zap.Error(err))
				}
				_ = c.Close()
			}
			return
		}
		if op != websocket.TextMessage && op != websocket.BinaryMessage {
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			c.log.Debug("realtime frame skipped", zap.Int("bytes", len(data)))
			continue
		}
		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.log.Debug("realtime ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}
