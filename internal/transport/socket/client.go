// Package socket delivers server-pushed chat events over a websocket.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/peerchat/internal/store"
	intsync "github.com/matheus3301/peerchat/internal/sync"
	"github.com/matheus3301/peerchat/internal/transport/httpapi"
	"go.uber.org/zap"
)

const (
	pingPeriod = 25 * time.Second
	pongWait   = 60 * time.Second
	writeWait  = 10 * time.Second
)

// ErrUnauthorized is reported when the server rejects the handshake with 401.
// The client stops retrying.
var ErrUnauthorized = errors.New("socket: unauthorized")

// Frame is one push event on the wire.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Options configures a Client.
type Options struct {
	URL    string
	UserID string
	Token  string
	// MaxBackoff caps the delay between reconnect attempts.
	MaxBackoff       time.Duration
	HandshakeTimeout time.Duration
}

type handler struct {
	id string
	fn func(store.Message)
}

// Client is a reconnecting push source. Frames are dispatched from a single
// reader goroutine, so handlers observe events in arrival order.
type Client struct {
	url    string
	token  string
	maxBO  time.Duration
	dialer *websocket.Dialer
	logger *zap.Logger

	mu       sync.Mutex
	handlers map[string][]handler
	onState  func(connected bool)
	onGiveUp func(err error)
	conn     *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ intsync.PushSource = (*Client)(nil)

// New creates a push client. Nothing is dialed until Start.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse socket url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("socket url %q: unsupported scheme", opts.URL)
	}
	if opts.UserID != "" {
		q := u.Query()
		q.Set("userId", opts.UserID)
		u.RawQuery = q.Encode()
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	return &Client{
		url:      u.String(),
		token:    opts.Token,
		maxBO:    opts.MaxBackoff,
		dialer:   &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger:   logger,
		handlers: make(map[string][]handler),
	}, nil
}

// OnStateChange registers fn to be called when the connection comes up or
// goes down. It must be set before Start.
func (c *Client) OnStateChange(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// OnGiveUp registers fn to be called once the loop stops retrying for a
// reason other than Stop. It must be set before Start.
func (c *Client) OnGiveUp(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onGiveUp = fn
}

// Subscribe registers h for event. The returned func removes exactly this
// registration and is safe to call more than once.
func (c *Client) Subscribe(event string, h func(store.Message)) func() {
	id := uuid.NewString()
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], handler{id: id, fn: h})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			hs := c.handlers[event]
			for i, reg := range hs {
				if reg.id == id {
					c.handlers[event] = append(hs[:i:i], hs[i+1:]...)
					break
				}
			}
			if len(c.handlers[event]) == 0 {
				delete(c.handlers, event)
			}
		})
	}
}

// Handlers returns how many handlers are registered for event.
func (c *Client) Handlers(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[event])
}

// Start runs the connect/read loop in the background until Stop or ctx is
// done. Calling Start twice is a no-op.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

// Stop closes the connection and waits for the loop to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-done
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.giveUp(err)
			}
			return
		}
		c.setConn(conn)
		c.notify(true)

		err = c.readLoop(ctx, conn)

		c.setConn(nil)
		_ = conn.Close()
		c.notify(false)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("push connection lost", zap.Error(err))
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = c.maxBO
	bo.MaxElapsedTime = 0

	header := http.Header{}
	if c.token != "" {
		header.Set("token", c.token)
	}

	var conn *websocket.Conn
	op := func() error {
		cn, resp, err := c.dialer.DialContext(ctx, c.url, header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrUnauthorized, err))
			}
			return err
		}
		conn = cn
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("push dial failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		if ctx.Err() == nil {
			c.logger.Error("push dial gave up", zap.Error(err))
		}
		return nil, err
	}
	c.logger.Info("push connected", zap.String("url", c.url))
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-stopPing:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("closed by server")
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Warn("malformed push frame", zap.Error(err))
		return
	}

	c.mu.Lock()
	hs := append([]handler(nil), c.handlers[f.Event]...)
	c.mu.Unlock()
	if len(hs) == 0 {
		c.logger.Debug("push event without handler", zap.String("event", f.Event))
		return
	}

	msg, err := httpapi.DecodeMessage(f.Data)
	if err != nil {
		c.logger.Warn("malformed push payload", zap.String("event", f.Event), zap.Error(err))
		return
	}
	for _, h := range hs {
		h.fn(msg)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Client) notify(connected bool) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(connected)
	}
}

func (c *Client) giveUp(err error) {
	c.mu.Lock()
	fn := c.onGiveUp
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
