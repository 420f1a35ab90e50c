// Package socket maintains the client side of the relay connection: a
// single read stream feeding envelope handlers, serialized writes, and an
// unlimited-retry reconnect loop. The relay keeps no backlog, so a
// reconnect means everything since the drop is gone; subscribers hook
// OnReconnect to trigger a full state refresh.
package socket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mini-live-chat/go-core/internal/command"
)

// ErrNotConnected is returned by Send while the link is down; callers treat
// it as a transient transport failure.
var ErrNotConnected = errors.New("relay connection is down")

// Handler consumes every envelope observed on the broadcast stream.
type Handler func(env command.Envelope)

type Client struct {
	origin     string
	log        *slog.Logger
	retryBase  time.Duration
	retryMax   time.Duration
	dialer     *websocket.Dialer

	mu          sync.Mutex
	ws          *websocket.Conn
	handlers    []Handler
	onReconnect []func()
	closed      bool
	done        chan struct{}
}

// New builds a client for the relay at origin (ws:// or wss://).
func New(origin string, retryBase, retryMax time.Duration, log *slog.Logger) *Client {
	if retryBase <= 0 {
		retryBase = time.Second
	}
	if retryMax < retryBase {
		retryMax = 30 * time.Second
	}
	return &Client{
		origin:    origin,
		log:       log,
		retryBase: retryBase,
		retryMax:  retryMax,
		dialer:    websocket.DefaultDialer,
		done:      make(chan struct{}),
	}
}

// OnEnvelope registers a handler for every received envelope. Handlers run
// on the read loop goroutine, in receive order.
func (c *Client) OnEnvelope(h Handler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

// OnReconnect registers a hook fired after every successful re-dial (not
// the first connect). The relay redelivers nothing, so hooks should refresh
// from the REST collaborator.
func (c *Client) OnReconnect(fn func()) {
	c.mu.Lock()
	c.onReconnect = append(c.onReconnect, fn)
	c.mu.Unlock()
}

// Start connects and keeps the link alive until ctx is cancelled or Close
// is called. It returns after the first connection attempt resolves, so
// callers may begin sending immediately on success.
func (c *Client) Start(ctx context.Context) error {
	ws, err := c.dialOnce(ctx)
	if err != nil {
		// First dial failed; the run loop keeps retrying in background.
		c.log.Warn("relay dial failed, retrying", "error", err)
	} else {
		c.setConn(ws)
	}
	go c.run(ctx, ws)
	return nil
}

func (c *Client) dialOnce(ctx context.Context) (*websocket.Conn, error) {
	ws, _, err := c.dialer.DialContext(ctx, c.origin, nil)
	return ws, err
}

func (c *Client) run(ctx context.Context, ws *websocket.Conn) {
	attempt := 0
	firstSession := true
	for {
		if ws == nil {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-time.After(c.backoff(attempt)):
			}
			var err error
			ws, err = c.dialOnce(ctx)
			if err != nil {
				attempt++
				continue
			}
			c.setConn(ws)
			if !firstSession {
				c.fireReconnect()
			}
		}
		attempt = 0
		firstSession = false

		c.readAll(ws)
		c.clearConn(ws)
		ws.Close()
		ws = nil

		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}
		c.log.Info("relay connection lost, reconnecting")
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.retryBase << min(attempt, 16)
	if d > c.retryMax || d <= 0 {
		return c.retryMax
	}
	return d
}

// readAll pumps the connection until it fails. Envelopes arrive on one
// stream, so handler invocation order matches per-sender send order.
func (c *Client) readAll(ws *websocket.Conn) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		env, err := command.DecodeFrame(raw)
		if err != nil {
			c.log.Warn("dropping malformed envelope", "error", err)
			continue
		}
		for _, h := range c.snapshotHandlers() {
			h(env)
		}
	}
}

func (c *Client) snapshotHandlers() []Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Handler(nil), c.handlers...)
}

func (c *Client) fireReconnect() {
	c.mu.Lock()
	hooks := append([]func(){}, c.onReconnect...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (c *Client) setConn(ws *websocket.Conn) {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
}

func (c *Client) clearConn(ws *websocket.Conn) {
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	c.mu.Unlock()
}

// Send frames and writes one envelope. Writes are serialized so a single
// sender's envelopes hit the wire in call order.
func (c *Client) Send(env command.Envelope) error {
	raw, err := command.EncodeFrame(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return ErrNotConnected
	}
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

// Connected reports whether the link is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// Close tears the connection down and stops the reconnect loop. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()
	if ws != nil {
		return ws.Close()
	}
	return nil
}
