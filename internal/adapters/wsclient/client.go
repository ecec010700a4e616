// Package wsclient is the peer side of the signaling channel: a gorilla
// websocket with keepalive and bounded reconnection.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	ErrNotConnected       = errors.New("signaling not connected")
	ErrReconnectExhausted = errors.New("signaling reconnect attempts exhausted")
)

type Options struct {
	URL      string
	Header   http.Header
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
	// SendBuffer is the number of frames queued per connection.
	SendBuffer int
	Dialer     *websocket.Dialer
}

func OptionsFrom(cfg *config.ClientConfig) Options {
	return Options{
		URL:      cfg.ServerURL,
		Attempts: cfg.ReconnectAttempts,
		Delay:    cfg.ReconnectDelay,
		MaxDelay: cfg.ReconnectDelayMax,
	}
}

// Client keeps one signaling connection alive. Events from every
// connection it makes arrive on a single channel, closed when Run returns.
type Client struct {
	opts   Options
	log    zerolog.Logger
	events chan protocol.Event

	mu  sync.Mutex
	out chan core.Frame
}

func New(opts Options, log zerolog.Logger) *Client {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	if opts.MaxDelay < opts.Delay {
		opts.MaxDelay = opts.Delay
	}
	return &Client{
		opts:   opts,
		log:    log.With().Str("module", "wsclient").Logger(),
		events: make(chan protocol.Event, 64),
	}
}

func (c *Client) Events() <-chan protocol.Event { return c.events }

// Send queues req on the live connection without blocking.
func (c *Client) Send(req protocol.Request) error {
	frame, err := protocol.Encode(req)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out == nil {
		return ErrNotConnected
	}
	select {
	case c.out <- frame:
		return nil
	default:
		return core.ErrBackpressure
	}
}

// Run connects and reconnects until ctx is done or Attempts consecutive
// dials fail. A connection that was established resets the count.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	failures := 0
	for {
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
		if err == nil {
			failures = 0
			c.log.Info().Str("url", c.opts.URL).Msg("connected")
			c.serve(ctx, conn)
		} else {
			c.log.Warn().Err(err).Str("url", c.opts.URL).Int("attempt", failures+1).Msg("dial failed")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		if failures > c.opts.Attempts {
			return fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, c.opts.Attempts)
		}
		delay := backoff(failures, c.opts.Delay, c.opts.MaxDelay)
		c.log.Info().Dur("delay", delay).Int("attempt", failures).Msg("reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoff doubles from base and stops at ceiling.
func backoff(attempt int, base, ceiling time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	if d > ceiling {
		d = ceiling
	}
	return d
}

// serve runs both pumps and returns once the connection is gone.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	out := make(chan core.Frame, c.opts.SendBuffer)
	c.mu.Lock()
	c.out = out
	c.mu.Unlock()

	done := make(chan struct{})
	go c.writePump(ctx, conn, out, done)
	c.readPump(ctx, conn)

	c.mu.Lock()
	c.out = nil
	c.mu.Unlock()
	close(done)
	conn.Close()
}

func (c *Client) readPump(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("read")
			} else {
				c.log.Debug().Err(err).Msg("connection closed")
			}
			return
		}
		ev, err := protocol.DecodeEvent(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed event")
			continue
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, out <-chan core.Frame, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug().Err(err).Msg("write")
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
			return
		case <-done:
			return
		}
	}
}
