// Package ws implements a WebSocket subscription manager: a single
// connection multiplexing per-(channel,symbol) subscriptions, with
// automatic ping keepalive, reconnect-and-resubscribe on disconnect,
// and a bounded event channel that drops the oldest buffered message
// rather than blocking the read loop when a consumer falls behind.
package ws

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message is one decoded event delivered to consumers.
type Message struct {
	Channel string
	Symbol  string
	Raw     []byte
	At      time.Time
}

// Subscription identifies one (channel, symbol) stream.
type Subscription struct {
	Channel string
	Symbol  string
}

// Encoder builds the wire frame for a subscribe/unsubscribe request; it
// is venue-specific and supplied by the caller.
type Encoder interface {
	EncodeSubscribe(subs []Subscription) ([]byte, error)
	EncodeUnsubscribe(subs []Subscription) ([]byte, error)
	// Route inspects a raw inbound frame and reports which (channel,
	// symbol) it belongs to, or ok=false if the frame is not a data
	// message (e.g. a subscription ack or heartbeat).
	Route(raw []byte) (sub Subscription, ok bool)
}

// Config parameterizes connection lifecycle behavior.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	ReconnectDelay   time.Duration
	MaxReconnectWait time.Duration
	EventBufferSize  int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 30 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		ReconnectDelay:   time.Second,
		MaxReconnectWait: 30 * time.Second,
		EventBufferSize:  1024,
	}
}

// Client manages one WebSocket connection, its live subscriptions, and
// automatic reconnect-with-resubscribe.
type Client struct {
	cfg     Config
	encoder Encoder

	mu     sync.RWMutex
	conn   *websocket.Conn
	subs   map[Subscription]struct{}
	closed bool

	events    chan Message
	eventsMu  sync.Mutex
	dropCount int64

	onDrop func(Message)
}

// New constructs a Client. The connection is not established until
// Connect is called.
func New(cfg Config, encoder Encoder) *Client {
	return &Client{
		cfg:     cfg,
		encoder: encoder,
		subs:    make(map[Subscription]struct{}),
		events:  make(chan Message, cfg.EventBufferSize),
	}
}

// Events returns the channel consumers read decoded Messages from.
func (c *Client) Events() <-chan Message {
	return c.events
}

// OnDrop registers a callback invoked whenever the bounded event channel
// is full and the oldest buffered Message is dropped to make room for a
// new one.
func (c *Client) OnDrop(fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDrop = fn
}

// Connect dials the WebSocket and starts the read/ping/reconnect
// goroutines. It returns once the initial handshake succeeds.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := url.Parse(c.cfg.URL); err != nil {
		return fmt.Errorf("ws: invalid url: %w", err)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.closed = false
	c.mu.Unlock()

	go c.readLoop(ctx)
	go c.pingLoop(ctx)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = c.cfg.HandshakeTimeout
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("ws: dial: %w", err)
	}
	return conn, nil
}

// Subscribe adds subs to the live subscription set and sends a subscribe
// frame over the current connection.
func (c *Client) Subscribe(subs ...Subscription) error {
	c.mu.Lock()
	conn := c.conn
	for _, s := range subs {
		c.subs[s] = struct{}{}
	}
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("ws: not connected")
	}
	frame, err := c.encoder.EncodeSubscribe(subs)
	if err != nil {
		return fmt.Errorf("ws: encode subscribe: %w", err)
	}
	return c.write(conn, frame)
}

// Unsubscribe removes subs from the live set and sends an unsubscribe
// frame.
func (c *Client) Unsubscribe(subs ...Subscription) error {
	c.mu.Lock()
	conn := c.conn
	for _, s := range subs {
		delete(c.subs, s)
	}
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("ws: not connected")
	}
	frame, err := c.encoder.EncodeUnsubscribe(subs)
	if err != nil {
		return fmt.Errorf("ws: encode unsubscribe: %w", err)
	}
	return c.write(conn, frame)
}

func (c *Client) write(conn *websocket.Conn, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Close terminates the connection and stops all goroutines. Subsequent
// reads/writes return errors.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil || c.isClosed() {
			return
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			if !c.reconnect(ctx) {
				return
			}
			continue
		}
		if msgType != websocket.TextMessage {
			continue
		}

		sub, ok := c.encoder.Route(data)
		if !ok {
			continue
		}
		c.deliver(Message{Channel: sub.Channel, Symbol: sub.Symbol, Raw: data, At: time.Now()})
	}
}

// deliver pushes m onto the bounded event channel, dropping the oldest
// buffered message first if the channel is full, so a slow consumer
// never blocks the read loop.
func (c *Client) deliver(m Message) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()

	select {
	case c.events <- m:
		return
	default:
	}

	select {
	case dropped := <-c.events:
		c.dropCount++
		if c.onDrop != nil {
			c.onDrop(dropped)
		}
	default:
	}
	select {
	case c.events <- m:
	default:
	}
}

// DropCount reports how many buffered messages have been discarded under
// backpressure.
func (c *Client) DropCount() int64 {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	return c.dropCount
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			closed := c.closed
			c.mu.RUnlock()
			if closed || conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.reconnect(ctx)
				return
			}
		}
	}
}

// reconnect redials with exponential backoff and resubscribes to every
// subscription active before the disconnect. Returns false if the
// client was closed or ctx cancelled during the attempt.
func (c *Client) reconnect(ctx context.Context) bool {
	delay := c.cfg.ReconnectDelay
	for {
		if ctx.Err() != nil || c.isClosed() {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		conn, err := c.dial(ctx)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			subs := make([]Subscription, 0, len(c.subs))
			for s := range c.subs {
				subs = append(subs, s)
			}
			c.mu.Unlock()

			if len(subs) > 0 {
				if frame, encErr := c.encoder.EncodeSubscribe(subs); encErr == nil {
					c.write(conn, frame)
				}
			}
			go c.pingLoop(ctx)
			return true
		}

		delay *= 2
		if delay > c.cfg.MaxReconnectWait {
			delay = c.cfg.MaxReconnectWait
		}
	}
}
