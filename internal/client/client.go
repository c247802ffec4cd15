// Package client speaks the chat event protocol from the user side.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"roomchat/internal/broker"
	"roomchat/internal/protocol"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

const (
	DevPagePort = "5173"
	DevEndpoint = "ws://localhost:9000" + protocol.Path

	DefaultAttempts = 5
	DefaultDelay    = time.Second

	writeWait = 10 * time.Second
)

// ErrConnection is what a user sees when the channel cannot be (re)opened.
var ErrConnection = errors.New("connection error, please retry")

// ResolveEndpoint picks the websocket address for a page served at pageURL:
// the local server when running on the development port, otherwise the page
// origin itself.
func ResolveEndpoint(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("resolve endpoint: %w", err)
	}
	if u.Port() == DevPagePort {
		return DevEndpoint, nil
	}
	if u.Host == "" {
		return "", fmt.Errorf("resolve endpoint: %q has no host", pageURL)
	}
	scheme := "ws"
	if u.Scheme == "https" || u.Scheme == "wss" {
		scheme = "wss"
	}
	return (&url.URL{Scheme: scheme, Host: u.Host, Path: protocol.Path}).String(), nil
}

type Options struct {
	Attempts uint
	Delay    time.Duration
	Dialer   *websocket.Dialer
}

func (o Options) withDefaults() Options {
	if o.Attempts == 0 {
		o.Attempts = DefaultAttempts
	}
	if o.Delay <= 0 {
		o.Delay = DefaultDelay
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}

// Client holds one logical session. A dropped channel is reopened with the
// same fixed-delay policy used for the first dial, and the last join is
// replayed on the new channel.
type Client struct {
	endpoint string
	log      *slog.Logger
	opts     Options
	events   chan protocol.Envelope
	stop     chan struct{}

	mu       sync.Mutex
	conn     *websocket.Conn
	lastJoin *broker.JoinEvent
	closed   bool
	err      error
}

func Dial(ctx context.Context, endpoint string, log *slog.Logger, opts Options) (*Client, error) {
	c := &Client{
		endpoint: endpoint,
		log:      log,
		opts:     opts.withDefaults(),
		events:   make(chan protocol.Envelope, 64),
		stop:     make(chan struct{}),
	}
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	go c.run(ctx)
	return c, nil
}

// Events yields server frames. It is closed when the client is closed or
// when reconnection gives up; Err tells which.
func (c *Client) Events() <-chan protocol.Envelope { return c.events }

func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Join(userName, roomName string) error {
	join := broker.JoinEvent{UserName: userName, RoomName: roomName}
	c.mu.Lock()
	c.lastJoin = &join
	c.mu.Unlock()
	return c.write(protocol.EventJoin, join)
}

func (c *Client) Send(text string) error {
	return c.write(protocol.EventMessage, text)
}

func (c *Client) Typing(roomName, userName string, isTyping bool) error {
	return c.write(protocol.EventTyping, broker.TypingEvent{RoomName: roomName, UserName: userName, IsTyping: isTyping})
}

func (c *Client) Edit(newText string) error {
	return c.write(protocol.EventEdit, broker.EditEvent{NewText: newText})
}

func (c *Client) Delete() error {
	return c.write(protocol.EventDelete, nil)
}

func (c *Client) Leave() error {
	c.mu.Lock()
	c.lastJoin = nil
	c.mu.Unlock()
	return c.write(protocol.EventLeave, nil)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stop)
	if c.conn == nil {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

func (c *Client) write(event string, data any) error {
	payload, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return ErrConnection
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return nil
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	attempt := 0
	conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
		attempt++
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.endpoint, nil)
		if err != nil {
			c.log.Warn("Connection attempt failed", "endpoint", c.endpoint, "attempt", attempt, "error", err)
			return nil, err
		}
		return conn, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.opts.Delay)),
		backoff.WithMaxTries(c.opts.Attempts),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return conn, nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.events)

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if !c.readFrom(conn) {
			return
		}

		_ = conn.Close()
		c.log.Info("Connection lost, reconnecting", "endpoint", c.endpoint)
		next, err := c.connect(ctx)
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			if next != nil {
				_ = next.Close()
			}
			return
		}
		if err != nil {
			c.err = err
			c.conn = nil
			c.mu.Unlock()
			return
		}
		c.conn = next
		join := c.lastJoin
		c.mu.Unlock()

		if join != nil {
			if err := c.write(protocol.EventJoin, *join); err != nil {
				c.log.Warn("Rejoin failed", "room", join.RoomName, "error", err)
			}
		}
	}
}

// readFrom pumps frames until the channel fails. It reports whether the
// failure should trigger a reconnect.
func (c *Client) readFrom(conn *websocket.Conn) bool {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			return !closed
		}

		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Debug("Bad server frame", "error", err)
			continue
		}
		select {
		case c.events <- env:
		case <-c.stop:
			return false
		}
	}
}
