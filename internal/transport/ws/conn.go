package ws

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"roomchat/internal/broker"
	"roomchat/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 45 * time.Second
	wsMaxMessage     = 64 * 1024
	wsMaxDecodeFails = 3
	wsMinQueue       = 4
)

// wsConn is one websocket channel. It is the broker.Peer of its session.
type wsConn struct {
	id       string
	log      *slog.Logger
	registry *broker.Registry
	conn     *websocket.Conn
	limit    int
	wake     chan struct{}

	mu        sync.Mutex
	queue     []outFrame
	closed    bool
	closeOnce sync.Once
}

type outFrame struct {
	event   string
	payload []byte
}

func newWSConn(id string, log *slog.Logger, registry *broker.Registry, conn *websocket.Conn, limit int) *wsConn {
	return &wsConn{
		id:       id,
		log:      log,
		registry: registry,
		conn:     conn,
		limit:    max(limit, wsMinQueue),
		wake:     make(chan struct{}, 1),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(out broker.Outbound) {
	payload, err := protocol.EncodeOutbound(out)
	if err != nil {
		c.log.Error("Outbound frame not encoded", "connection", c.id, "event", out.Event, "error", err)
		return
	}
	c.enqueue(outFrame{event: out.Event, payload: payload})
}

func (c *wsConn) readLoop() {
	defer c.close()

	c.conn.SetReadLimit(wsMaxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	decodeFails := 0
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("Websocket read failed", "connection", c.id, "error", err)
			}
			return
		}

		evt, err := protocol.DecodeEvent(raw)
		if err != nil {
			decodeFails++
			c.log.Debug("Bad client frame", "connection", c.id, "error", err)
			if decodeFails >= wsMaxDecodeFails {
				c.log.Warn("Too many bad frames, closing connection", "connection", c.id)
				return
			}
			continue
		}
		decodeFails = 0
		c.handleEvent(evt)
	}
}

func (c *wsConn) handleEvent(evt broker.Event) {
	err := c.registry.Dispatch(c.id, evt)
	switch {
	case err == nil:
	case errors.Is(err, broker.ErrIdentityConflict), errors.Is(err, broker.ErrInvalidJoin):
		// already answered with a join-response
	default:
		c.log.Debug("Event ignored", "connection", c.id, "event", evt, "error", err)
	}
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.wake:
			frames, closed := c.take()
			for _, f := range frames {
				_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, f.payload); err != nil {
					return
				}
			}
			if closed {
				_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue never blocks. A full queue first drops a snapshot frame that a
// newer frame of the same event replaces, so the latest chat update,
// room-users and typing frames are always delivered. Only when no frame is
// replaced does the oldest one go.
func (c *wsConn) enqueue(f outFrame) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if len(c.queue) >= c.limit {
		c.queue = dropOne(c.queue, f.event)
	}
	c.queue = append(c.queue, f)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *wsConn) take() ([]outFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := c.queue
	c.queue = nil
	return frames, c.closed
}

func dropOne(queue []outFrame, incoming string) []outFrame {
	for i, f := range queue {
		if f.event == broker.EventJoinResponse {
			continue
		}
		if f.event == incoming || lo.ContainsBy(queue[i+1:], func(o outFrame) bool { return o.event == f.event }) {
			return slices.Delete(queue, i, i+1)
		}
	}
	return queue[1:]
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		c.registry.Disconnect(c.id)

		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		select {
		case c.wake <- struct{}{}:
		default:
		}

		_ = c.conn.Close()
	})
}
