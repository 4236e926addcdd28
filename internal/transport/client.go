// Package transport hosts the WebSocket connection lifecycle and the
// Gin HTTP routes that expose it.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eventcollab/videochat/internal/logging"
	"github.com/eventcollab/videochat/internal/metrics"
	"github.com/eventcollab/videochat/internal/ratelimit"
	"github.com/eventcollab/videochat/internal/registry"
	"github.com/eventcollab/videochat/internal/signaling"
)

// wsConnection is the subset of *websocket.Conn this package depends on,
// narrowed so tests can substitute a fake transport.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	sendBufferSize = 256
)

// Client is one socket's connection lifecycle: Accepting -> Registered ->
// Pumping -> Draining -> Closed. It satisfies registry.Connection so the
// registry and signaling router can address it without importing this
// package.
type Client struct {
	conn wsConnection
	room string
	user string

	registry *registry.Registry
	router   *signaling.Router
	rate     *ratelimit.RateLimiter

	send      chan []byte
	closeOnce sync.Once
}

// NewClient wraps an already-upgraded WebSocket connection. The caller
// must still call Serve to move it through Registered -> Pumping. rate may
// be nil, in which case inbound frames are never throttled.
func NewClient(conn wsConnection, room, user string, reg *registry.Registry, router *signaling.Router, rate *ratelimit.RateLimiter) *Client {
	return &Client{
		conn:     conn,
		room:     room,
		user:     user,
		registry: reg,
		router:   router,
		rate:     rate,
		send:     make(chan []byte, sendBufferSize),
	}
}

// Send enqueues data for delivery without blocking: a full buffer means a
// slow consumer, and the registry's broadcast path treats that the same
// as any other send failure (unregister and move on).
func (c *Client) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("transport: send buffer full for user %s in room %s", c.user, c.room)
	}
}

// Serve replays history, then registers the connection and pumps inbound
// frames into the router until the socket closes for any reason. Replay
// runs before registration so no other connection's broadcast or relay can
// reach c.send until every history frame has already been enqueued ahead
// of it — registering first would let a concurrent broadcast race the
// replay loop for a slot in the same channel. The write pump is already
// draining c.send while replay runs, so a history longer than the send
// buffer is not cut short. It blocks until the
// connection is fully drained; call it from the goroutine that accepted
// the socket.
func (c *Client) Serve(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()

	c.router.ReplayHistory(ctx, c.room, c)

	c.registry.Register(c.room, c.user, c)
	metrics.IncConnection()

	c.readPump(ctx)

	c.closeOnce.Do(func() { close(c.send) })
	<-done

	c.registry.Unregister(c.room, c.user, c)
	c.router.BroadcastDisconnect(ctx, c.room, c.user)
	metrics.DecConnection()
}

func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if c.rate != nil && !c.rate.AllowChatSend(ctx, c.user) {
			logging.Warn(ctx, "chat send rate limit exceeded, dropping message", zap.String("user_id", c.user), zap.String("room_id", c.room))
			continue
		}
		c.router.Dispatch(ctx, c.room, c.user, c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logging.Warn(context.Background(), "write failed, closing connection", zap.String("user_id", c.user), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
