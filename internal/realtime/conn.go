package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize  = 4096
	sendQueueSize = 16
)

// Conn is one realtime channel: a websocket with its send queue. The channel
// id doubles as the registry key.
type Conn struct {
	id   string
	hub  *Hub
	ws   *websocket.Conn
	send chan Message

	closeMu sync.Mutex
	closed  bool
}

// Serve attaches a freshly upgraded websocket to the hub and runs its pumps.
// Blocks until the connection closes.
func (h *Hub) Serve(ws *websocket.Conn) {
	c := &Conn{
		id:   uuid.NewString(),
		hub:  h,
		ws:   ws,
		send: make(chan Message, sendQueueSize),
	}
	h.addConn(c)

	go c.writePump()
	c.readPump()
}

// enqueue queues a message without blocking. A full or already-closed queue
// drops the message; delivery here is best-effort by contract.
func (c *Conn) enqueue(msg Message) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.hub.logger.Warn("Send queue full, dropping event",
			zap.String("channel_id", c.id),
			zap.String("event", msg.Event))
	}
}

// closeSend closes the send queue exactly once. The flag keeps a concurrent
// enqueue from writing to the closed channel.
func (c *Conn) closeSend() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.removeConn(c)
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("Unexpected websocket close",
					zap.String("channel_id", c.id),
					zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.hub.logger.Warn("Malformed frame", zap.String("channel_id", c.id), zap.Error(err))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		c.hub.handleFrame(ctx, c, env)
		cancel()
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
