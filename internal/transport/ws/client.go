package ws

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before being dropped.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait so pings keep the read
	// deadline fresh.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize bounds inbound frames; commands are small.
	maxMessageSize = 4096
	// sendBufferSize is the per-connection outbound queue. A connection that
	// cannot drain it is considered dead.
	sendBufferSize = 256
)

// Client is one websocket connection bound to a verified identity.
type Client struct {
	id       string
	identity string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	logger   *zap.Logger
}

// ID returns the connection id used as a broadcast address.
func (c *Client) ID() string {
	return c.id
}

// Identity returns the verified username behind the connection.
func (c *Client) Identity() string {
	return c.identity
}

// readPump reads inbound frames and hands them to the hub's handler until the
// connection errors or closes. Runs as the connection's read goroutine; it
// unregisters the client on exit.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed",
					zap.String("conn_id", c.id),
					zap.Error(err),
				)
			}
			return
		}
		c.hub.handleMessage(c, raw)
	}
}

// writePump drains the send queue to the connection and keeps it alive with
// pings. Runs as the connection's sole writer goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// enqueue queues msg without blocking. A full queue drops the message;
// delivery is fire-and-forget.
func (c *Client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("dropping message for slow connection",
			zap.String("conn_id", c.id),
			zap.String("identity", c.identity),
		)
	}
}
