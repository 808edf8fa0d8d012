package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps one live connection. Outbound frames go through a buffered
// channel consumed by a single writer goroutine; a full buffer drops the
// frame so a slow consumer never blocks the hub.
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	logger *slog.Logger

	// guarded by the hub's mutex
	room   string
	userID string

	closeOnce   sync.Once
	forwardOnce sync.Once
	done        chan struct{}
}

// beginForwarding reports whether this call won the right to start the
// notification relay. A connection gets at most one relay no matter how many
// register events it emits.
func (c *Conn) beginForwarding() bool {
	started := false
	c.forwardOnce.Do(func() { started = true })
	return started
}

func newConn(socket *websocket.Conn, sendBuffer int, logger *slog.Logger) *Conn {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Conn{
		ws:     socket,
		send:   make(chan []byte, sendBuffer),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Send queues a frame for delivery, dropping it when the buffer is full.
func (c *Conn) Send(frame []byte) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		if c.logger != nil {
			c.logger.Warn("dropping frame for slow consumer", "user_id", c.userID)
		}
	}
}

// Close tears the connection down; safe to call multiple times.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump owns all writes to the socket, including keepalive pings.
func (c *Conn) writePump(writeTimeout, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}
