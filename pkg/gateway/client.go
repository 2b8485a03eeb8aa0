package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatsync/pkg/config"
	"chatsync/pkg/logger"
)

// Client is one live websocket session. It satisfies subs.Conn: the
// fanout path hands payloads to TrySend, which never blocks; the write
// pump drains the buffer onto the wire.
type Client struct {
	id   string
	user string
	conn *websocket.Conn
	send chan []byte
	kick chan string
	cfg  config.WebSocketConfig

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(id, user string, conn *websocket.Conn, buffer int, cfg config.WebSocketConfig) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		id:   id,
		user: user,
		conn: conn,
		send: make(chan []byte, buffer),
		kick: make(chan string, 1),
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string   { return c.id }
func (c *Client) User() string { return c.user }

// TrySend queues a payload for delivery. False means the buffer is
// full: the caller treats the connection as too slow to keep.
func (c *Client) TrySend(payload []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Kick asks the write pump to flush a final error frame and close the
// session. The pump owns the socket, so the frame is guaranteed to go
// out before the close.
func (c *Client) Kick(reason string) {
	select {
	case c.kick <- reason:
	default:
		c.close()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// control marshals and queues a protocol frame (subscribed, error, ...).
func (c *Client) control(v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		return
	}
	if !c.TrySend(frame) {
		logger.Warn("control_frame_dropped", "conn", c.id, "user", c.user)
	}
}

func (c *Client) readPump(handle func(*Client, []byte)) {
	defer c.close()
	c.conn.SetReadLimit(int64(c.cfg.MaxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(time.Duration(c.cfg.PongWait)))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(time.Duration(c.cfg.PongWait)))
		return nil
	})
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("ws_read_error", "conn", c.id, "user", c.user, "error", err)
			}
			return
		}
		handle(c, frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(time.Duration(c.cfg.PingInterval))
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case <-c.done:
			return
		case reason := <-c.kick:
			frame, _ := json.Marshal(map[string]string{"type": "error", "error": reason})
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(c.cfg.WriteWait)))
			_ = c.conn.WriteMessage(websocket.TextMessage, frame)
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
			return
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(c.cfg.WriteWait)))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(c.cfg.WriteWait)))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
