package gateway

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // must be shorter than pongWait
	maxMessageSize = 4 * 1024

	sendBufferSize = 256
)

// Client wraps one websocket connection. Each connection gets a transient
// player id for the life of the socket; there is no durable identity.
//
// Outbound messages go through a buffered channel drained by writePump, so a
// slow consumer never blocks the room actor; when the buffer is full the
// message is dropped.
type Client struct {
	id   string
	conn *websocket.Conn
	room *Room
	send chan []byte
	log  *slog.Logger
}

// NewClient wraps an upgraded connection. Call Start to register with the
// room and begin pumping.
func NewClient(room *Room, conn *websocket.Conn, log *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:   id,
		conn: conn,
		room: room,
		send: make(chan []byte, sendBufferSize),
		log:  log.With(slog.String("player", id)),
	}
}

// ID returns the transient player id assigned to this connection.
func (c *Client) ID() string { return c.id }

// Start registers the client with the room and spawns the read and write
// pumps. The room sends market_init before the first tick broadcast.
func (c *Client) Start() {
	c.room.Join(c)
	go c.writePump()
	go c.readPump()
}

// Send enqueues a pre-marshaled frame without blocking; a full buffer drops
// the frame and the next tick broadcast supersedes it anyway.
func (c *Client) Send(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.log.Warn("send buffer full, dropping frame")
	}
}

// SendJSON marshals and enqueues one message.
func (c *Client) SendJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.log.Error("marshal outbound message failed", slog.Any("error", err))
		return
	}
	c.Send(payload)
}

// readPump consumes client messages until the socket dies, then detaches the
// player from the room. It is the sole reader of the connection.
func (c *Client) readPump() {
	defer func() {
		c.room.Leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("read failed", slog.Any("error", err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.log.Warn("invalid client message", slog.Any("error", err))
			continue
		}
		c.room.HandleMessage(c, msg)
	}
}

// writePump drains the send channel and keeps the connection alive with
// pings. It is the sole writer of the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
