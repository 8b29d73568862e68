package gateway

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

var (
	// ErrSendBufferFull is returned when a slow client has not drained its queue.
	ErrSendBufferFull = errors.New("client send buffer full")
	// ErrClientClosed is returned when sending to a closed client.
	ErrClientClosed = errors.New("client closed")
)

// Client is one websocket subscribed to a single topic.
// Messages are queued on send and written by writePump, the only writer.
type Client struct {
	conn  *websocket.Conn
	hub   *Hub
	topic string
	send  chan []byte
	done  chan struct{}
	once  sync.Once
	log   *slog.Logger
}

// NewClient wraps an upgraded connection for topic.
func NewClient(hub *Hub, conn *websocket.Conn, topic string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		conn:  conn,
		hub:   hub,
		topic: topic,
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
		log:   log.With(slog.String("component", "ws"), slog.String("topic", topic)),
	}
}

// Serve registers the client and blocks until the peer goes away or the hub closes it.
func (c *Client) Serve() {
	if !c.hub.Connect(c.topic, c) {
		c.Close()
		c.conn.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

// Send queues msg without blocking.
func (c *Client) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which sends a close frame and closes the socket.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("write failed", "err", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c.topic, c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read failed", "err", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		// Clients may ping at the application level; anything else is ignored.
		var base struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(msg, &base) == nil && base.Type == "ping" {
			pong, _ := json.Marshal(map[string]any{"type": "pong", "server_ts": time.Now().UnixMilli()})
			if err := c.Send(pong); err != nil {
				c.log.Debug("pong dropped", "err", err)
			}
		}
	}
}
