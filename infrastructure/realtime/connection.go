package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"vetchat/domain/event"
	"vetchat/errors"
	"vetchat/infrastructure/dto"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Connection wraps a websocket and serializes outbound writes through a
// buffered channel drained by a single writer goroutine.
// A slow client that fills its buffer is disconnected.
type Connection struct {
	id     string
	userID string
	log    *slog.Logger

	ws     *websocket.Conn
	send   chan []byte
	once   sync.Once
	closed chan struct{}
}

func NewConnection(log *slog.Logger, userID string, ws *websocket.Conn, bufferSize int) *Connection {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	id := uuid.NewString()
	return &Connection{
		id:     id,
		userID: userID,
		log:    log.With("user_id", userID, "conn_id", id),
		ws:     ws,
		send:   make(chan []byte, bufferSize),
		closed: make(chan struct{}),
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) UserID() string { return c.userID }

// Start launches the write loop. It must be called exactly once per connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Consume encodes a live event and enqueues it.
func (c *Connection) Consume(_ context.Context, e event.Event) error {
	frame, err := dto.EventFrame(e)
	if err != nil {
		return err
	}
	return c.SendFrame(frame)
}

func (c *Connection) SendFrame(frame dto.Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.Send(payload)
}

// Send enqueues payload for delivery without blocking.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.closed:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.log.Warn("Send buffer full, closing connection")
		c.Close(websocket.ClosePolicyViolation, "send buffer full")
		return errors.ErrSendBufferFull
	}
}

// Close terminates the connection and stops the write loop. Safe to call many times.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.log.Debug("Write failed", "error", err)
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
