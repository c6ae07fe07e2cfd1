package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/slganesh1/lume-telehealth/internal/protocol"
	"github.com/slganesh1/lume-telehealth/pkg/constants"
	"github.com/slganesh1/lume-telehealth/pkg/logger"
)

var (
	// ErrConnClosed is returned by TrySend after the connection is torn down
	ErrConnClosed = errors.New("connection closed")
	// ErrBackpressure is returned when the send buffer is full; the frame
	// is dropped for this recipient only
	ErrBackpressure = errors.New("send buffer full")
)

// Client is one signaling connection bound to a user and a room for its
// whole lifetime. It satisfies the session manager's Sender contract: the
// manager enqueues frames through TrySend while the pumps own the socket.
type Client struct {
	handler *SessionHandler
	conn    *websocket.Conn
	userID  uuid.UUID
	roomID  string

	mu     sync.RWMutex
	closed bool
	send   chan []byte
}

func newClient(handler *SessionHandler, conn *websocket.Conn, userID uuid.UUID, roomID string) *Client {
	return &Client{
		handler: handler,
		conn:    conn,
		userID:  userID,
		roomID:  roomID,
		send:    make(chan []byte, constants.SendBufferSize),
	}
}

// TrySend enqueues a frame without blocking. A slow reader fills its own
// buffer and loses frames; it can never stall a broadcast.
func (c *Client) TrySend(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		if c.handler.metrics != nil {
			c.handler.metrics.RecordWebSocketError("backpressure")
		}
		return ErrBackpressure
	}
}

// closeConn is idempotent; the first call closes the send channel so the
// write pump drains and exits.
func (c *Client) closeConn() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.send)
	_ = c.conn.Close()
}

func (c *Client) sendError(code, message string) {
	frame, err := json.Marshal(protocol.ErrorEvent{
		Type:      protocol.TypeError,
		RoomID:    c.roomID,
		Timestamp: time.Now(),
		Code:      code,
		Message:   message,
	})
	if err != nil {
		return
	}
	_ = c.TrySend(frame)
}

// readPump reads inbound frames and dispatches them until the connection
// drops, then unwinds the session state for this socket.
func (c *Client) readPump() {
	defer c.handler.disconnect(c)

	c.conn.SetReadLimit(constants.MaxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
		c.handler.refreshPresence(c)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket connection closed unexpectedly",
					zap.String("room_id", c.roomID),
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			break
		}
		c.handler.dispatch(c, raw)
	}
}

// writePump drains the send buffer onto the socket and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
