package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/slganesh1/lume-telehealth/internal/domain"
	"github.com/slganesh1/lume-telehealth/internal/protocol"
	redisrepo "github.com/slganesh1/lume-telehealth/internal/repository/redis"
	"github.com/slganesh1/lume-telehealth/internal/service/session"
	"github.com/slganesh1/lume-telehealth/pkg/constants"
	pkgcontext "github.com/slganesh1/lume-telehealth/pkg/context"
	apperrors "github.com/slganesh1/lume-telehealth/pkg/errors"
	"github.com/slganesh1/lume-telehealth/pkg/logger"
	"github.com/slganesh1/lume-telehealth/pkg/metrics"
	"github.com/slganesh1/lume-telehealth/pkg/response"
)

// SessionHandler upgrades signaling connections and dispatches their
// frames into the session manager. A connection is bound to one room and
// one authenticated user at upgrade time; inbound frames can never speak
// for another user or another room.
type SessionHandler struct {
	manager  *session.Manager
	presence *redisrepo.PresenceRepository
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

// NewSessionHandler creates the WebSocket entry point for call signaling
func NewSessionHandler(manager *session.Manager, presence *redisrepo.PresenceRepository, m *metrics.Metrics, allowedOrigins []string) *SessionHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimSpace(origin)] = true
	}

	return &SessionHandler{
		manager:  manager,
		presence: presence,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// non-browser client
					return true
				}
				return allowed[origin]
			},
		},
	}
}

// ServeWS handles GET /v1/calls/ws. The endpoint is shared transport; the
// purpose discriminator routes the connection to call signaling. All
// validation failures answer before the upgrade.
func (h *SessionHandler) ServeWS(c *gin.Context) {
	if c.Query("purpose") != constants.SignalingPurpose {
		response.ValidationError(c, "purpose must be "+constants.SignalingPurpose)
		return
	}

	roomID := c.Query("room_id")
	if roomID == "" {
		response.ValidationError(c, "room_id required")
		return
	}

	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "unauthorized")
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "invalid user identity")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed",
			zap.String("room_id", roomID),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	client := newClient(h, conn, userID, roomID)

	if h.metrics != nil {
		h.metrics.IncrementWebSocketConnections()
	}
	if err := h.presence.SetOnline(c.Request.Context(), userID, roomID); err != nil {
		logger.Warn("Failed to mark user online",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
	logger.Info("Signaling connection opened",
		zap.String("room_id", roomID),
		zap.String("user_id", userID.String()))

	go client.writePump()
	go client.readPump()
}

// dispatch routes one parsed inbound frame. The sender identity always
// comes from the connection, never from the payload. The socket outlives
// its upgrade request, so store write-throughs get their own bounded
// context rather than the request's.
func (h *SessionHandler) dispatch(c *Client, raw []byte) {
	ctx, cancel := pkgcontext.WithStoreTimeout(context.Background())
	defer cancel()

	parsed, err := protocol.ParseClientMessage(raw)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordWebSocketError("invalid_message")
		}
		c.sendError(string(apperrors.ErrCodeInvalidInput), err.Error())
		return
	}

	var msgType protocol.MessageType
	switch m := parsed.(type) {
	case protocol.JoinCall:
		msgType = m.Type
		if !h.roomMatches(c, m.RoomID) {
			return
		}
		if err := h.manager.Join(ctx, c.roomID, c.userID, domain.Role(m.Role), c); err != nil {
			appErr := apperrors.GetAppError(err)
			c.sendError(string(appErr.Code), appErr.Message)
		}

	case protocol.LeaveCall:
		msgType = m.Type
		if !h.roomMatches(c, m.RoomID) {
			return
		}
		h.manager.Leave(ctx, c.roomID, c.userID)

	case protocol.ToggleAudio:
		msgType = m.Type
		if !h.roomMatches(c, m.RoomID) {
			return
		}
		h.manager.ToggleAudio(ctx, c.roomID, c.userID, m.Enabled)

	case protocol.ToggleVideo:
		msgType = m.Type
		if !h.roomMatches(c, m.RoomID) {
			return
		}
		h.manager.ToggleVideo(ctx, c.roomID, c.userID, m.Enabled)

	case protocol.ChatSend:
		msgType = m.Type
		if !h.roomMatches(c, m.RoomID) {
			return
		}
		h.manager.Chat(ctx, c.roomID, c.userID, m.Body)

	case protocol.Signal:
		msgType = m.Type
		if !h.roomMatches(c, m.RoomID) {
			return
		}
		h.manager.Signal(ctx, c.roomID, c.userID, m.ToUserID, m.Type, m.Payload)
	}

	if h.metrics != nil && msgType != "" {
		h.metrics.RecordWebSocketMessage(string(msgType), "inbound")
	}
}

// roomMatches rejects frames addressed to a different room than the one
// this connection was opened for. An empty room_id means the socket's room.
func (h *SessionHandler) roomMatches(c *Client, roomID string) bool {
	if roomID == "" || roomID == c.roomID {
		return true
	}
	c.sendError(string(apperrors.ErrCodeValidation), "room_id does not match this connection")
	return false
}

func (h *SessionHandler) refreshPresence(c *Client) {
	ctx, cancel := pkgcontext.WithShortTimeout(context.Background())
	defer cancel()

	if err := h.presence.Refresh(ctx, c.userID); err != nil {
		logger.Debug("Presence refresh failed",
			zap.String("user_id", c.userID.String()),
			zap.Error(err))
	}
}

// disconnect unwinds one closed socket. Presence goes offline only when
// this was the user's live connection; a superseded socket closing leaves
// the replacement's presence untouched.
func (h *SessionHandler) disconnect(c *Client) {
	ctx, cancel := pkgcontext.WithStoreTimeout(context.Background())
	defer cancel()

	userID, live := h.manager.Disconnect(ctx, c)
	if live {
		if err := h.presence.SetOffline(ctx, userID); err != nil {
			logger.Warn("Failed to mark user offline",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
		logger.Info("Signaling connection closed",
			zap.String("room_id", c.roomID),
			zap.String("user_id", userID.String()))
	}

	if h.metrics != nil {
		h.metrics.DecrementWebSocketConnections()
	}
	c.closeConn()
}
