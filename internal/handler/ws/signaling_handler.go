package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voicelink-backend/internal/domain"
	"voicelink-backend/internal/signaling"
	"voicelink-backend/pkg/constants"
	"voicelink-backend/pkg/errors"
	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// non-browser clients send no Origin
			return true
		}
		for allowed := range allowedOrigins() {
			if origin == allowed {
				return true
			}
		}
		return false
	},
}

func allowedOrigins() map[string]bool {
	origins := map[string]bool{
		"http://localhost:3000": true,
		"http://localhost:8080": true,
		"http://127.0.0.1:3000": true,
		"http://127.0.0.1:8080": true,
	}
	if env := os.Getenv("CORS_ALLOWED_ORIGINS"); env != "" {
		for _, o := range strings.Split(env, ",") {
			origins[strings.TrimSpace(o)] = true
		}
	}
	return origins
}

// PresenceRefresher extends a user's presence TTL while their connection
// stays alive
type PresenceRefresher interface {
	RefreshPresence(ctx context.Context, userID uuid.UUID) error
}

// SignalingHandler upgrades authenticated requests to WebSocket connections
// and feeds their messages into the signaling coordinator
type SignalingHandler struct {
	coordinator *signaling.Coordinator
	presence    PresenceRefresher
	metrics     *metrics.Metrics
}

// NewSignalingHandler creates a new WebSocket signaling handler.
// presence and m may be nil.
func NewSignalingHandler(coordinator *signaling.Coordinator, presence PresenceRefresher, m *metrics.Metrics) *SignalingHandler {
	return &SignalingHandler{
		coordinator: coordinator,
		presence:    presence,
		metrics:     m,
	}
}

// Client is one WebSocket connection owned by an authenticated user.
// It satisfies the coordinator's Conn interface.
type Client struct {
	handler *SignalingHandler
	conn    *websocket.Conn
	send    chan []byte
	userID  uuid.UUID
}

// Send queues data for the connection's write pump. Returns false when the
// send buffer is full, in which case the message is dropped rather than
// blocking the coordinator.
func (c *Client) Send(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ServeWS handles WebSocket upgrade requests
// GET /v1/calls/ws
func (h *SignalingHandler) ServeWS(c *gin.Context) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	client := &Client{
		handler: h,
		conn:    conn,
		send:    make(chan []byte, constants.SendBufferSize),
		userID:  userID,
	}

	h.coordinator.OnConnect(c.Request.Context(), userID, client)
	if h.metrics != nil {
		h.metrics.WebSocketConnected()
	}

	go client.writePump()
	go client.readPump()
}

// readPump reads and dispatches inbound messages until the connection dies
func (c *Client) readPump() {
	defer func() {
		c.handler.coordinator.OnDisconnect(c)
		if c.handler.metrics != nil {
			c.handler.metrics.WebSocketDisconnected()
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(constants.MaxSignalMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval * 2))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval * 2))
		if c.handler.presence != nil {
			ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
			defer cancel()
			c.handler.presence.RefreshPresence(ctx, c.userID)
		}
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			break
		}

		var msg domain.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(uuid.Nil, errors.BadRequestError("malformed message"))
			continue
		}

		if c.handler.metrics != nil {
			c.handler.metrics.RecordWebSocketMessage(msg.Type, "inbound")
		}

		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
		c.dispatch(ctx, &msg)
		cancel()
	}
}

// dispatch routes one inbound message. Rejections go back to this
// connection only; they never touch call state or other connections.
func (c *Client) dispatch(ctx context.Context, msg *domain.SignalMessage) {
	var err error
	switch msg.Type {
	case domain.SignalOffer, domain.SignalAnswer, domain.SignalIceCandidate:
		err = c.handler.coordinator.Relay(ctx, c, msg)
	case domain.SignalCallEnd:
		err = c.handler.coordinator.EndCallFrom(ctx, c, msg.CallID)
	default:
		err = errors.BadRequestError("unsupported signal type: " + msg.Type)
		if c.handler.metrics != nil {
			c.handler.metrics.RecordSignalingError(string(errors.ErrCodeBadRequest))
		}
	}

	if err != nil {
		c.sendError(msg.CallID, err)
	}
}

// errorSignal is the wire shape of a rejection sent back to the sender
type errorSignal struct {
	Type    string    `json:"type"`
	CallID  uuid.UUID `json:"callId,omitempty"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (c *Client) sendError(callID uuid.UUID, err error) {
	appErr := errors.GetAppError(err)
	data, marshalErr := json.Marshal(errorSignal{
		Type:    domain.SignalError,
		CallID:  callID,
		Code:    string(appErr.Code),
		Message: appErr.Message,
	})
	if marshalErr != nil {
		return
	}
	c.Send(data)
	if c.handler.metrics != nil {
		c.handler.metrics.RecordWebSocketMessage(domain.SignalError, "outbound")
	}
}

// writePump writes queued messages and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
