package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"takeover/internal/app/dto"
	"takeover/internal/domain/chat"
	"takeover/internal/infra/broker/kafka"
	"takeover/internal/infra/presence"
	"takeover/internal/infra/security"
)

// Handler upgrades live-channel connections and dispatches their events.
type Handler struct {
	Hub      *Hub
	Store    chat.Store
	Events   *kafka.ChatEvents
	Presence *presence.Store
	Verifier security.TokenVerifier
	Logger   *slog.Logger

	AllowedOrigins []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessage     int64
}

// Handle serves GET /ws. The connection is bound to the bearer token's
// subject; payload sender ids are ignored in favor of the verified identity.
func (h *Handler) Handle(c *gin.Context) {
	token := security.ExtractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return
	}
	claims, err := h.Verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	upgrader := h.upgrader()
	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket upgrade failed", "error", err, "user_id", claims.Subject)
		}
		return
	}

	conn := newConn(socket, 256, h.Logger)
	writeTimeout := h.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	pingInterval := h.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	go conn.writePump(writeTimeout, pingInterval)

	defer func() {
		h.Hub.Remove(conn)
		if h.Presence != nil && conn.userID != "" {
			_ = h.Presence.Unregister(context.Background(), conn.userID)
		}
		conn.Close()
	}()

	readWait := pingInterval * 2
	if h.MaxMessage > 0 {
		socket.SetReadLimit(h.MaxMessage)
	}
	_ = socket.SetReadDeadline(time.Now().Add(readWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, raw, err := socket.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		ctx := c.Request.Context()
		switch env.Event {
		case EventJoinRoom:
			h.handleJoin(ctx, conn, claims.Subject, env.Data)
		case EventLeaveRoom:
			h.handleLeave(conn, env.Data)
		case EventSendMessage:
			h.handleSend(ctx, conn, claims, env.Data)
		case EventRegister:
			h.handleRegister(conn, env.Data, claims.Subject)
		default:
			// unknown events are ignored
		}
	}
}

func (h *Handler) handleJoin(ctx context.Context, conn *Conn, userID string, data json.RawMessage) {
	var payload RoomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == "" {
		return
	}
	conv, err := h.Store.GetConversation(ctx, payload.ConversationID)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("join for unknown conversation", "conversation_id", payload.ConversationID, "user_id", userID)
		}
		return
	}
	if !conv.HasParticipant(userID) {
		if h.Logger != nil {
			h.Logger.Warn("join rejected for non-participant", "conversation_id", payload.ConversationID, "user_id", userID)
		}
		return
	}
	h.Hub.JoinRoom(conv.ID, conn)
}

func (h *Handler) handleLeave(conn *Conn, data json.RawMessage) {
	var payload RoomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == "" {
		return
	}
	h.Hub.LeaveRoom(payload.ConversationID, conn)
}

func (h *Handler) handleSend(ctx context.Context, conn *Conn, claims *security.Claims, data json.RawMessage) {
	var payload SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	content := strings.TrimSpace(payload.Content)
	if payload.ConversationID == "" || content == "" {
		return
	}
	senderID := claims.Subject
	if payload.SenderID != "" && payload.SenderID != senderID && h.Logger != nil {
		h.Logger.Warn("sender id mismatch, using authenticated identity",
			"claimed", payload.SenderID, "authenticated", senderID)
	}

	conv, err := h.Store.GetConversation(ctx, payload.ConversationID)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("send to unknown conversation", "conversation_id", payload.ConversationID, "error", err)
		}
		return
	}
	if !conv.HasParticipant(senderID) {
		if h.Logger != nil {
			h.Logger.Warn("send rejected for non-participant", "conversation_id", conv.ID, "user_id", senderID)
		}
		return
	}

	msg, err := h.Store.AddMessage(ctx, conv.ID, senderID, content, time.Now())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("message persist failed", "conversation_id", conv.ID, "error", err)
		}
		return
	}

	wire := dto.Message{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		Sender:         dto.ParticipantRef{ID: senderID, Name: claims.Name},
		CreatedAt:      msg.CreatedAt,
		CorrelationID:  payload.CorrelationID,
	}
	frame, err := NewEnvelope(EventReceiveMessage, wire)
	if err != nil {
		return
	}
	h.Hub.BroadcastRoom(conv.ID, frame)

	recipient := conv.OtherParticipant(senderID)
	if recipient != "" {
		h.notify(ctx, recipient, dto.Notification{
			ID:             uuid.NewString(),
			UserID:         recipient,
			Type:           "message",
			ConversationID: conv.ID,
			ListingID:      conv.ListingID,
			SenderName:     claims.Name,
			Preview:        content,
			CreatedAt:      msg.CreatedAt,
		})
	}
	h.Events.MessageSent(ctx, *msg, recipient)
}

func (h *Handler) handleRegister(conn *Conn, data json.RawMessage, authenticatedID string) {
	var payload RegisterPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	userID := payload.UserID
	if userID == "" || userID != authenticatedID {
		userID = authenticatedID
	}
	h.Hub.Register(userID, conn)
	if h.Presence == nil {
		return
	}
	if err := h.Presence.Register(context.Background(), userID); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("presence register failed", "user_id", userID, "error", err)
		}
		return
	}
	// Re-registering refreshes the presence TTL but must not stack another
	// relay, or the connection would receive every notification twice.
	if conn.beginForwarding() {
		go h.forwardNotifications(conn, userID)
	}
}

// forwardNotifications relays cross-instance notification frames to the
// local connection until it closes.
func (h *Handler) forwardNotifications(conn *Conn, userID string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := h.Presence.Subscribe(ctx, userID)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			conn.Send([]byte(msg.Payload))
		case <-conn.done:
			return
		}
	}
}

// notify routes a notification either through Redis pub/sub (multi-instance)
// or straight to locally registered connections.
func (h *Handler) notify(ctx context.Context, userID string, n dto.Notification) {
	frame, err := NewEnvelope(EventNotification, n)
	if err != nil {
		return
	}
	if h.Presence != nil {
		if err := h.Presence.Publish(ctx, userID, frame); err != nil && h.Logger != nil {
			h.Logger.Warn("notification publish failed", "user_id", userID, "error", err)
		}
		return
	}
	h.Hub.NotifyUser(userID, frame)
}

func (h *Handler) upgrader() websocket.Upgrader {
	allowAll := false
	allowed := make(map[string]bool, len(h.AllowedOrigins))
	for _, origin := range h.AllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// non-browser clients send no Origin header
				return true
			}
			return allowed[origin]
		},
	}
}
