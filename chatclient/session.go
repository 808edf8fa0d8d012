package chatclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"takeover/internal/app/dto"
	"takeover/internal/infra/ws"
)

// SessionConfig describes how to reach the live channel.
type SessionConfig struct {
	// URL is the websocket endpoint, e.g. "ws://localhost:8080/ws".
	URL   string
	Token string

	// RedialInterval is the pause between reconnect attempts. Zero means
	// 3 seconds.
	RedialInterval time.Duration

	Logger *slog.Logger
}

// Session is one live connection to the chat service. It is an owned
// resource: the caller that dials it closes it. A session is member of at
// most one conversation room at a time.
type Session struct {
	cfg    SessionConfig
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	room      string
	userID    string
	closed    bool
	onMessage func(dto.Message)
	onNotify  func(dto.Notification)

	done chan struct{}
}

// Dial connects to the live channel and starts the read loop. The bearer
// token is presented on the handshake; the server rejects the upgrade when it
// is missing or invalid.
func Dial(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.RedialInterval <= 0 {
		cfg.RedialInterval = 3 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	go s.readLoop(conn)
	return s, nil
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// Close tears the connection down and stops the redial loop.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	if s.conn != nil {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		return s.conn.Close()
	}
	return nil
}

// OnMessage registers the handler for inbound chat messages. Handlers run on
// the read loop goroutine, in delivery order; they filter by conversation id
// themselves.
func (s *Session) OnMessage(handler func(dto.Message)) {
	s.mu.Lock()
	s.onMessage = handler
	s.mu.Unlock()
}

// OnNotification registers the handler for out-of-band notifications.
func (s *Session) OnNotification(handler func(dto.Notification)) {
	s.mu.Lock()
	s.onNotify = handler
	s.mu.Unlock()
}

// JoinRoom enters the conversation room, leaving the previous room first.
// Joining the current room again is a no-op.
func (s *Session) JoinRoom(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == conversationID {
		return nil
	}
	if s.room != "" {
		if err := s.emitLocked(ws.EventLeaveRoom, ws.RoomPayload{ConversationID: s.room}); err != nil {
			return err
		}
	}
	if err := s.emitLocked(ws.EventJoinRoom, ws.RoomPayload{ConversationID: conversationID}); err != nil {
		return err
	}
	s.room = conversationID
	return nil
}

// LeaveRoom exits the conversation room if it is the current one.
func (s *Session) LeaveRoom(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room != conversationID {
		return nil
	}
	if err := s.emitLocked(ws.EventLeaveRoom, ws.RoomPayload{ConversationID: conversationID}); err != nil {
		return err
	}
	s.room = ""
	return nil
}

// Register binds the connection to the user for the notification stream.
func (s *Session) Register(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	return s.emitLocked(ws.EventRegister, ws.RegisterPayload{UserID: userID})
}

// SendMessage emits a message into the room, fire and forget. It returns the
// correlation id assigned to the send so the caller can match the broadcast
// echo against its optimistic copy.
func (s *Session) SendMessage(conversationID, senderID, content string) (string, error) {
	correlationID := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.emitLocked(ws.EventSendMessage, ws.SendMessagePayload{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CorrelationID:  correlationID,
	})
	if err != nil {
		return "", err
	}
	return correlationID, nil
}

func (s *Session) emitLocked(event string, payload any) error {
	if s.conn == nil {
		return websocket.ErrCloseSent
	}
	frame, err := ws.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("live channel read ended", "error", err)
			s.redial()
			return
		}
		var envelope ws.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			s.logger.Debug("unreadable live frame", "error", err)
			continue
		}
		s.dispatch(envelope)
	}
}

func (s *Session) dispatch(envelope ws.Envelope) {
	s.mu.Lock()
	onMessage, onNotify := s.onMessage, s.onNotify
	s.mu.Unlock()

	switch envelope.Event {
	case ws.EventReceiveMessage:
		if onMessage == nil {
			return
		}
		var msg dto.Message
		if err := json.Unmarshal(envelope.Data, &msg); err != nil {
			s.logger.Debug("unreadable message payload", "error", err)
			return
		}
		onMessage(msg)
	case ws.EventNotification:
		if onNotify == nil {
			return
		}
		var notification dto.Notification
		if err := json.Unmarshal(envelope.Data, &notification); err != nil {
			s.logger.Debug("unreadable notification payload", "error", err)
			return
		}
		onNotify(notification)
	}
}

// redial re-establishes the connection in the background. Failures stay
// inside the session: directory and thread consumers never see them.
func (s *Session) redial() {
	for {
		select {
		case <-s.done:
			return
		case <-time.After(s.cfg.RedialInterval):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, err := s.dial(ctx)
		cancel()
		if err != nil {
			s.logger.Debug("live channel redial failed", "error", err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		userID, room := s.userID, s.room
		if userID != "" {
			s.emitLocked(ws.EventRegister, ws.RegisterPayload{UserID: userID})
		}
		if room != "" {
			s.emitLocked(ws.EventJoinRoom, ws.RoomPayload{ConversationID: room})
		}
		s.mu.Unlock()

		go s.readLoop(conn)
		return
	}
}
