package ws

import "encoding/json"

// Event names on the live channel, client to server.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
	EventRegister    = "register"
)

// Event names on the live channel, server to client.
const (
	EventReceiveMessage = "receiveMessage"
	EventNotification   = "notification"
)

// Envelope frames every payload on the live channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope marshals data into a framed event.
func NewEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// RoomPayload addresses a conversation room.
type RoomPayload struct {
	ConversationID string `json:"conversationId"`
}

// SendMessagePayload is the fire-and-forget message submission.
type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Content        string `json:"content"`
	CorrelationID  string `json:"correlationId,omitempty"`
}

// RegisterPayload binds the connection to a user identity for the
// notification stream.
type RegisterPayload struct {
	UserID string `json:"userId"`
}
