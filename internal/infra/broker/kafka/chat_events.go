package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"takeover/internal/domain/chat"
	"takeover/internal/infra/obs"
)

const (
	topicMessageSent         = "chat.message-sent"
	topicConversationCreated = "chat.conversation-created"
)

// ChatEvents publishes chat domain events for downstream consumers, chiefly
// the notification persistence service. Publishing is best-effort: a broker
// failure never fails the originating send.
type ChatEvents struct {
	Producer    *Producer
	TopicPrefix string
	Logger      *slog.Logger
}

type messageSentEvent struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	RecipientID    string    `json:"recipient_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type conversationCreatedEvent struct {
	ConversationID string    `json:"conversation_id"`
	ListingID      string    `json:"listing_id,omitempty"`
	Participants   []string  `json:"participants"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageSent announces a persisted message.
func (e *ChatEvents) MessageSent(ctx context.Context, msg chat.Message, recipientID string) {
	if e == nil || e.Producer == nil {
		return
	}
	payload, err := json.Marshal(messageSentEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		RecipientID:    recipientID,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	})
	if err != nil {
		return
	}
	e.publish(ctx, topicMessageSent, msg.ConversationID, payload)
}

// ConversationCreated announces a newly created thread.
func (e *ChatEvents) ConversationCreated(ctx context.Context, conv chat.Conversation) {
	if e == nil || e.Producer == nil {
		return
	}
	payload, err := json.Marshal(conversationCreatedEvent{
		ConversationID: conv.ID,
		ListingID:      conv.ListingID,
		Participants:   conv.Participants,
		CreatedAt:      conv.CreatedAt,
	})
	if err != nil {
		return
	}
	e.publish(ctx, topicConversationCreated, conv.ID, payload)
}

func (e *ChatEvents) publish(ctx context.Context, topic, key string, payload []byte) {
	headers := map[string]string{}
	if id := obs.RequestIDFromContext(ctx); id != "" {
		headers["request_id"] = id
	}
	if err := e.Producer.Publish(ctx, e.TopicPrefix+topic, key, payload, headers); err != nil && e.Logger != nil {
		e.Logger.Warn("chat event publish failed", "topic", topic, "key", key, "error", err)
	}
}
