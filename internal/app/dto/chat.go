package dto

import "time"

// ListingRef identifies the listing a conversation is scoped to.
type ListingRef struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	OwnerID string `json:"ownerUserId,omitempty"`
}

// ParticipantRef is one side of a conversation.
type ParticipantRef struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Conversation describes one chat thread. The two participant slots are
// fixed; clients resolve "the other participant" against the signed-in user.
type Conversation struct {
	ID              string         `json:"id"`
	Listing         ListingRef     `json:"listing"`
	Participant1    ParticipantRef `json:"participant1"`
	Participant2    ParticipantRef `json:"participant2"`
	CreatedAt       time.Time      `json:"createdAt"`
	LastMessage     string         `json:"lastMessage,omitempty"`
	LastMessageTime *time.Time     `json:"lastMessageTime,omitempty"`
}

// Message is one chat entry on the wire. CorrelationID round-trips the
// client-generated id so senders can match the broadcast echo against their
// optimistic copy.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	Content        string         `json:"content"`
	Sender         ParticipantRef `json:"sender"`
	CreatedAt      time.Time      `json:"createdAt"`
	CorrelationID  string         `json:"correlationId,omitempty"`
}

// MessageHistory wraps a full thread fetch.
type MessageHistory struct {
	Messages []Message `json:"messages"`
}

// GetOrCreateConversationRequest is the idempotent creation payload.
type GetOrCreateConversationRequest struct {
	ListingID  string `json:"listingId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// UserScopedRequest carries the requesting user's id in the body, matching
// the conversation and message history endpoints.
type UserScopedRequest struct {
	ID string `json:"id"`
}

// Notification is the out-of-band alert pushed over the live channel; its
// persistence belongs to the notification service.
type Notification struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId,omitempty"`
	ListingID      string    `json:"listingId,omitempty"`
	SenderName     string    `json:"senderName,omitempty"`
	Preview        string    `json:"preview,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
