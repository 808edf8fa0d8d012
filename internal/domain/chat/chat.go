package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when a conversation or message does not exist.
var ErrNotFound = errors.New("chat: not found")

// ErrNotParticipant is returned when a user acts on a thread they are not part of.
var ErrNotParticipant = errors.New("chat: not a participant")

// Conversation is a durable pairing of two users scoped to one listing.
// LastMessage* fields are a projection maintained by the store on every
// appended message; they are never written directly by callers.
type Conversation struct {
	ID              string
	ListingID       string
	Participants    []string
	CreatedAt       time.Time
	LastMessageAt   time.Time
	LastMessageText string
	LastSenderID    string
}

// HasParticipant reports whether the user belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant resolves the counterparty for the given user. Participants
// are stored as a normalized pair, so this is a render-time concern.
func (c Conversation) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// LastActivity is the timestamp used for directory ordering: the latest
// message when one exists, else the conversation creation time.
func (c Conversation) LastActivity() time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

// Message is an immutable chat entry. CorrelationID is the client-generated
// id carried through the live transport so a sender can match the broadcast
// echo against its optimistic copy; it is not persisted.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
	CorrelationID  string
}

// Store persists conversations and messages. Implementations must keep
// get-or-create idempotent per (listingID, participant pair) and maintain the
// conversation's last-message projection inside AddMessage.
type Store interface {
	// GetOrCreateConversation returns the existing thread for the listing and
	// participant pair or creates one. The boolean reports creation.
	GetOrCreateConversation(ctx context.Context, listingID string, participants []string, now time.Time) (*Conversation, bool, error)

	// GetConversation loads a conversation by id, ErrNotFound when absent.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns every conversation the user participates in,
	// most recently active first.
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)

	// AddMessage appends a message and bumps the conversation projection.
	AddMessage(ctx context.Context, conversationID, senderID, content string, at time.Time) (*Message, error)

	// ListMessages returns the full thread, oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
}

// NormalizeParticipants trims, dedupes and sorts participant ids so that a
// pair always compares equal regardless of slot order.
func NormalizeParticipants(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SameParticipants compares two participant sets after normalization.
func SameParticipants(a, b []string) bool {
	an := NormalizeParticipants(a)
	bn := NormalizeParticipants(b)
	if len(an) != len(bn) {
		return false
	}
	for i := range an {
		if an[i] != bn[i] {
			return false
		}
	}
	return true
}
