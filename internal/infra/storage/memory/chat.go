package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"takeover/internal/domain/chat"
)

// ChatStore is an in-memory chat.Store used in dev mode and tests.
type ChatStore struct {
	mu            sync.RWMutex
	conversations map[string]*chat.Conversation
	messages      map[string][]chat.Message
}

// NewChatStore builds an empty store.
func NewChatStore() *ChatStore {
	return &ChatStore{
		conversations: make(map[string]*chat.Conversation),
		messages:      make(map[string][]chat.Message),
	}
}

// GetOrCreateConversation implements chat.Store.
func (s *ChatStore) GetOrCreateConversation(ctx context.Context, listingID string, participants []string, now time.Time) (*chat.Conversation, bool, error) {
	normalized := chat.NormalizeParticipants(participants)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.conversations {
		if conv.ListingID == listingID && chat.SameParticipants(conv.Participants, normalized) {
			return cloneConversation(conv), false, nil
		}
	}
	if now.IsZero() {
		now = time.Now()
	}
	conv := &chat.Conversation{
		ID:           uuid.NewString(),
		ListingID:    listingID,
		Participants: normalized,
		CreatedAt:    now.UTC(),
	}
	s.conversations[conv.ID] = conv
	return cloneConversation(conv), true, nil
}

// GetConversation implements chat.Store.
func (s *ChatStore) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return cloneConversation(conv), nil
}

// ListConversations implements chat.Store; newest activity first.
func (s *ChatStore) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, *cloneConversation(conv))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity().After(out[j].LastActivity())
	})
	return out, nil
}

// AddMessage implements chat.Store.
func (s *ChatStore) AddMessage(ctx context.Context, conversationID, senderID, content string, at time.Time) (*chat.Message, error) {
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, chat.ErrNotFound
	}
	msg := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      at,
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	conv.LastMessageAt = at
	conv.LastMessageText = content
	conv.LastSenderID = senderID
	return &msg, nil
}

// ListMessages implements chat.Store; oldest first.
func (s *ChatStore) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, chat.ErrNotFound
	}
	return append([]chat.Message(nil), s.messages[conversationID]...), nil
}

// cloneConversation copies the record including its participant slice so a
// caller mutating the result cannot reach the stored state.
func cloneConversation(conv *chat.Conversation) *chat.Conversation {
	clone := *conv
	clone.Participants = append([]string(nil), conv.Participants...)
	return &clone
}

var _ chat.Store = (*ChatStore)(nil)
