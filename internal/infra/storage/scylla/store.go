package scylla

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"takeover/internal/domain/chat"
)

const previewLimit = 500

// Store implements chat.Store on top of Scylla.
type Store struct {
	session *gocql.Session
	logger  *slog.Logger
}

// NewStore builds a Store.
func NewStore(session *gocql.Session, logger *slog.Logger) *Store {
	return &Store{session: session, logger: logger}
}

// GetOrCreateConversation returns the existing thread for the listing and
// participant pair or inserts a new one.
func (s *Store) GetOrCreateConversation(ctx context.Context, listingID string, participants []string, now time.Time) (*chat.Conversation, bool, error) {
	if s.session == nil {
		return nil, false, errors.New("scylla session not initialized")
	}
	normalized := chat.NormalizeParticipants(participants)

	existing, err := s.findByListing(ctx, listingID, normalized)
	if err != nil && err != gocql.ErrNotFound {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	id := gocql.TimeUUID()
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	if err := s.session.
		Query(`INSERT INTO conversations (id, listing_id, participants, created_at, last_message_text) VALUES (?, ?, ?, ?, ?)`,
			id, listingID, normalized, now, "").
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec(); err != nil {
		return nil, false, err
	}
	return &chat.Conversation{
		ID:           id.String(),
		ListingID:    listingID,
		Participants: normalized,
		CreatedAt:    now,
	}, true, nil
}

func (s *Store) findByListing(ctx context.Context, listingID string, normalized []string) (*chat.Conversation, error) {
	iter := s.session.
		Query(`SELECT id, listing_id, participants, created_at, last_message_at, last_message_text, last_sender_id FROM conversations WHERE listing_id = ? ALLOW FILTERING`, listingID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()

	var row conversationRow
	for iter.Scan(&row.ID, &row.ListingID, &row.Participants, &row.CreatedAt, &row.LastMessageAt, &row.LastMessageText, &row.LastSenderID) {
		if chat.SameParticipants(row.Participants, normalized) {
			conv := row.toDomain()
			if err := iter.Close(); err != nil {
				return nil, err
			}
			return &conv, nil
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return nil, gocql.ErrNotFound
}

// GetConversation loads a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	uuid, err := gocql.ParseUUID(strings.TrimSpace(id))
	if err != nil {
		return nil, chat.ErrNotFound
	}
	var row conversationRow
	if err := s.session.
		Query(`SELECT id, listing_id, participants, created_at, last_message_at, last_message_text, last_sender_id FROM conversations WHERE id = ? LIMIT 1`, uuid).
		WithContext(ctx).
		Consistency(gocql.One).
		Scan(&row.ID, &row.ListingID, &row.Participants, &row.CreatedAt, &row.LastMessageAt, &row.LastMessageText, &row.LastSenderID); err != nil {
		if err == gocql.ErrNotFound {
			return nil, chat.ErrNotFound
		}
		return nil, err
	}
	conv := row.toDomain()
	return &conv, nil
}

// ListConversations returns the user's conversations, newest activity first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	iter := s.session.
		Query(`SELECT id, listing_id, participants, created_at, last_message_at, last_message_text, last_sender_id FROM conversations WHERE participants CONTAINS ? ALLOW FILTERING`, userID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()

	conversations := make([]chat.Conversation, 0)
	var row conversationRow
	for iter.Scan(&row.ID, &row.ListingID, &row.Participants, &row.CreatedAt, &row.LastMessageAt, &row.LastMessageText, &row.LastSenderID) {
		conversations = append(conversations, row.toDomain())
		row = conversationRow{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastActivity().After(conversations[j].LastActivity())
	})
	return conversations, nil
}

// AddMessage appends a message and updates the conversation projection.
func (s *Store) AddMessage(ctx context.Context, conversationID, senderID, content string, at time.Time) (*chat.Message, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	convUUID, err := gocql.ParseUUID(strings.TrimSpace(conversationID))
	if err != nil {
		return nil, chat.ErrNotFound
	}
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	messageID := gocql.TimeUUID()
	if err := s.session.
		Query(`INSERT INTO messages (conversation_id, message_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			convUUID, messageID, senderID, content, at).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec(); err != nil {
		return nil, err
	}
	// best-effort update of the last-message projection
	if err := s.session.
		Query(`UPDATE conversations SET last_message_at = ?, last_message_text = ?, last_sender_id = ? WHERE id = ?`,
			at, trimPreview(content, previewLimit), senderID, convUUID).
		WithContext(ctx).
		Consistency(gocql.One).
		Exec(); err != nil && s.logger != nil {
		s.logger.Warn("failed to update last message meta", "error", err, "conversation_id", conversationID)
	}
	return &chat.Message{
		ID:             messageID.String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      at,
	}, nil
}

// ListMessages returns the full thread, oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	convUUID, err := gocql.ParseUUID(strings.TrimSpace(conversationID))
	if err != nil {
		return nil, chat.ErrNotFound
	}
	iter := s.session.
		Query(`SELECT conversation_id, message_id, sender_id, content, created_at FROM messages WHERE conversation_id = ? ORDER BY message_id ASC`, convUUID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()

	messages := make([]chat.Message, 0)
	var (
		cID       gocql.UUID
		messageID gocql.UUID
		sender    string
		content   string
		createdAt time.Time
	)
	for iter.Scan(&cID, &messageID, &sender, &content, &createdAt) {
		messages = append(messages, chat.Message{
			ID:             messageID.String(),
			ConversationID: cID.String(),
			SenderID:       sender,
			Content:        content,
			CreatedAt:      createdAt,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return messages, nil
}

type conversationRow struct {
	ID              gocql.UUID
	ListingID       string
	Participants    []string
	CreatedAt       time.Time
	LastMessageAt   time.Time
	LastMessageText string
	LastSenderID    string
}

func (r conversationRow) toDomain() chat.Conversation {
	return chat.Conversation{
		ID:              r.ID.String(),
		ListingID:       r.ListingID,
		Participants:    append([]string(nil), r.Participants...),
		CreatedAt:       r.CreatedAt,
		LastMessageAt:   r.LastMessageAt,
		LastMessageText: r.LastMessageText,
		LastSenderID:    r.LastSenderID,
	}
}

func trimPreview(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}

var _ chat.Store = (*Store)(nil)
