package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"takeover/internal/app/dto"
	"takeover/internal/domain/chat"
	"takeover/internal/infra/broker/kafka"
	catalogdb "takeover/internal/infra/db/mongo"
	"takeover/internal/infra/storage/s3"
)

// ChatHTTP exposes the conversation and message endpoints.
type ChatHTTP interface {
	GetOrCreateConversation(c *gin.Context)
	ListConversations(c *gin.Context)
	ListMessages(c *gin.Context)
}

// ChatHandler bridges HTTP with the chat store and catalog.
type ChatHandler struct {
	Store   chat.Store
	Catalog *catalogdb.Catalog
	Avatars s3.AvatarResolver
	Events  *kafka.ChatEvents
	Logger  *slog.Logger
}

// GetOrCreateConversation returns the existing thread for a listing and
// counterparty or creates one; creation is idempotent per pair.
func (h ChatHandler) GetOrCreateConversation(c *gin.Context) {
	principal, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.GetOrCreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.ListingID = strings.TrimSpace(req.ListingID)
	req.ReceiverID = strings.TrimSpace(req.ReceiverID)
	if req.ListingID == "" || req.ReceiverID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listingId and receiverId are required"})
		return
	}
	senderID := principal.ID
	if req.SenderID != "" && req.SenderID != senderID {
		c.JSON(http.StatusForbidden, gin.H{"error": "senderId must match the authenticated user"})
		return
	}
	if req.ReceiverID == senderID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start chat with yourself"})
		return
	}

	var listing *catalogdb.Listing
	if h.Catalog != nil {
		var err error
		listing, err = h.Catalog.ListingByID(c.Request.Context(), req.ListingID)
		if err != nil {
			if errors.Is(err, catalogdb.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
				return
			}
			h.logError("listing lookup failed", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load listing"})
			return
		}
	}

	conv, created, err := h.Store.GetOrCreateConversation(
		c.Request.Context(), req.ListingID, []string{senderID, req.ReceiverID}, time.Now())
	if err != nil {
		h.logError("get-or-create conversation failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot create conversation"})
		return
	}
	if created {
		h.Events.ConversationCreated(c.Request.Context(), *conv)
	}

	c.JSON(http.StatusOK, h.decorate(c.Request.Context(), []chat.Conversation{*conv}, listing)[0])
}

// ListConversations returns every conversation for the requesting user,
// newest activity first, decorated with listing and participant details.
func (h ChatHandler) ListConversations(c *gin.Context) {
	principal, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.UserScopedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if req.ID != "" && req.ID != principal.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot list another user's conversations"})
		return
	}

	conversations, err := h.Store.ListConversations(c.Request.Context(), principal.ID)
	if err != nil {
		h.logError("list conversations failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load conversations"})
		return
	}
	c.JSON(http.StatusOK, h.decorate(c.Request.Context(), conversations, nil))
}

// ListMessages returns the full thread for participants only.
func (h ChatHandler) ListMessages(c *gin.Context) {
	principal, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("conversationId"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	var req dto.UserScopedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	conv, err := h.Store.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		h.logError("load conversation failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load conversation"})
		return
	}
	if !conv.HasParticipant(principal.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
		return
	}

	messages, err := h.Store.ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		h.logError("list messages failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load messages"})
		return
	}

	names := h.participantNames(c.Request.Context(), conv.Participants)
	history := dto.MessageHistory{Messages: make([]dto.Message, 0, len(messages))}
	for _, msg := range messages {
		history.Messages = append(history.Messages, dto.Message{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			Content:        msg.Content,
			Sender:         dto.ParticipantRef{ID: msg.SenderID, Name: names[msg.SenderID]},
			CreatedAt:      msg.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, history)
}

// decorate maps domain conversations to wire shape, attaching listing titles,
// participant names and avatar URLs when the catalog is configured.
func (h ChatHandler) decorate(ctx context.Context, conversations []chat.Conversation, known *catalogdb.Listing) []dto.Conversation {
	userIDs := make([]string, 0, len(conversations)*2)
	for _, conv := range conversations {
		userIDs = append(userIDs, conv.Participants...)
	}
	users := h.usersByIDs(ctx, userIDs)

	listingTitles := make(map[string]catalogdb.Listing)
	if known != nil {
		listingTitles[known.ID] = *known
	}

	out := make([]dto.Conversation, 0, len(conversations))
	for _, conv := range conversations {
		listing := dto.ListingRef{ID: conv.ListingID}
		if entry, ok := listingTitles[conv.ListingID]; ok {
			listing.Title = entry.Title
			listing.OwnerID = entry.OwnerID
		} else if h.Catalog != nil && conv.ListingID != "" {
			if loaded, err := h.Catalog.ListingByID(ctx, conv.ListingID); err == nil {
				listingTitles[conv.ListingID] = *loaded
				listing.Title = loaded.Title
				listing.OwnerID = loaded.OwnerID
			}
		}

		item := dto.Conversation{
			ID:           conv.ID,
			Listing:      listing,
			Participant1: h.participantRef(ctx, conv.Participants, 0, users),
			Participant2: h.participantRef(ctx, conv.Participants, 1, users),
			CreatedAt:    conv.CreatedAt,
			LastMessage:  conv.LastMessageText,
		}
		if !conv.LastMessageAt.IsZero() {
			at := conv.LastMessageAt
			item.LastMessageTime = &at
		}
		out = append(out, item)
	}
	return out
}

func (h ChatHandler) participantRef(ctx context.Context, participants []string, slot int, users map[string]catalogdb.User) dto.ParticipantRef {
	if slot >= len(participants) {
		return dto.ParticipantRef{}
	}
	id := participants[slot]
	ref := dto.ParticipantRef{ID: id}
	user, ok := users[id]
	if !ok {
		return ref
	}
	ref.Name = user.Name
	if h.Avatars != nil && user.AvatarKey != "" {
		if avatarURL, err := h.Avatars.AvatarURL(ctx, user.AvatarKey); err == nil {
			ref.AvatarURL = avatarURL
		}
	}
	return ref
}

func (h ChatHandler) usersByIDs(ctx context.Context, ids []string) map[string]catalogdb.User {
	if h.Catalog == nil || len(ids) == 0 {
		return map[string]catalogdb.User{}
	}
	users, err := h.Catalog.UsersByIDs(ctx, ids)
	if err != nil {
		h.logError("user lookup failed", err)
		return map[string]catalogdb.User{}
	}
	return users
}

func (h ChatHandler) participantNames(ctx context.Context, participants []string) map[string]string {
	names := make(map[string]string, len(participants))
	for id, user := range h.usersByIDs(ctx, participants) {
		names[id] = user.Name
	}
	return names
}

func (h ChatHandler) logError(msg string, err error) {
	if h.Logger != nil {
		h.Logger.Error(msg, "error", err)
	}
}

var _ ChatHTTP = (*ChatHandler)(nil)
