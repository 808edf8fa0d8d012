// Package chatclient is the Go client for the listing chat service. It wraps
// the REST endpoints and the live websocket channel and keeps the two local
// views a chat UI needs, the conversation directory and the open thread.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"takeover/internal/app/dto"
)

// RestClient calls the conversation and message endpoints with a bearer token.
type RestClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewRestClient returns a client for the given API base, e.g.
// "http://localhost:8080".
func NewRestClient(baseURL, token string) *RestClient {
	return &RestClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// GetOrCreateConversation resolves the thread for a listing and counterparty,
// creating it on first contact.
func (c *RestClient) GetOrCreateConversation(ctx context.Context, listingID, senderID, receiverID string) (*dto.Conversation, error) {
	var conv dto.Conversation
	err := c.post(ctx, "/api/conversations/get-or-create", dto.GetOrCreateConversationRequest{
		ListingID:  listingID,
		SenderID:   senderID,
		ReceiverID: receiverID,
	}, &conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations fetches every conversation for the user.
func (c *RestClient) ListConversations(ctx context.Context, userID string) ([]dto.Conversation, error) {
	var conversations []dto.Conversation
	if err := c.post(ctx, "/api/conversations", dto.UserScopedRequest{ID: userID}, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

// ListMessages fetches the full thread, oldest first.
func (c *RestClient) ListMessages(ctx context.Context, conversationID, userID string) ([]dto.Message, error) {
	var history dto.MessageHistory
	err := c.post(ctx, "/api/messages/"+conversationID, dto.UserScopedRequest{ID: userID}, &history)
	if err != nil {
		return nil, err
	}
	return history.Messages, nil
}

func (c *RestClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("chatclient: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("chatclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chatclient: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("chatclient: %s: %s (status %d)", path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("chatclient: %s: unexpected status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chatclient: decode response: %w", err)
	}
	return nil
}
