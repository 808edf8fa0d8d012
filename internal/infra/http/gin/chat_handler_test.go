package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"takeover/internal/app/dto"
	"takeover/internal/infra/config"
	"takeover/internal/infra/obs"
	"takeover/internal/infra/security"
	"takeover/internal/infra/storage/memory"
)

var testSecret = []byte("test-secret")

func newTestServer(t *testing.T) (*http.Server, *memory.ChatStore) {
	t.Helper()
	store := memory.NewChatStore()
	logger := obs.NewLogger("test")
	handlers := Handlers{
		Chat: ChatHandler{Store: store, Logger: logger},
		AuthMiddleware: AuthMiddleware{
			Verifier: security.TokenVerifier{Secret: testSecret},
			Logger:   logger,
		}.Handle,
	}
	cfg := config.Config{Env: "test", HTTPAddr: ":0"}
	return NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{}, handlers), store
}

func doJSON(t *testing.T, srv *http.Server, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := security.MintToken(testSecret, userID, "User "+userID, time.Minute)
		if err != nil {
			t.Fatalf("mint token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestGetOrCreateConversationRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, "", http.MethodPost, "/api/conversations/get-or-create",
		dto.GetOrCreateConversationRequest{ListingID: "listing-1", ReceiverID: "bob"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestGetOrCreateConversationIdempotent(t *testing.T) {
	srv, _ := newTestServer(t)

	first := doJSON(t, srv, "alice", http.MethodPost, "/api/conversations/get-or-create",
		dto.GetOrCreateConversationRequest{ListingID: "listing-1", ReceiverID: "bob"})
	if first.Code != http.StatusOK {
		t.Fatalf("first call status = %d, body = %s", first.Code, first.Body.String())
	}
	var created dto.Conversation
	if err := json.Unmarshal(first.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode first response: %v", err)
	}
	if created.ID == "" {
		t.Fatal("conversation id is empty")
	}

	// The counterparty asking for the same listing pair must land in the
	// same conversation.
	second := doJSON(t, srv, "bob", http.MethodPost, "/api/conversations/get-or-create",
		dto.GetOrCreateConversationRequest{ListingID: "listing-1", ReceiverID: "alice"})
	if second.Code != http.StatusOK {
		t.Fatalf("second call status = %d, body = %s", second.Code, second.Body.String())
	}
	var existing dto.Conversation
	if err := json.Unmarshal(second.Body.Bytes(), &existing); err != nil {
		t.Fatalf("decode second response: %v", err)
	}
	if existing.ID != created.ID {
		t.Fatalf("conversation id = %q, want %q", existing.ID, created.ID)
	}
}

func TestGetOrCreateConversationRejectsSelfChat(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, "alice", http.MethodPost, "/api/conversations/get-or-create",
		dto.GetOrCreateConversationRequest{ListingID: "listing-1", ReceiverID: "alice"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetOrCreateConversationRejectsSpoofedSender(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, "alice", http.MethodPost, "/api/conversations/get-or-create",
		dto.GetOrCreateConversationRequest{ListingID: "listing-1", SenderID: "mallory", ReceiverID: "bob"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestListConversationsOrdersByActivity(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	older, _, err := store.GetOrCreateConversation(ctx, "listing-1", []string{"alice", "bob"}, base)
	if err != nil {
		t.Fatalf("seed older conversation: %v", err)
	}
	newer, _, err := store.GetOrCreateConversation(ctx, "listing-2", []string{"alice", "carol"}, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("seed newer conversation: %v", err)
	}
	if _, err := store.AddMessage(ctx, older.ID, "bob", "still interested?", base.Add(2*time.Minute)); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	rec := doJSON(t, srv, "alice", http.MethodPost, "/api/conversations", dto.UserScopedRequest{ID: "alice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got []dto.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d conversations, want 2", len(got))
	}
	if got[0].ID != older.ID || got[1].ID != newer.ID {
		t.Fatalf("order = [%s, %s], want [%s, %s]", got[0].ID, got[1].ID, older.ID, newer.ID)
	}
	if got[0].LastMessage != "still interested?" {
		t.Fatalf("lastMessage = %q, want %q", got[0].LastMessage, "still interested?")
	}
	if got[0].LastMessageTime == nil {
		t.Fatal("lastMessageTime is nil after a message")
	}
	if got[1].LastMessageTime != nil {
		t.Fatal("lastMessageTime set for a conversation with no messages")
	}
}

func TestListMessagesOnlyForParticipants(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	now := time.Now()

	conv, _, err := store.GetOrCreateConversation(ctx, "listing-1", []string{"alice", "bob"}, now)
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	if _, err := store.AddMessage(ctx, conv.ID, "alice", "hi", now.Add(time.Second)); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	if _, err := store.AddMessage(ctx, conv.ID, "bob", "hello", now.Add(2*time.Second)); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	rec := doJSON(t, srv, "mallory", http.MethodPost, "/api/messages/"+conv.ID, dto.UserScopedRequest{ID: "mallory"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("outsider status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	rec = doJSON(t, srv, "alice", http.MethodPost, "/api/messages/"+conv.ID, dto.UserScopedRequest{ID: "alice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("participant status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var history dto.MessageHistory
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(history.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(history.Messages))
	}
	if history.Messages[0].Content != "hi" || history.Messages[1].Content != "hello" {
		t.Fatalf("messages out of order: %q then %q", history.Messages[0].Content, history.Messages[1].Content)
	}
}

func TestListMessagesUnknownConversation(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, "alice", http.MethodPost, "/api/messages/nope", dto.UserScopedRequest{ID: "alice"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
