package chatclient

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"

	"takeover/internal/app/dto"
	"takeover/internal/domain/chat"
	"takeover/internal/infra/obs"
	"takeover/internal/infra/security"
	"takeover/internal/infra/storage/memory"
	"takeover/internal/infra/ws"
)

var sessionTestSecret = []byte("session-test-secret")

func newLiveServer(t *testing.T) (*httptest.Server, chat.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewChatStore()
	handler := &ws.Handler{
		Hub:          ws.NewHub(),
		Store:        store,
		Verifier:     security.TokenVerifier{Secret: sessionTestSecret},
		Logger:       obs.NewLogger("test"),
		WriteTimeout: time.Second,
		PingInterval: 100 * time.Millisecond,
	}

	router := gin.New()
	router.GET("/ws", handler.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store
}

func dialSession(t *testing.T, srv *httptest.Server, userID string) *Session {
	t.Helper()
	token, err := security.MintToken(sessionTestSecret, userID, "User "+userID, time.Minute)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	session, err := Dial(context.Background(), SessionConfig{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Token:  token,
		Logger: obs.NewLogger("test"),
	})
	if err != nil {
		t.Fatalf("dial session: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func awaitMessage(t *testing.T, ch <-chan dto.Message) dto.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return dto.Message{}
	}
}

func TestSessionDialRequiresToken(t *testing.T) {
	srv, _ := newLiveServer(t)
	_, err := Dial(context.Background(), SessionConfig{
		URL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	})
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
}

func TestSessionSendDeliversToRoomAndEchoesCorrelation(t *testing.T) {
	srv, store := newLiveServer(t)
	conv, _, err := store.GetOrCreateConversation(context.Background(), "listing-1", []string{"alice", "bob"}, time.Now())
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	alice := dialSession(t, srv, "alice")
	bob := dialSession(t, srv, "bob")

	aliceInbox := make(chan dto.Message, 4)
	bobInbox := make(chan dto.Message, 4)
	alice.OnMessage(func(m dto.Message) { aliceInbox <- m })
	bob.OnMessage(func(m dto.Message) { bobInbox <- m })

	if err := alice.JoinRoom(conv.ID); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if err := bob.JoinRoom(conv.ID); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	// Joins are processed by the server read loop; give them a beat before
	// sending into the room.
	time.Sleep(100 * time.Millisecond)

	correlationID, err := alice.SendMessage(conv.ID, "alice", "hello bob")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if correlationID == "" {
		t.Fatal("send returned no correlation id")
	}

	echo := awaitMessage(t, aliceInbox)
	if echo.CorrelationID != correlationID {
		t.Fatalf("echo correlation = %q, want %q", echo.CorrelationID, correlationID)
	}
	if echo.ID == "" {
		t.Fatal("echo has no server id")
	}

	received := awaitMessage(t, bobInbox)
	if received.Content != "hello bob" || received.ConversationID != conv.ID {
		t.Fatalf("bob received %+v", received)
	}

	// The send was persisted, not just broadcast.
	messages, err := store.ListMessages(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "hello bob" {
		t.Fatalf("persisted messages = %v", messages)
	}
}

func TestSessionJoinLeavesPreviousRoom(t *testing.T) {
	srv, store := newLiveServer(t)
	ctx := context.Background()
	first, _, err := store.GetOrCreateConversation(ctx, "listing-1", []string{"alice", "bob"}, time.Now())
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	second, _, err := store.GetOrCreateConversation(ctx, "listing-2", []string{"alice", "carol"}, time.Now())
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	alice := dialSession(t, srv, "alice")
	bob := dialSession(t, srv, "bob")

	aliceInbox := make(chan dto.Message, 4)
	alice.OnMessage(func(m dto.Message) { aliceInbox <- m })

	if err := bob.JoinRoom(first.ID); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	if err := alice.JoinRoom(first.ID); err != nil {
		t.Fatalf("alice join first: %v", err)
	}
	if err := alice.JoinRoom(second.ID); err != nil {
		t.Fatalf("alice join second: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	// Alice moved rooms, so traffic in the first room no longer reaches her.
	if _, err := bob.SendMessage(first.ID, "bob", "anyone here?"); err != nil {
		t.Fatalf("bob send: %v", err)
	}

	select {
	case msg := <-aliceInbox:
		t.Fatalf("alice still receives from the left room: %+v", msg)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSessionNotificationReachesRegisteredUser(t *testing.T) {
	srv, store := newLiveServer(t)
	ctx := context.Background()
	conv, _, err := store.GetOrCreateConversation(ctx, "listing-1", []string{"alice", "bob"}, time.Now())
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	alice := dialSession(t, srv, "alice")
	bob := dialSession(t, srv, "bob")

	notifications := make(chan dto.Notification, 4)
	bob.OnNotification(func(n dto.Notification) { notifications <- n })
	if err := bob.Register("bob"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := alice.JoinRoom(conv.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	// Bob never joined the room: he gets the out-of-band notification.
	if _, err := alice.SendMessage(conv.ID, "alice", "ping"); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case n := <-notifications:
		if n.ConversationID != conv.ID {
			t.Fatalf("notification conversation = %q, want %q", n.ConversationID, conv.ID)
		}
		if n.UserID != "bob" {
			t.Fatalf("notification user = %q, want bob", n.UserID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}
