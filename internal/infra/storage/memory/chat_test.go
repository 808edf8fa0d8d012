package memory

import (
	"context"
	"testing"
	"time"

	"takeover/internal/domain/chat"
)

func TestGetOrCreateConversationIsIdempotent(t *testing.T) {
	s := NewChatStore()
	ctx := context.Background()

	first, created, err := s.GetOrCreateConversation(ctx, "listing-1", []string{"alice", "bob"}, time.Now())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Error("first call should create")
	}

	// Same pair in the opposite slot order must resolve to the same thread.
	second, created, err := s.GetOrCreateConversation(ctx, "listing-1", []string{"bob", "alice"}, time.Now())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if created {
		t.Error("second call should not create")
	}
	if first.ID != second.ID {
		t.Errorf("got different ids %q and %q for the same pair", first.ID, second.ID)
	}
}

func TestGetOrCreateConversationScopedToListing(t *testing.T) {
	s := NewChatStore()
	ctx := context.Background()

	a, _, err := s.GetOrCreateConversation(ctx, "listing-1", []string{"alice", "bob"}, time.Now())
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, _, err := s.GetOrCreateConversation(ctx, "listing-2", []string{"alice", "bob"}, time.Now())
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if a.ID == b.ID {
		t.Error("conversations on different listings must be distinct")
	}
}

func TestAddMessageUpdatesProjection(t *testing.T) {
	s := NewChatStore()
	ctx := context.Background()

	conv, _, err := s.GetOrCreateConversation(ctx, "listing-1", []string{"alice", "bob"}, time.Now())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	msg, err := s.AddMessage(ctx, conv.ID, "alice", "hello there", at)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if msg.ID == "" {
		t.Error("message id must be assigned")
	}

	reloaded, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.LastMessageAt.Equal(at) {
		t.Errorf("last message time = %v, want %v", reloaded.LastMessageAt, at)
	}
	if reloaded.LastMessageText != "hello there" {
		t.Errorf("last message text = %q", reloaded.LastMessageText)
	}
	if reloaded.LastSenderID != "alice" {
		t.Errorf("last sender = %q", reloaded.LastSenderID)
	}
}

func TestListConversationsOrdering(t *testing.T) {
	s := NewChatStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	a, _, _ := s.GetOrCreateConversation(ctx, "listing-a", []string{"alice", "bob"}, base)
	b, _, _ := s.GetOrCreateConversation(ctx, "listing-b", []string{"alice", "carol"}, base)
	empty, _, _ := s.GetOrCreateConversation(ctx, "listing-c", []string{"alice", "dave"}, base.Add(-time.Hour))

	if _, err := s.AddMessage(ctx, a.ID, "bob", "first", base.Add(10*time.Minute)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.AddMessage(ctx, b.ID, "carol", "second", base.Add(20*time.Minute)); err != nil {
		t.Fatalf("add: %v", err)
	}

	list, err := s.ListConversations(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d conversations, want 3", len(list))
	}
	if list[0].ID != b.ID || list[1].ID != a.ID || list[2].ID != empty.ID {
		t.Errorf("order = [%s %s %s], want [%s %s %s]",
			list[0].ID, list[1].ID, list[2].ID, b.ID, a.ID, empty.ID)
	}
}

func TestListMessagesOldestFirst(t *testing.T) {
	s := NewChatStore()
	ctx := context.Background()
	base := time.Now()

	conv, _, _ := s.GetOrCreateConversation(ctx, "listing-1", []string{"alice", "bob"}, base)
	for i, content := range []string{"one", "two", "three"} {
		if _, err := s.AddMessage(ctx, conv.ID, "alice", content, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("add %q: %v", content, err)
		}
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, want := range []string{"one", "two", "three"} {
		if msgs[i].Content != want {
			t.Errorf("msgs[%d].Content = %q, want %q", i, msgs[i].Content, want)
		}
	}
}

func TestUnknownConversation(t *testing.T) {
	s := NewChatStore()
	ctx := context.Background()

	if _, err := s.GetConversation(ctx, "nope"); err != chat.ErrNotFound {
		t.Errorf("GetConversation err = %v, want ErrNotFound", err)
	}
	if _, err := s.AddMessage(ctx, "nope", "alice", "hi", time.Now()); err != chat.ErrNotFound {
		t.Errorf("AddMessage err = %v, want ErrNotFound", err)
	}
	if _, err := s.ListMessages(ctx, "nope"); err != chat.ErrNotFound {
		t.Errorf("ListMessages err = %v, want ErrNotFound", err)
	}
}

func TestReturnedConversationsAreDetached(t *testing.T) {
	s := NewChatStore()
	ctx := context.Background()

	created, _, err := s.GetOrCreateConversation(ctx, "listing-1", []string{"alice", "bob"}, time.Now())
	if err != nil {
		t.Fatalf("GetOrCreateConversation: %v", err)
	}
	created.Participants[0] = "mallory"

	stored, err := s.GetConversation(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if !stored.HasParticipant("alice") || stored.HasParticipant("mallory") {
		t.Fatalf("caller mutation reached the store: %v", stored.Participants)
	}

	stored.Participants[1] = "mallory"
	list, err := s.ListConversations(ctx, "alice")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(list) != 1 || !list[0].HasParticipant("bob") {
		t.Fatalf("caller mutation reached the store: %v", list[0].Participants)
	}
	list[0].Participants[0] = "mallory"
	again, err := s.GetConversation(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if !again.HasParticipant("alice") {
		t.Fatalf("list mutation reached the store: %v", again.Participants)
	}
}
