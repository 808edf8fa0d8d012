package chatclient

import (
	"testing"
	"time"

	"takeover/internal/app/dto"
)

func TestThreadReplaceDiscardsPreviousState(t *testing.T) {
	th := NewThread()
	th.Replace("a", []dto.Message{msgAt("a", "hi", time.Now())})
	th.AppendOptimistic("alice", "pending", "corr-1")

	// Switching threads drops the unsettled optimistic entry with the rest.
	th.Replace("b", []dto.Message{msgAt("b", "other", time.Now())})

	msgs := th.Messages()
	if th.ConversationID() != "b" {
		t.Fatalf("open thread = %q, want b", th.ConversationID())
	}
	if len(msgs) != 1 || msgs[0].Content != "other" {
		t.Fatalf("messages = %v", msgs)
	}
}

func TestThreadOptimisticAppendKeepsOrder(t *testing.T) {
	th := NewThread()
	th.Replace("a", []dto.Message{msgAt("a", "hi", time.Now().Add(-time.Minute))})
	th.AppendOptimistic("alice", "sending now", "corr-1")

	msgs := th.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	last := msgs[1]
	if last.Content != "sending now" || last.CorrelationID != "corr-1" {
		t.Fatalf("optimistic entry = %+v", last)
	}
	if last.ID != "" {
		t.Fatal("optimistic entry should not have a server id yet")
	}
}

func TestThreadEchoReplacesPlaceholder(t *testing.T) {
	th := NewThread()
	th.Replace("a", nil)
	th.AppendOptimistic("alice", "hello", "corr-1")

	serverTime := time.Now().Add(time.Second)
	th.ApplyInbound(dto.Message{
		ID:             "srv-1",
		ConversationID: "a",
		Content:        "hello",
		Sender:         dto.ParticipantRef{ID: "alice", Name: "Alice"},
		CreatedAt:      serverTime,
		CorrelationID:  "corr-1",
	})

	msgs := th.Messages()
	if len(msgs) != 1 {
		t.Fatalf("echo duplicated the message: %d entries", len(msgs))
	}
	if msgs[0].ID != "srv-1" {
		t.Fatalf("id = %q, want srv-1", msgs[0].ID)
	}
	if !msgs[0].CreatedAt.Equal(serverTime) {
		t.Fatal("placeholder kept the client timestamp")
	}
}

func TestThreadInboundIgnoresOtherConversations(t *testing.T) {
	th := NewThread()
	th.Replace("a", nil)

	th.ApplyInbound(msgAt("b", "wrong room", time.Now()))

	if len(th.Messages()) != 0 {
		t.Fatal("message for another conversation leaked into the thread")
	}
}

func TestThreadInboundFromOtherPartyAppends(t *testing.T) {
	th := NewThread()
	th.Replace("a", nil)

	th.ApplyInbound(dto.Message{
		ID:             "srv-2",
		ConversationID: "a",
		Content:        "hey there",
		Sender:         dto.ParticipantRef{ID: "bob"},
		CreatedAt:      time.Now(),
	})

	msgs := th.Messages()
	if len(msgs) != 1 || msgs[0].Content != "hey there" {
		t.Fatalf("messages = %v", msgs)
	}
}

func TestThreadMutationHookFiresOnEveryChange(t *testing.T) {
	th := NewThread()
	var fired int
	th.OnMutate(func() { fired++ })

	th.Replace("a", nil)
	th.AppendOptimistic("alice", "one", "corr-1")
	th.ApplyInbound(dto.Message{ID: "srv-1", ConversationID: "a", Content: "one", CorrelationID: "corr-1"})
	th.ApplyInbound(msgAt("b", "ignored", time.Now()))

	if fired != 3 {
		t.Fatalf("hook fired %d times, want 3", fired)
	}
}
