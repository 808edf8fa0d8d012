package chatclient

import (
	"sync"
	"time"

	"takeover/internal/app/dto"
)

// Thread is the open conversation view. Selection replaces its contents
// wholesale; sends append optimistically and the server echo settles them.
type Thread struct {
	mu             sync.Mutex
	conversationID string
	messages       []dto.Message
	onMutate       func()
}

// NewThread returns an empty thread with nothing selected.
func NewThread() *Thread {
	return &Thread{}
}

// OnMutate registers the hook run after every change to the message list.
// The UI uses it to scroll to the latest message.
func (t *Thread) OnMutate(hook func()) {
	t.mu.Lock()
	t.onMutate = hook
	t.mu.Unlock()
}

// Replace discards the current state and shows the given conversation. Any
// unsettled optimistic entries from the previous thread are dropped with it.
func (t *Thread) Replace(conversationID string, messages []dto.Message) {
	t.mu.Lock()
	t.conversationID = conversationID
	t.messages = make([]dto.Message, len(messages))
	copy(t.messages, messages)
	hook := t.onMutate
	t.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// AppendOptimistic adds the just-sent message with a client-clock timestamp.
// The entry keeps the correlation id so the broadcast echo can settle it.
func (t *Thread) AppendOptimistic(senderID, content, correlationID string) {
	t.mu.Lock()
	t.messages = append(t.messages, dto.Message{
		ConversationID: t.conversationID,
		Content:        content,
		Sender:         dto.ParticipantRef{ID: senderID},
		CreatedAt:      time.Now(),
		CorrelationID:  correlationID,
	})
	hook := t.onMutate
	t.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// ApplyInbound folds a live message into the thread. Messages for other
// conversations are ignored. An echo whose correlation id matches an
// optimistic entry replaces that entry in place, adopting the server id and
// timestamp; everything else appends.
func (t *Thread) ApplyInbound(msg dto.Message) {
	t.mu.Lock()
	if msg.ConversationID != t.conversationID || t.conversationID == "" {
		t.mu.Unlock()
		return
	}
	settled := false
	if msg.CorrelationID != "" {
		for i := range t.messages {
			if t.messages[i].CorrelationID == msg.CorrelationID && t.messages[i].ID == "" {
				t.messages[i] = msg
				settled = true
				break
			}
		}
	}
	if !settled {
		t.messages = append(t.messages, msg)
	}
	hook := t.onMutate
	t.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// ConversationID returns the open conversation, empty when none.
func (t *Thread) ConversationID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conversationID
}

// Messages returns a snapshot of the thread, oldest first.
func (t *Thread) Messages() []dto.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]dto.Message, len(t.messages))
	copy(out, t.messages)
	return out
}
