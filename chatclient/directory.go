package chatclient

import (
	"context"
	"sort"
	"sync"
	"time"

	"takeover/internal/app/dto"
)

// ConversationAPI is the REST surface the directory needs. *RestClient
// satisfies it.
type ConversationAPI interface {
	ListConversations(ctx context.Context, userID string) ([]dto.Conversation, error)
	ListMessages(ctx context.Context, conversationID, userID string) ([]dto.Message, error)
}

// RoomJoiner is the live-channel surface the directory needs. *Session
// satisfies it.
type RoomJoiner interface {
	JoinRoom(conversationID string) error
}

// Entry is one directory row: the conversation plus the message its preview
// is derived from.
type Entry struct {
	Conversation dto.Conversation
	LastMessage  *dto.Message
}

// lastActivity is the sort key: zero when the thread has no messages yet, so
// empty threads sink to the bottom.
func (e Entry) lastActivity() time.Time {
	if e.LastMessage == nil {
		return time.Time{}
	}
	return e.LastMessage.CreatedAt
}

// Directory is the user's conversation list, kept sorted by most recent
// activity and patched live as messages arrive.
type Directory struct {
	userID string
	api    ConversationAPI
	live   RoomJoiner

	mu       sync.Mutex
	entries  []Entry
	activeID string
	onChange func([]Entry)
}

// NewDirectory builds an empty directory for the user. live may be nil when
// no websocket session is attached; Select then skips the room join.
func NewDirectory(userID string, api ConversationAPI, live RoomJoiner) *Directory {
	return &Directory{userID: userID, api: api, live: live}
}

// OnChange registers a hook invoked with a snapshot after every reorder.
func (d *Directory) OnChange(hook func([]Entry)) {
	d.mu.Lock()
	d.onChange = hook
	d.mu.Unlock()
}

// Load fetches every conversation and derives each preview from its full
// history, then sorts newest activity first.
func (d *Directory) Load(ctx context.Context) error {
	conversations, err := d.api.ListConversations(ctx, d.userID)
	if err != nil {
		return err
	}

	entries := make([]Entry, 0, len(conversations))
	for _, conv := range conversations {
		entry := Entry{Conversation: conv}
		messages, err := d.api.ListMessages(ctx, conv.ID, d.userID)
		if err != nil {
			return err
		}
		if len(messages) > 0 {
			last := messages[len(messages)-1]
			entry.LastMessage = &last
		}
		entries = append(entries, entry)
	}

	d.mu.Lock()
	d.entries = entries
	d.resortLocked()
	hook, snapshot := d.onChange, d.snapshotLocked()
	d.mu.Unlock()
	if hook != nil {
		hook(snapshot)
	}
	return nil
}

// ApplyInbound patches the preview for an arriving message and bumps the
// conversation to the top, whether or not its thread is open.
func (d *Directory) ApplyInbound(msg dto.Message) {
	d.patch(msg.ConversationID, msg)
}

// ApplyOutbound patches the preview for a message the user just sent.
func (d *Directory) ApplyOutbound(conversationID string, msg dto.Message) {
	d.patch(conversationID, msg)
}

func (d *Directory) patch(conversationID string, msg dto.Message) {
	d.mu.Lock()
	for i := range d.entries {
		if d.entries[i].Conversation.ID != conversationID {
			continue
		}
		entry := msg
		d.entries[i].LastMessage = &entry
		d.entries[i].Conversation.LastMessage = msg.Content
		at := msg.CreatedAt
		d.entries[i].Conversation.LastMessageTime = &at
		break
	}
	d.resortLocked()
	hook, snapshot := d.onChange, d.snapshotLocked()
	d.mu.Unlock()
	if hook != nil {
		hook(snapshot)
	}
}

// Select marks the conversation active, joins its room and returns its full
// history for the thread view to replace with.
func (d *Directory) Select(ctx context.Context, conversationID string) ([]dto.Message, error) {
	d.mu.Lock()
	d.activeID = conversationID
	d.mu.Unlock()

	if d.live != nil {
		if err := d.live.JoinRoom(conversationID); err != nil {
			return nil, err
		}
	}
	return d.api.ListMessages(ctx, conversationID, d.userID)
}

// ActiveID returns the selected conversation, empty when none is open.
func (d *Directory) ActiveID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeID
}

// Entries returns a snapshot of the sorted directory.
func (d *Directory) Entries() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Directory) snapshotLocked() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

func (d *Directory) resortLocked() {
	sort.SliceStable(d.entries, func(i, j int) bool {
		return d.entries[i].lastActivity().After(d.entries[j].lastActivity())
	})
}
