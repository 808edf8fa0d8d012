package ws

import (
	"sync"
)

// Hub tracks live connections, room membership, and user registrations.
// Rooms are keyed by conversation id; a connection may only occupy one room
// at a time, so joining a new room implicitly leaves the previous one.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
	users map[string]map[*Conn]struct{}
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*Conn]struct{}),
		users: make(map[string]map[*Conn]struct{}),
	}
}

// JoinRoom moves the connection into the conversation's room, leaving any
// room it previously occupied.
func (h *Hub) JoinRoom(conversationID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.room == conversationID {
		return
	}
	h.leaveRoomLocked(c)
	members, ok := h.rooms[conversationID]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[conversationID] = members
	}
	members[c] = struct{}{}
	c.room = conversationID
}

// LeaveRoom removes the connection from the named room if it is a member.
func (h *Hub) LeaveRoom(conversationID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.room != conversationID {
		return
	}
	h.leaveRoomLocked(c)
}

func (h *Hub) leaveRoomLocked(c *Conn) {
	if c.room == "" {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

// Register binds the connection to a user id for notification delivery.
func (h *Hub) Register(userID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.users[userID]
	if !ok {
		conns = make(map[*Conn]struct{})
		h.users[userID] = conns
	}
	conns[c] = struct{}{}
	c.userID = userID
}

// Remove detaches the connection from its room and registration; called once
// when the connection closes.
func (h *Hub) Remove(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(c)
	if c.userID != "" {
		if conns, ok := h.users[c.userID]; ok {
			delete(conns, c)
			if len(conns) == 0 {
				delete(h.users, c.userID)
			}
		}
	}
}

// BroadcastRoom delivers the frame to every member of the conversation room.
func (h *Hub) BroadcastRoom(conversationID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[conversationID] {
		c.Send(frame)
	}
}

// NotifyUser delivers the frame to every registered connection of the user.
func (h *Hub) NotifyUser(userID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.users[userID] {
		c.Send(frame)
	}
}

// RoomSize reports current membership, used by tests and the readiness probe.
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}
