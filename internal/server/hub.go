// Package server provides the live-update fanout: named subscriber rooms
// and the websocket endpoint that feeds them.
package server

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SidebarRoom is the distinguished room for inbox-level updates. It is the
// only cached room: late joiners immediately receive the last broadcast so
// they never show stale state.
const SidebarRoom = "sidebar"

// ChatRoom returns the room name for a chat's event stream.
func ChatRoom(chatID string) string {
	return "chat_" + chatID
}

// Subscriber is one live viewer connection. Send must not block
// indefinitely; a failed send removes the subscriber from the room.
type Subscriber interface {
	ID() uuid.UUID
	Send(payload []byte) error
}

// Hub maintains subscriber rooms and delivers events to them.
// Delivery is best-effort, independent per subscriber, at most once.
type Hub struct {
	logger *zap.Logger

	mu           sync.RWMutex
	rooms        map[string]map[uuid.UUID]Subscriber
	sidebarCache []byte
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		rooms:  make(map[string]map[uuid.UUID]Subscriber),
	}
}

// Join adds a subscriber to a room. Joining the sidebar room replays the
// cached last payload before any further events.
func (h *Hub) Join(roomID string, sub Subscriber) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[uuid.UUID]Subscriber)
		h.rooms[roomID] = room
	}
	room[sub.ID()] = sub
	var replay []byte
	if roomID == SidebarRoom && h.sidebarCache != nil {
		replay = h.sidebarCache
	}
	h.mu.Unlock()

	if replay != nil {
		if err := sub.Send(replay); err != nil {
			h.Leave(roomID, sub)
		}
	}
}

// Leave removes a subscriber from a room. Empty rooms are deleted.
func (h *Hub) Leave(roomID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[roomID]; ok {
		delete(room, sub.ID())
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Broadcast delivers a JSON payload to every subscriber in a room.
// Subscribers whose send fails are removed and delivery continues.
// Sidebar broadcasts update the replay cache even when the room is empty.
func (h *Hub) Broadcast(roomID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast payload",
			zap.String("room", roomID), zap.Error(err))
		return
	}

	h.mu.Lock()
	if roomID == SidebarRoom {
		h.sidebarCache = data
	}
	room := h.rooms[roomID]
	subs := make([]Subscriber, 0, len(room))
	for _, s := range room {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		if err := s.Send(data); err != nil {
			h.logger.Debug("dropping unreachable subscriber",
				zap.String("room", roomID), zap.String("subscriber", s.ID().String()))
			h.Leave(roomID, s)
		}
	}
}

// IsActive reports whether any subscriber is connected to a chat's room.
func (h *Hub) IsActive(chatID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[ChatRoom(chatID)]) > 0
}
