package chat

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/decidr/decidr-backend/internal/events"
	"github.com/decidr/decidr-backend/internal/metrics"
)

// Hub owns the room registry. It satisfies the services.Broadcaster contract
// so the message pipeline can fan out without importing this package.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*Room)}
}

// Room returns the live room for a group, creating it on first use.
func (h *Hub) Room(groupID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rooms[groupID]
	if r == nil {
		r = newRoom(groupID)
		h.rooms[groupID] = r
	}
	return r
}

// peek returns the room if it exists, without creating one.
func (h *Hub) peek(groupID string) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[groupID]
}

// dropIfEmpty removes an empty room from the registry. Both locks are held
// so a concurrent join through Room cannot land in a dropped room.
func (h *Hub) dropIfEmpty(groupID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rooms[groupID]
	if r == nil {
		return
	}
	r.mu.Lock()
	empty := len(r.sessions) == 0
	r.mu.Unlock()
	if empty {
		delete(h.rooms, groupID)
	}
}

// Broadcast marshals the event once and fans it out to every live session of
// the room except excludeSessionID. A group with no live room is a no-op.
func (h *Hub) Broadcast(groupID, event string, payload any, excludeSessionID string) {
	r := h.peek(groupID)
	if r == nil {
		return
	}
	frame, err := events.Marshal(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("broadcast marshal failed")
		return
	}
	metrics.WsMessagesTotal.Inc()
	r.broadcast(frame, excludeSessionID)
}

// IsJoined reports whether the session is currently joined to the room.
func (h *Hub) IsJoined(groupID, sessionID string) bool {
	r := h.peek(groupID)
	return r != nil && r.has(sessionID)
}

// LiveCount returns the live session count for a group.
func (h *Hub) LiveCount(groupID string) int {
	r := h.peek(groupID)
	if r == nil {
		return 0
	}
	return r.size()
}
