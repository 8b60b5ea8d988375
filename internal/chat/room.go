package chat

import "sync"

// Room is the in-process registry of live sessions for one group. It is the
// authority for the first-join and last-leave edges: both are decided under
// the room lock, in the same critical section as the registry mutation, so
// two sessions of the same user racing join/leave can never both observe an
// edge.
type Room struct {
	groupID string

	mu       sync.RWMutex
	sessions map[string]*Session            // sessionID -> session
	byUser   map[string]map[string]*Session // userID -> sessionID -> session
}

func newRoom(groupID string) *Room {
	return &Room{
		groupID:  groupID,
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]*Session),
	}
}

// add registers the session and reports whether this was the user's first
// live session in the room, plus the live session count after the add.
// Re-joining with a session already present is a no-op and never an edge.
func (r *Room) add(s *Session) (firstJoin bool, live int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return false, len(r.sessions)
	}
	firstJoin = len(r.byUser[s.UserID]) == 0
	r.sessions[s.ID] = s
	m := r.byUser[s.UserID]
	if m == nil {
		m = make(map[string]*Session)
		r.byUser[s.UserID] = m
	}
	m[s.ID] = s
	return firstJoin, len(r.sessions)
}

// remove deregisters the session. present reports whether it was registered
// at all; lastLeave whether this was the user's last live session in the
// room; live is the session count after the removal.
func (r *Room) remove(s *Session) (present, lastLeave bool, live int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return false, false, len(r.sessions)
	}
	delete(r.sessions, s.ID)
	m := r.byUser[s.UserID]
	delete(m, s.ID)
	if len(m) == 0 {
		delete(r.byUser, s.UserID)
		lastLeave = true
	}
	return true, lastLeave, len(r.sessions)
}

// has reports whether the session is currently joined.
func (r *Room) has(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[sessionID]
	return ok
}

// size returns the live session count.
func (r *Room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// users returns the distinct user ids with at least one live session.
func (r *Room) users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		out = append(out, u)
	}
	return out
}

// broadcast fans a pre-marshaled frame out to every session except exclude.
// Individual send failures are swallowed; a failed session tears itself down
// through its own disconnect path.
func (r *Room) broadcast(frame []byte, excludeSessionID string) {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id == excludeSessionID {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.RUnlock()
	for _, s := range targets {
		s.trySend(frame)
	}
}
