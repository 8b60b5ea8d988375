// Package chat implements the real-time core: the connection gateway, the
// room registry with edge-triggered presence, the typing sub-protocol, and
// the disconnect-cleanup sweep. Transport is a gorilla/websocket connection
// per session; each session owns a single read loop (inbound events for a
// session are handled serially) and a single write pump draining a bounded
// send queue.
package chat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/decidr/decidr-backend/internal/events"
	"github.com/decidr/decidr-backend/internal/metrics"
)

// Session lifecycle states.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosing
	StateClosed
)

const (
	sendQueueSize  = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1 << 20 // 1MB
)

// Session is one authenticated client connection. A user may hold many
// sessions at once (one per device/tab).
type Session struct {
	ID            string
	UserID        string
	UserName      string
	Email         string
	EmailVerified bool

	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}
	state atomic.Int32
	once  sync.Once

	// rooms the session has joined, kept locally so the disconnect sweep
	// still works when the presence cache is degraded.
	mu    sync.Mutex
	rooms map[string]struct{}
}

func newSession(conn *websocket.Conn, userID, userName, email string, emailVerified bool) *Session {
	s := &Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		UserName:      userName,
		Email:         email,
		EmailVerified: emailVerified,
		conn:          conn,
		send:          make(chan []byte, sendQueueSize),
		done:          make(chan struct{}),
		rooms:         make(map[string]struct{}),
	}
	s.state.Store(int32(StateAuthenticating))
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

func (s *Session) casState(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// trySend enqueues a frame without blocking. A full queue means the consumer
// is too slow: the frame is dropped and the connection is torn down, which
// routes the session through the regular disconnect sweep.
func (s *Session) trySend(frame []byte) bool {
	if s.State() >= StateClosing {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		metrics.WsDroppedSends.Inc()
		s.close()
		return false
	}
}

// SendEvent marshals and enqueues an outbound event for this session only.
func (s *Session) SendEvent(event string, payload any) {
	frame, err := events.Marshal(event, payload)
	if err != nil {
		return
	}
	s.trySend(frame)
}

func (s *Session) sendError(code, message string) {
	s.SendEvent(events.OutError, events.ErrorOut{Message: message, Code: code})
}

// close shuts the transport down exactly once. The read loop unblocks with
// an error and runs the disconnect sweep.
func (s *Session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *Session) trackRoom(groupID string) {
	s.mu.Lock()
	s.rooms[groupID] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) untrackRoom(groupID string) {
	s.mu.Lock()
	delete(s.rooms, groupID)
	s.mu.Unlock()
}

func (s *Session) joinedRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for g := range s.rooms {
		out = append(out, g)
	}
	return out
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with pings. It exits when the queue closes, the session is torn
// down, or a write fails.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(frame)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
