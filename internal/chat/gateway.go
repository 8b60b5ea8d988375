package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/decidr/decidr-backend/internal/auth"
	"github.com/decidr/decidr-backend/internal/authz"
	"github.com/decidr/decidr-backend/internal/events"
	"github.com/decidr/decidr-backend/internal/metrics"
	"github.com/decidr/decidr-backend/internal/presence"
	"github.com/decidr/decidr-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Gateway accepts websocket connections, authenticates the handshake, and
// dispatches inbound events to the room manager, the message pipeline, and
// the typing sub-protocol.
type Gateway struct {
	Hub      *Hub
	Cache    *presence.Cache
	Tokens   *auth.Manager
	Oracle   *authz.Oracle
	Messages *services.MessageService
	Limiter  *EventLimiter // nil disables throttling
}

// Handler upgrades the request and runs the session until it disconnects.
// The token travels in the Authorization header or the token query parameter.
// Invalid credentials still upgrade, then close immediately with a policy
// violation, so the client sees a websocket close frame rather than a bare
// HTTP error.
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c)
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}

		id, err := g.Tokens.VerifyAccessToken(token)
		if err != nil {
			msg := "authentication failed"
			if errors.Is(err, auth.ErrMissingToken) {
				msg = "missing token"
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		}

		s := newSession(conn, id.UserID, g.Oracle.DisplayName(c.Request.Context(), id.UserID), id.Email, id.EmailVerified)
		s.setState(StateActive)

		metrics.WsConnections.Inc()
		g.Cache.AddUserSocket(context.Background(), s.UserID, s.ID)
		log.Info().Str("userId", s.UserID).Str("sessionId", s.ID).Msg("session connected")

		go s.writePump()
		g.readLoop(s)
	}
}

// errProtocol aborts the read loop with a protocol-error close frame.
var errProtocol = errors.New("malformed frame")

// readLoop consumes inbound frames until the connection dies. Events for one
// session are processed serially, so a join is fully registered before the
// next send is handled.
func (g *Gateway) readLoop(s *Session) {
	defer g.disconnect(s)

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("sessionId", s.ID).Msg("session read error")
			}
			return
		}
		if err := g.dispatch(s, raw); errors.Is(err, errProtocol) {
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseProtocolError, "malformed frame"),
				time.Now().Add(writeWait))
			return
		}
	}
}

// dispatch decodes one inbound frame and routes it. Unknown events are
// ignored; a frame that is not a JSON envelope is a protocol error that
// closes the session. A known event whose payload is missing or mistyped is
// a client bug, not a framing violation: it gets a validation error event on
// the open session.
func (g *Gateway) dispatch(s *Session, raw []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		return errProtocol
	}
	metrics.WsEventsTotal.WithLabelValues(env.Event).Inc()

	if g.Limiter != nil && throttled(env.Event) && !g.Limiter.Allow(s.UserID) {
		s.sendError(events.CodeRateLimited, "too many events, slow down")
		return nil
	}

	decode := func(v any) bool {
		if env.Data == nil || json.Unmarshal(env.Data, v) != nil {
			s.sendError(events.CodeValidation, "invalid payload for "+env.Event)
			return false
		}
		return true
	}

	ctx := context.Background()
	switch env.Event {
	case events.InJoinGroup:
		var in events.GroupRef
		if decode(&in) {
			g.handleJoin(ctx, s, in.GroupID)
		}
	case events.InLeaveGroup:
		var in events.GroupRef
		if decode(&in) {
			g.handleLeave(ctx, s, in.GroupID, true)
		}
	case events.InSendMessage:
		var in events.SendMessageIn
		if decode(&in) {
			g.handleSend(ctx, s, in)
		}
	case events.InTypingStart:
		var in events.GroupRef
		if decode(&in) {
			g.handleTyping(ctx, s, in.GroupID, true)
		}
	case events.InTypingStop:
		var in events.GroupRef
		if decode(&in) {
			g.handleTyping(ctx, s, in.GroupID, false)
		}
	case events.InGetGroupMessages:
		var in events.GetMessagesIn
		if decode(&in) {
			g.handleGetMessages(ctx, s, in)
		}
	case events.InGetRoomInfo:
		var in events.GroupRef
		if decode(&in) {
			g.handleRoomInfo(ctx, s, in.GroupID)
		}
	default:
		// Forward compatibility: unknown events are dropped silently.
	}
	return nil
}

// handleJoin authorizes the user against the group, registers the session in
// the room, mirrors presence into the cache, and announces the user to the
// room when this was their first live session there.
func (g *Gateway) handleJoin(ctx context.Context, s *Session, groupID string) {
	if groupID == "" {
		s.sendError(events.CodeValidation, "groupId is required")
		return
	}
	if _, _, err := g.Oracle.AssertGroupAccess(ctx, s.UserID, groupID); err != nil {
		g.sendAuthzError(s, err)
		return
	}

	room := g.Hub.Room(groupID)
	firstJoin, live := room.add(s)
	s.trackRoom(groupID)
	metrics.RoomJoins.Inc()

	g.Cache.JoinRoom(ctx, s.UserID, groupID, s.ID)

	if firstJoin {
		g.Hub.Broadcast(groupID, events.OutUserJoinedGroup, events.PresenceOut{
			UserID:      s.UserID,
			UserName:    s.UserName,
			GroupID:     groupID,
			MemberCount: live,
		}, s.ID)
	}
	s.SendEvent(events.OutJoinedGroupSuccess, events.JoinLeaveAck{GroupID: groupID, MemberCount: live})
}

// handleLeave deregisters the session from the room. Leaving a room the
// session never joined is a no-op that still acks. The last session of a
// user leaving announces user_left_group to the remaining room.
func (g *Gateway) handleLeave(ctx context.Context, s *Session, groupID string, ack bool) {
	if groupID == "" {
		if ack {
			s.sendError(events.CodeValidation, "groupId is required")
		}
		return
	}

	present, lastLeave, live := false, false, 0
	if room := g.Hub.peek(groupID); room != nil {
		present, lastLeave, live = room.remove(s)
	}
	s.untrackRoom(groupID)

	if present {
		metrics.RoomLeaves.Inc()
		g.Cache.LeaveRoom(ctx, s.UserID, groupID, s.ID, lastLeave)
		if lastLeave {
			g.Cache.ClearTyping(ctx, groupID, s.UserID)
			g.Hub.Broadcast(groupID, events.OutUserLeftGroup, events.PresenceOut{
				UserID:      s.UserID,
				UserName:    s.UserName,
				GroupID:     groupID,
				MemberCount: live,
			}, s.ID)
		}
		g.Hub.dropIfEmpty(groupID)
	}
	if ack {
		s.SendEvent(events.OutLeftGroupSuccess, events.JoinLeaveAck{GroupID: groupID, MemberCount: live})
	}
}

// handleSend runs the message pipeline. Errors map onto the wire taxonomy;
// a failed send produces no broadcast.
func (g *Gateway) handleSend(ctx context.Context, s *Session, in events.SendMessageIn) {
	_, err := g.Messages.Send(ctx, services.SendInput{
		GroupID:   in.GroupID,
		SenderID:  s.UserID,
		SessionID: s.ID,
		Content:   in.Content,
		Type:      in.Type,
		ReplyToID: in.ReplyToID,
	})
	if err != nil {
		s.sendError(wireCode(err), err.Error())
	}
}

// handleTyping relays typing edges to the other joined sessions and keeps
// the TTL'd typing sentinel fresh. Typing requires being joined to the room.
func (g *Gateway) handleTyping(ctx context.Context, s *Session, groupID string, start bool) {
	if groupID == "" || !g.Hub.IsJoined(groupID, s.ID) {
		return
	}
	if start {
		g.Cache.SetTyping(ctx, groupID, s.UserID)
		g.Hub.Broadcast(groupID, events.OutUserTyping, events.TypingOut{
			UserID:   s.UserID,
			UserName: s.UserName,
			GroupID:  groupID,
		}, s.ID)
	} else {
		g.Cache.ClearTyping(ctx, groupID, s.UserID)
		g.Hub.Broadcast(groupID, events.OutUserStoppedTyping, events.StoppedTypingOut{
			UserID:  s.UserID,
			GroupID: groupID,
		}, s.ID)
	}
}

// handleGetMessages serves one page of history back to the requesting
// session only.
func (g *Gateway) handleGetMessages(ctx context.Context, s *Session, in events.GetMessagesIn) {
	page, err := g.Messages.History(ctx, s.UserID, in.GroupID, in.Limit, in.Cursor)
	if err != nil {
		s.sendError(wireCode(err), err.Error())
		return
	}
	s.SendEvent(events.OutGroupMessages, page)
}

// handleRoomInfo reports who is online and typing in the room. It reads the
// cache without refreshing TTLs, falling back to the in-process registry for
// online members when the cache is degraded.
func (g *Gateway) handleRoomInfo(ctx context.Context, s *Session, groupID string) {
	if groupID == "" {
		s.sendError(events.CodeValidation, "groupId is required")
		return
	}
	if _, _, err := g.Oracle.AssertGroupAccess(ctx, s.UserID, groupID); err != nil {
		g.sendAuthzError(s, err)
		return
	}

	online := g.Cache.RoomUsers(ctx, groupID)
	if len(online) == 0 {
		if room := g.Hub.peek(groupID); room != nil {
			online = room.users()
		}
	}
	s.SendEvent(events.OutRoomMembersUpdate, events.RoomInfoOut{
		GroupID:       groupID,
		OnlineMembers: online,
		TypingMembers: g.Cache.TypingUsers(ctx, groupID),
		MemberCount:   len(online),
	})
}

// disconnect is the cleanup sweep for a dying session. It is idempotent: the
// ACTIVE→CLOSING transition is a compare-and-swap, so concurrent close paths
// (read error, write error, send-queue overflow) run it exactly once.
func (g *Gateway) disconnect(s *Session) {
	if !s.casState(StateActive, StateClosing) {
		s.close()
		return
	}
	ctx := context.Background()

	// Typing keys must be swept before the leave loop: a last-session leave
	// clears the room's typing sentinel, and the rooms to notify are only
	// discoverable while the keys still exist.
	for _, groupID := range g.Cache.ClearTypingEverywhere(ctx, s.UserID) {
		g.Hub.Broadcast(groupID, events.OutUserStoppedTyping,
			events.StoppedTypingOut{UserID: s.UserID, GroupID: groupID}, s.ID)
	}

	// The cache set is the primary room list; the local set covers degraded
	// cache mode and rooms the cache missed.
	rooms := make(map[string]struct{})
	for _, groupID := range g.Cache.UserRooms(ctx, s.UserID) {
		rooms[groupID] = struct{}{}
	}
	for _, groupID := range s.joinedRooms() {
		rooms[groupID] = struct{}{}
	}
	for groupID := range rooms {
		g.handleLeave(ctx, s, groupID, false)
	}

	g.Cache.RemoveUserSocket(ctx, s.UserID, s.ID)
	metrics.WsConnections.Dec()

	s.setState(StateClosed)
	s.close()
	log.Info().Str("userId", s.UserID).Str("sessionId", s.ID).Msg("session disconnected")
}

// sendAuthzError maps group-access failures onto the wire taxonomy.
func (g *Gateway) sendAuthzError(s *Session, err error) {
	switch {
	case errors.Is(err, authz.ErrGroupNotFound):
		s.sendError(events.CodeNotFound, "group not found")
	case errors.Is(err, authz.ErrForbidden):
		s.sendError(events.CodeForbidden, "not a member of this group")
	default:
		s.sendError(events.CodeInternal, "internal error")
	}
}

// wireCode maps service errors onto the socket error code taxonomy.
func wireCode(err error) string {
	switch {
	case services.IsValidation(err):
		return events.CodeValidation
	case services.IsForbidden(err):
		return events.CodeForbidden
	case services.IsNotFound(err):
		return events.CodeNotFound
	case services.IsConflict(err):
		return events.CodeConflict
	default:
		return events.CodeInternal
	}
}
