// Package events defines the websocket wire protocol: event names, inbound
// and outbound payload shapes, and the error code taxonomy. Both the socket
// gateway and the service layer marshal against these types, so the wire
// contract lives in one place.
//
// Frames are JSON envelopes: {"event": "...", "data": {...}}. Unknown events
// are ignored; malformed JSON closes the session with a protocol-error close
// code.
package events

import (
	"encoding/json"
	"time"

	"github.com/decidr/decidr-backend/internal/domain"
)

// Inbound event names (client → server).
const (
	InJoinGroup        = "join_group"
	InLeaveGroup       = "leave_group"
	InSendMessage      = "send_message"
	InTypingStart      = "typing_start"
	InTypingStop       = "typing_stop"
	InGetGroupMessages = "get_group_messages"
	InGetRoomInfo      = "get_room_info"
)

// Outbound event names (server → client).
const (
	OutMessageReceived    = "message_received"
	OutMessageUpdated     = "message_updated"
	OutMessageDeleted     = "message_deleted"
	OutUserTyping         = "user_typing"
	OutUserStoppedTyping  = "user_stopped_typing"
	OutGroupMessages      = "group_messages"
	OutUserJoinedGroup    = "user_joined_group"
	OutUserLeftGroup      = "user_left_group"
	OutJoinedGroupSuccess = "joined_group_success"
	OutLeftGroupSuccess   = "left_group_success"
	OutRoomMembersUpdate  = "room_members_update"
	OutError              = "error"
)

// Error codes carried by the error event.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL_ERROR"
)

// Envelope is the frame wrapper for both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Marshal builds a wire frame for an outbound event. Marshal failures are
// programming errors (all payloads here are marshalable), so the error is
// surfaced rather than swallowed.
func Marshal(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// ---- inbound payloads ----

// GroupRef is the payload of events that carry only a group id
// (join_group, leave_group, typing_start, typing_stop, get_room_info).
type GroupRef struct {
	GroupID string `json:"groupId"`
}

// SendMessageIn is the payload of send_message.
type SendMessageIn struct {
	GroupID   string  `json:"groupId"`
	Content   string  `json:"content"`
	Type      string  `json:"type,omitempty"`
	ReplyToID *string `json:"replyToId,omitempty"`
}

// GetMessagesIn is the payload of get_group_messages.
type GetMessagesIn struct {
	GroupID string `json:"groupId"`
	Limit   int    `json:"limit,omitempty"`
	Cursor  string `json:"cursor,omitempty"`
}

// ---- outbound payloads ----

// UserRef is the sender block embedded in a hydrated message.
type UserRef struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Email string  `json:"email,omitempty"`
	Image *string `json:"image,omitempty"`
}

// ReplyRef is the reply-parent snippet embedded in a hydrated message.
type ReplyRef struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	User    struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
}

// AttachmentRef is an attachment entry in a hydrated message.
type AttachmentRef struct {
	ID       string  `json:"id"`
	URL      string  `json:"url"`
	MimeType *string `json:"mimeType,omitempty"`
	Size     *int64  `json:"size,omitempty"`
}

// MessageOut is the hydrated message as delivered over the wire
// (message_received, group_messages entries, REST responses).
type MessageOut struct {
	ID          string          `json:"id"`
	GroupID     string          `json:"groupId"`
	SenderID    string          `json:"senderId"`
	Type        string          `json:"type"`
	Content     string          `json:"content"`
	ReplyToID   *string         `json:"replyToId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	User        UserRef         `json:"user"`
	ReplyTo     *ReplyRef       `json:"replyTo,omitempty"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
}

// FromMessage converts a hydrated domain message into its wire form.
func FromMessage(m *domain.Message) MessageOut {
	out := MessageOut{
		ID:        m.ID,
		GroupID:   m.GroupID,
		SenderID:  m.SenderID,
		Type:      m.Type,
		Content:   m.Content,
		ReplyToID: m.ReplyToID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		User: UserRef{
			ID:    m.Sender.ID,
			Name:  m.Sender.Name,
			Email: m.Sender.Email,
			Image: m.Sender.Image,
		},
	}
	if m.ReplyTo != nil {
		r := &ReplyRef{ID: m.ReplyTo.ID, Content: m.ReplyTo.Content}
		r.User.ID = m.ReplyTo.Sender.ID
		r.User.Name = m.ReplyTo.Sender.Name
		out.ReplyTo = r
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, AttachmentRef{
			ID:       a.ID,
			URL:      a.URL,
			MimeType: a.MimeType,
			Size:     a.Size,
		})
	}
	return out
}

// SystemMessage synthesizes an ephemeral SYSTEM broadcast (e.g. membership
// notifications). SYSTEM messages are fan-out only and never persisted; the
// sender is not a real user row, so clients must key off Type alone.
func SystemMessage(groupID, content string) MessageOut {
	now := time.Now().UTC()
	return MessageOut{
		ID:        "system-" + now.Format("20060102150405.000000000"),
		GroupID:   groupID,
		SenderID:  "system",
		Type:      domain.MessageTypeSystem,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
		User:      UserRef{ID: "system", Name: "System"},
	}
}

// GroupMessagesOut is the reply to get_group_messages.
type GroupMessagesOut struct {
	Messages    []MessageOut `json:"messages"`
	HasNextPage bool         `json:"hasNextPage"`
	NextCursor  *string      `json:"nextCursor,omitempty"`
}

// TypingOut is the payload of user_typing.
type TypingOut struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	GroupID  string `json:"groupId"`
}

// StoppedTypingOut is the payload of user_stopped_typing.
type StoppedTypingOut struct {
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
}

// PresenceOut is the payload of user_joined_group and user_left_group.
type PresenceOut struct {
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	GroupID     string `json:"groupId"`
	MemberCount int    `json:"memberCount"`
}

// JoinLeaveAck is the payload of joined_group_success and left_group_success.
type JoinLeaveAck struct {
	GroupID     string `json:"groupId"`
	MemberCount int    `json:"memberCount"`
}

// RoomInfoOut is the payload of room_members_update.
type RoomInfoOut struct {
	GroupID       string   `json:"groupId"`
	OnlineMembers []string `json:"onlineMembers"`
	TypingMembers []string `json:"typingMembers,omitempty"`
	MemberCount   int      `json:"memberCount"`
}

// MessageDeletedOut is the payload of message_deleted.
type MessageDeletedOut struct {
	ID      string `json:"id"`
	GroupID string `json:"groupId"`
}

// ErrorOut is the payload of the error event.
type ErrorOut struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
