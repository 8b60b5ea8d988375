// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the message pipeline: it validates inputs, checks membership and room
// presence, resolves reply linkage, persists the message, and fans the
// hydrated form out to the live room. It also implements cursor pagination
// for history reads and the sender/role-gated update and delete paths.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// group/user identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/decidr/decidr-backend/internal/authz"
	"github.com/decidr/decidr-backend/internal/domain"
	"github.com/decidr/decidr-backend/internal/events"
	"github.com/decidr/decidr-backend/internal/presence"
	"github.com/decidr/decidr-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// HistoryDefaultLimit is applied when get_group_messages omits limit.
	HistoryDefaultLimit = 50
	// HistoryMaxLimit caps a single history page.
	HistoryMaxLimit = 100
)

// Broadcaster is the room fan-out capability the pipeline needs. The chat hub
// implements it; tests substitute a recorder.
type Broadcaster interface {
	// Broadcast delivers an event to every live session of the room except
	// excludeSessionID (empty string excludes nobody). Send failures on
	// individual sessions must not abort delivery to the rest.
	Broadcast(groupID, event string, payload any, excludeSessionID string)

	// IsJoined reports whether the session is currently joined to the room.
	IsJoined(groupID, sessionID string) bool
}

// MessageService coordinates message persistence, hydration, and fan-out.
type MessageService struct {
	DB     *gorm.DB
	Oracle *authz.Oracle
	Cache  *presence.Cache
	Rooms  Broadcaster // nil disables fan-out (REST-only tests)
}

// SendInput carries one send_message request through the pipeline.
// SessionID is empty on the REST path, which skips the joined-room check.
type SendInput struct {
	GroupID   string
	SenderID  string
	SessionID string
	Content   string
	Type      string
	ReplyToID *string
}

// Send validates, authorizes, persists, hydrates, and broadcasts a message.
// A failed send never produces a broadcast. On success exactly one
// message_received reaches each joined session of the room, including the
// sender's own sessions; there is no optimistic echo.
func (s *MessageService) Send(ctx context.Context, in SendInput) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("group.id", in.GroupID),
			attribute.String("user.id", in.SenderID),
		),
	)
	defer span.End()

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	msgType := in.Type
	if msgType == "" {
		msgType = domain.MessageTypeText
	}
	switch msgType {
	case domain.MessageTypeText:
		if utf8.RuneCountInString(content) > domain.MaxTextContentLen {
			return nil, ErrContentTooLong
		}
	case domain.MessageTypeImage, domain.MessageTypeFile:
	default:
		return nil, ErrInvalidType
	}

	member, err := s.Oracle.IsMember(ctx, in.SenderID, in.GroupID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotMember
	}

	// The socket path is stricter than membership: the session must have
	// joined the room first.
	if in.SessionID != "" && s.Rooms != nil && !s.Rooms.IsJoined(in.GroupID, in.SessionID) {
		return nil, ErrNotJoined
	}

	if in.ReplyToID != nil && *in.ReplyToID != "" {
		parent, perr := repo.GetMessageByID(ctx, s.DB, *in.ReplyToID)
		if errors.Is(perr, gorm.ErrRecordNotFound) || (perr == nil && parent.GroupID != in.GroupID) {
			return nil, ErrBadReplyTarget
		}
		if perr != nil {
			return nil, perr
		}
	}

	msg, err := repo.CreateMessage(ctx, s.DB, repo.MessageInput{
		GroupID:   in.GroupID,
		SenderID:  in.SenderID,
		Type:      msgType,
		Content:   content,
		ReplyToID: in.ReplyToID,
	})
	if err != nil {
		return nil, err
	}

	// The row is committed: fan-out must be attempted even if the session's
	// context was cancelled mid-flight, or the message persists but nobody
	// hears it.
	fanoutCtx := context.WithoutCancel(ctx)
	if s.Rooms != nil {
		s.Rooms.Broadcast(in.GroupID, events.OutMessageReceived, events.FromMessage(msg), "")
	}

	// Sending implies the user stopped typing.
	if s.Cache != nil {
		s.Cache.ClearTyping(fanoutCtx, in.GroupID, in.SenderID)
	}
	if s.Rooms != nil {
		s.Rooms.Broadcast(in.GroupID, events.OutUserStoppedTyping,
			events.StoppedTypingOut{UserID: in.SenderID, GroupID: in.GroupID}, in.SessionID)
	}

	return msg, nil
}

// History returns one page of a group's messages in chronological order.
// The cursor is the id of the oldest message of the previous page; message
// ids are time-ordered, so id < cursor pages strictly backward.
func (s *MessageService) History(ctx context.Context, userID, groupID string, limit int, cursor string) (*events.GroupMessagesOut, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.String("user.id", userID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if limit <= 0 {
		limit = HistoryDefaultLimit
	}
	if limit > HistoryMaxLimit {
		limit = HistoryMaxLimit
	}

	if _, _, err := s.Oracle.AssertGroupAccess(ctx, userID, groupID); err != nil {
		return nil, mapAuthzErr(err)
	}

	rows, err := repo.ListMessagesForGroup(ctx, s.DB, groupID, cursor, limit+1)
	if err != nil {
		return nil, err
	}

	out := &events.GroupMessagesOut{Messages: make([]events.MessageOut, 0, limit)}
	if len(rows) > limit {
		out.HasNextPage = true
		rows = rows[:limit]
	}
	if out.HasNextPage && len(rows) > 0 {
		oldest := rows[len(rows)-1].ID
		out.NextCursor = &oldest
	}
	// rows are newest-first; present oldest-first.
	for i := len(rows) - 1; i >= 0; i-- {
		out.Messages = append(out.Messages, events.FromMessage(&rows[i]))
	}
	return out, nil
}

// Get returns one hydrated message, enforcing group access.
func (s *MessageService) Get(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	msg, err := repo.GetMessageByID(ctx, s.DB, messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, _, err := s.Oracle.AssertGroupAccess(ctx, userID, msg.GroupID); err != nil {
		return nil, mapAuthzErr(err)
	}
	return msg, nil
}

// Update edits a message's content. Only the sender may edit. The edited
// hydrated form is broadcast as message_updated (best effort).
func (s *MessageService) Update(ctx context.Context, userID, messageID, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(attribute.String("message.id", messageID)),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > domain.MaxTextContentLen {
		return nil, ErrContentTooLong
	}

	msg, err := repo.GetMessageByID(ctx, s.DB, messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, ErrForbidden
	}

	if err := repo.UpdateMessageContent(ctx, s.DB, messageID, content); err != nil {
		return nil, err
	}
	updated, err := repo.GetMessageByID(ctx, s.DB, messageID)
	if err != nil {
		return nil, err
	}
	if s.Rooms != nil {
		s.Rooms.Broadcast(updated.GroupID, events.OutMessageUpdated, events.FromMessage(updated), "")
	}
	return updated, nil
}

// Delete removes a message. The sender, the group owner, or any admin of the
// group may delete; attachments cascade. Deletion is broadcast as
// message_deleted (best effort).
func (s *MessageService) Delete(ctx context.Context, userID, messageID string) error {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("message.id", messageID)),
	)
	defer span.End()

	msg, err := repo.GetMessageByID(ctx, s.DB, messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		return err
	}

	if msg.SenderID != userID {
		m, merr := s.Oracle.GetMembership(ctx, userID, msg.GroupID)
		if merr != nil {
			return merr
		}
		if m == nil || (m.Role != domain.RoleOwner && m.Role != domain.RoleAdmin) {
			return ErrForbidden
		}
	}

	if err := repo.DeleteMessageCascade(ctx, s.DB, messageID); err != nil {
		return err
	}
	if s.Rooms != nil {
		s.Rooms.Broadcast(msg.GroupID, events.OutMessageDeleted,
			events.MessageDeletedOut{ID: messageID, GroupID: msg.GroupID}, "")
	}
	return nil
}

// mapAuthzErr converts authz sentinels to service sentinels so callers deal
// with one error family.
func mapAuthzErr(err error) error {
	switch {
	case errors.Is(err, authz.ErrGroupNotFound):
		return ErrGroupNotFound
	case errors.Is(err, authz.ErrForbidden):
		return ErrNotMember
	default:
		return err
	}
}
