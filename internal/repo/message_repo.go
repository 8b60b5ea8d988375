// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message and
// Attachment models.
//
// Message ids are UUIDv7: lexicographic order on the id column matches
// insertion time, which is what the history cursor relies on
// (WHERE id < cursor paginates backward consistently with created_at DESC).
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/decidr/decidr-backend/internal/domain"
)

// NewMessageID returns a fresh time-ordered message id.
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to v4
		// rather than dropping the write.
		return uuid.NewString()
	}
	return id.String()
}

// MessageInput carries the fields needed to persist a new message.
type MessageInput struct {
	GroupID   string
	SenderID  string
	Type      string
	Content   string
	ReplyToID *string
}

// CreateMessage inserts a message row and reads back the hydrated form
// (sender, reply parent with its sender, attachments).
func CreateMessage(ctx context.Context, db *gorm.DB, in MessageInput) (*domain.Message, error) {
	m := &domain.Message{
		ID:        NewMessageID(),
		GroupID:   in.GroupID,
		SenderID:  in.SenderID,
		Type:      in.Type,
		Content:   in.Content,
		ReplyToID: in.ReplyToID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return GetMessageByID(ctx, db, m.ID)
}

// GetMessageByID fetches a hydrated message, or ErrNotFound.
func GetMessageByID(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Preload("Sender").
		Preload("ReplyTo.Sender").
		Preload("Attachments").
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessagesForGroup returns up to limit hydrated messages of a group,
// newest first. When cursor is non-empty only rows with id < cursor are
// returned. Callers fetch limit+1 rows to detect a next page.
func ListMessagesForGroup(ctx context.Context, db *gorm.DB, groupID, cursor string, limit int) ([]domain.Message, error) {
	q := db.WithContext(ctx).
		Preload("Sender").
		Preload("ReplyTo.Sender").
		Preload("Attachments").
		Where("group_id = ?", groupID)
	if cursor != "" {
		q = q.Where("id < ?", cursor)
	}
	var out []domain.Message
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// UpdateMessageContent replaces the content of a message and advances
// updated_at. Returns ErrNotFound when the message does not exist.
func UpdateMessageContent(ctx context.Context, db *gorm.DB, id, content string) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(map[string]any{"content": content, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteMessageCascade hard-deletes a message together with its attachments.
func DeleteMessageCascade(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&domain.Attachment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Unscoped().Delete(&domain.Message{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// AddAttachment links an attachment row to an existing message.
func AddAttachment(ctx context.Context, db *gorm.DB, messageID, url string, mimeType *string, size *int64) (*domain.Attachment, error) {
	a := &domain.Attachment{
		ID:        uuid.NewString(),
		MessageID: messageID,
		URL:       url,
		MimeType:  mimeType,
		Size:      size,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}
