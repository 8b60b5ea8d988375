// Message HTTP handlers.
//
// This file exposes REST endpoints for messages:
//   - POST   /groups/{groupId}/messages  (send; membership required, no
//     joined-room requirement on this path)
//   - GET    /groups/{groupId}/messages  (cursor-paginated history)
//   - GET    /messages/{id}
//   - PUT    /messages/{id}              (sender only)
//   - DELETE /messages/{id}              (sender, owner, or admin)
//
// Sends honor the Idempotency-Key header: a replayed key returns the
// originally persisted message with 200 instead of creating a duplicate.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/decidr/decidr-backend/internal/auth"
	"github.com/decidr/decidr-backend/internal/events"
	"github.com/decidr/decidr-backend/internal/http/middleware"
	"github.com/decidr/decidr-backend/internal/repo"
	"github.com/decidr/decidr-backend/internal/services"
)

// MessageHandlers serves message endpoints.
type MessageHandlers struct {
	DB             *gorm.DB
	Messages       *services.MessageService
	IdempotencyTTL time.Duration
}

// SendMessageRequest is the JSON payload for sending a message.
type SendMessageRequest struct {
	Content   string  `json:"content" binding:"required"`
	Type      string  `json:"type"`
	ReplyToID *string `json:"replyToId"`
}

// UpdateMessageRequest is the JSON payload for editing a message.
type UpdateMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// Send handles POST /groups/{groupId}/messages.
func (h *MessageHandlers) Send(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content is required")
		return
	}

	ctx := c.Request.Context()
	userID := auth.UserID(c)
	groupID := c.Param("groupId")

	// Replay: return the originally persisted message.
	if key, hasKey := middleware.GetIdempotencyKey(c); hasKey && middleware.IsReplay(c) {
		rec, err := repo.GetIdempotency(ctx, h.DB, userID, groupID, key, timeNow())
		if err == nil && rec.MessageID != "" {
			if msg, merr := h.Messages.Get(ctx, userID, rec.MessageID); merr == nil {
				ok(c, http.StatusOK, events.FromMessage(msg))
				return
			}
		}
		// The stored message vanished; fall through and send fresh.
	}

	msg, err := h.Messages.Send(ctx, services.SendInput{
		GroupID:   groupID,
		SenderID:  userID,
		Content:   req.Content,
		Type:      req.Type,
		ReplyToID: req.ReplyToID,
	})
	if err != nil {
		failService(c, err)
		return
	}

	if key, hasKey := middleware.GetIdempotencyKey(c); hasKey {
		// Best effort: a failed record write must not fail the send.
		_, _ = repo.CreateIdempotency(ctx, h.DB, userID, groupID, key, msg.ID,
			http.StatusCreated, h.IdempotencyTTL)
	}
	ok(c, http.StatusCreated, events.FromMessage(msg))
}

// History handles GET /groups/{groupId}/messages with limit and cursor query
// parameters.
func (h *MessageHandlers) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := h.Messages.History(c.Request.Context(), auth.UserID(c),
		c.Param("groupId"), limit, c.Query("cursor"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// Get handles GET /messages/{id}.
func (h *MessageHandlers) Get(c *gin.Context) {
	msg, err := h.Messages.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, events.FromMessage(msg))
}

// Update handles PUT /messages/{id}.
func (h *MessageHandlers) Update(c *gin.Context) {
	var req UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content is required")
		return
	}
	msg, err := h.Messages.Update(c.Request.Context(), auth.UserID(c), c.Param("id"), req.Content)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, events.FromMessage(msg))
}

// Delete handles DELETE /messages/{id}.
func (h *MessageHandlers) Delete(c *gin.Context) {
	if err := h.Messages.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}
