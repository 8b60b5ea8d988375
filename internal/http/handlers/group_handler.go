// Group and membership HTTP handlers.
//
// This file exposes REST endpoints for group resources:
//   - POST   /groups                          (create; creator becomes OWNER)
//   - GET    /groups                          (list my groups)
//   - GET    /groups/{groupId}                (fetch one)
//   - DELETE /groups/{groupId}                (owner only, cascades)
//   - GET    /groups/{groupId}/members        (list)
//   - POST   /groups/{groupId}/members        (add, owner/admin)
//   - DELETE /groups/{groupId}/members/{userId}
//   - PUT    /groups/{groupId}/members/{userId}/role
//
// Handlers are transport-thin: they validate input, call the services, and
// translate results into HTTP responses. The role matrix lives in the service
// layer, not here.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/decidr/decidr-backend/internal/auth"
	"github.com/decidr/decidr-backend/internal/services"
)

// GroupHandlers serves group and membership endpoints.
type GroupHandlers struct {
	Groups *services.GroupService
}

// CreateGroupRequest is the JSON payload for creating a group.
type CreateGroupRequest struct {
	Name        string  `json:"name" binding:"required,min=1,max=255"`
	Description *string `json:"description"`
	IsPrivate   bool    `json:"isPrivate"`
}

// AddMemberRequest is the JSON payload for adding a member.
type AddMemberRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// ChangeRoleRequest is the JSON payload for a role change.
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=OWNER ADMIN MEMBER"`
}

// Create handles POST /groups.
func (h *GroupHandlers) Create(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name is required (1-255 chars)")
		return
	}
	g, err := h.Groups.Create(c.Request.Context(), auth.UserID(c), req.Name, req.Description, req.IsPrivate)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, g)
}

// List handles GET /groups.
func (h *GroupHandlers) List(c *gin.Context) {
	groups, err := h.Groups.ListMine(c.Request.Context(), auth.UserID(c))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"groups": groups})
}

// Get handles GET /groups/{groupId}.
func (h *GroupHandlers) Get(c *gin.Context) {
	g, err := h.Groups.Get(c.Request.Context(), auth.UserID(c), c.Param("groupId"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, g)
}

// Delete handles DELETE /groups/{groupId}.
func (h *GroupHandlers) Delete(c *gin.Context) {
	if err := h.Groups.Delete(c.Request.Context(), auth.UserID(c), c.Param("groupId")); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// ListMembers handles GET /groups/{groupId}/members.
func (h *GroupHandlers) ListMembers(c *gin.Context) {
	members, err := h.Groups.ListMembers(c.Request.Context(), auth.UserID(c), c.Param("groupId"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"members": members})
}

// AddMember handles POST /groups/{groupId}/members.
func (h *GroupHandlers) AddMember(c *gin.Context) {
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "userId is required")
		return
	}
	m, err := h.Groups.AddMember(c.Request.Context(), auth.UserID(c), c.Param("groupId"), req.UserID)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, m)
}

// RemoveMember handles DELETE /groups/{groupId}/members/{userId}.
func (h *GroupHandlers) RemoveMember(c *gin.Context) {
	err := h.Groups.RemoveMember(c.Request.Context(), auth.UserID(c), c.Param("groupId"), c.Param("userId"))
	if err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// ChangeRole handles PUT /groups/{groupId}/members/{userId}/role.
func (h *GroupHandlers) ChangeRole(c *gin.Context) {
	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "role must be one of OWNER, ADMIN, MEMBER")
		return
	}
	err := h.Groups.ChangeRole(c.Request.Context(), auth.UserID(c), c.Param("groupId"), c.Param("userId"), req.Role)
	if err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}
