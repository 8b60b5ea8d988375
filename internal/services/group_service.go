// Package services – GroupService
//
// This file implements GroupService, which manages group lifecycle and
// membership under the role-privilege matrix (OWNER/ADMIN/MEMBER). Successful
// membership changes synthesize ephemeral SYSTEM broadcasts to the live room;
// those are fan-out only and never persisted.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/decidr/decidr-backend/internal/authz"
	"github.com/decidr/decidr-backend/internal/domain"
	"github.com/decidr/decidr-backend/internal/events"
	"github.com/decidr/decidr-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GroupService provides group and membership management.
type GroupService struct {
	DB     *gorm.DB
	Oracle *authz.Oracle
	Rooms  Broadcaster // nil disables SYSTEM broadcasts
}

// Create inserts a group; the creator becomes its OWNER.
func (s *GroupService) Create(ctx context.Context, creatorID, name string, description *string, isPrivate bool) (*domain.Group, error) {
	tr := otel.Tracer("services/GroupService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", creatorID)),
	)
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyContent
	}
	return repo.CreateGroup(ctx, s.DB, creatorID, name, description, isPrivate)
}

// Get returns a group the user has access to.
func (s *GroupService) Get(ctx context.Context, userID, groupID string) (*domain.Group, error) {
	g, _, err := s.Oracle.AssertGroupAccess(ctx, userID, groupID)
	if err != nil {
		return nil, mapAuthzErr(err)
	}
	return g, nil
}

// ListMine returns the groups the user is a member of.
func (s *GroupService) ListMine(ctx context.Context, userID string) ([]domain.Group, error) {
	return repo.ListGroupsForUser(ctx, s.DB, userID)
}

// Delete removes a group and cascades messages, attachments, and
// memberships. Only the owner may delete.
func (s *GroupService) Delete(ctx context.Context, userID, groupID string) error {
	g, m, err := s.Oracle.AssertGroupAccess(ctx, userID, groupID)
	if err != nil {
		return mapAuthzErr(err)
	}
	if (m == nil || m.Role != domain.RoleOwner) && g.CreatorID != userID {
		return ErrForbidden
	}
	return repo.DeleteGroupCascade(ctx, s.DB, groupID)
}

// ListMembers returns the group's memberships with users preloaded.
func (s *GroupService) ListMembers(ctx context.Context, userID, groupID string) ([]domain.GroupMember, error) {
	if _, _, err := s.Oracle.AssertGroupAccess(ctx, userID, groupID); err != nil {
		return nil, mapAuthzErr(err)
	}
	return repo.ListMembersByGroup(ctx, s.DB, groupID)
}

// AddMember adds targetID to the group as MEMBER. Owners and admins may add.
func (s *GroupService) AddMember(ctx context.Context, actorID, groupID, targetID string) (*domain.GroupMember, error) {
	tr := otel.Tracer("services/GroupService")
	ctx, span := tr.Start(ctx, "AddMember",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.String("target.id", targetID),
		),
	)
	defer span.End()

	_, actor, err := s.Oracle.AssertGroupAccess(ctx, actorID, groupID)
	if err != nil {
		return nil, mapAuthzErr(err)
	}
	if actor == nil || !authz.CanAddMember(actor.Role) {
		return nil, ErrForbidden
	}

	target, err := repo.GetUserByID(ctx, s.DB, targetID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	m, err := repo.AddMember(ctx, s.DB, targetID, groupID, domain.RoleMember)
	if errors.Is(err, repo.ErrDuplicateMember) {
		return nil, ErrMemberExists
	}
	if err != nil {
		return nil, err
	}
	m.User = *target

	s.systemBroadcast(groupID, target.Name+" joined the group")
	return m, nil
}

// RemoveMember removes targetID from the group under the matrix rules:
// owners can never be removed (transfer first); admins are removed by the
// owner or themselves; members by owner, admin, or themselves.
func (s *GroupService) RemoveMember(ctx context.Context, actorID, groupID, targetID string) error {
	tr := otel.Tracer("services/GroupService")
	ctx, span := tr.Start(ctx, "RemoveMember",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.String("target.id", targetID),
		),
	)
	defer span.End()

	_, actor, err := s.Oracle.AssertGroupAccess(ctx, actorID, groupID)
	if err != nil {
		return mapAuthzErr(err)
	}
	target, err := s.Oracle.GetMembership(ctx, targetID, groupID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrUserNotFound
	}

	actorRole := ""
	if actor != nil {
		actorRole = actor.Role
	}
	if !authz.CanRemoveMember(actorRole, target.Role, actorID == targetID) {
		if target.Role == domain.RoleOwner {
			return ErrSoleOwner
		}
		return ErrForbidden
	}

	if err := repo.RemoveMember(ctx, s.DB, targetID, groupID); err != nil {
		return err
	}
	s.systemBroadcast(groupID, target.User.Name+" left the group")
	return nil
}

// ChangeRole updates a member's role. MEMBER→ADMIN needs owner or admin;
// ADMIN→MEMBER needs the owner; ADMIN→OWNER is the ownership transfer, only
// the owner may perform it, and it demotes the current owner to ADMIN in the
// same transaction so the one-owner invariant holds.
func (s *GroupService) ChangeRole(ctx context.Context, actorID, groupID, targetID, newRole string) error {
	tr := otel.Tracer("services/GroupService")
	ctx, span := tr.Start(ctx, "ChangeRole",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.String("target.id", targetID),
			attribute.String("role", newRole),
		),
	)
	defer span.End()

	switch newRole {
	case domain.RoleOwner, domain.RoleAdmin, domain.RoleMember:
	default:
		return ErrInvalidType
	}

	_, actor, err := s.Oracle.AssertGroupAccess(ctx, actorID, groupID)
	if err != nil {
		return mapAuthzErr(err)
	}
	target, err := s.Oracle.GetMembership(ctx, targetID, groupID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrUserNotFound
	}

	actorRole := ""
	if actor != nil {
		actorRole = actor.Role
	}
	if !authz.CanChangeRole(actorRole, target.Role, newRole) {
		return ErrForbidden
	}

	if newRole == domain.RoleOwner {
		// Ownership transfer: promote the target and demote the current
		// owner atomically.
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repo.UpdateMemberRole(ctx, tx, targetID, groupID, domain.RoleOwner); err != nil {
				return err
			}
			return repo.UpdateMemberRole(ctx, tx, actorID, groupID, domain.RoleAdmin)
		})
	}
	return repo.UpdateMemberRole(ctx, s.DB, targetID, groupID, newRole)
}

// systemBroadcast fans an ephemeral SYSTEM message out to the live room.
func (s *GroupService) systemBroadcast(groupID, content string) {
	if s.Rooms == nil {
		return
	}
	s.Rooms.Broadcast(groupID, events.OutMessageReceived, events.SystemMessage(groupID, content), "")
}
