// Package authz answers authorization questions for both the REST and socket
// paths: token-independent membership checks, group access assertions, and
// the role-privilege matrix for member management.
package authz

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/decidr/decidr-backend/internal/domain"
	"github.com/decidr/decidr-backend/internal/repo"
)

// Sentinel errors surfaced to handlers.
var (
	// ErrGroupNotFound indicates the group does not exist.
	ErrGroupNotFound = errors.New("group not found")

	// ErrForbidden indicates the user is neither creator nor member of the
	// group, or lacks the role for a management operation.
	ErrForbidden = errors.New("forbidden")
)

// Oracle resolves membership and access questions against the durable store.
type Oracle struct {
	DB *gorm.DB
}

// NewOracle constructs an Oracle over the given database handle.
func NewOracle(db *gorm.DB) *Oracle { return &Oracle{DB: db} }

// GetMembership returns the membership of userID in groupID with the user
// row preloaded, or (nil, nil) when no membership exists.
func (o *Oracle) GetMembership(ctx context.Context, userID, groupID string) (*domain.GroupMember, error) {
	m, err := repo.GetMembership(ctx, o.DB, userID, groupID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// IsMember reports whether userID is a member of groupID.
func (o *Oracle) IsMember(ctx context.Context, userID, groupID string) (bool, error) {
	m, err := o.GetMembership(ctx, userID, groupID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// AssertGroupAccess returns the group and the user's membership in it.
// It returns ErrGroupNotFound when the group does not exist and ErrForbidden
// when the user is neither the creator nor a member. The membership may be
// nil when access is granted through creatorship alone.
func (o *Oracle) AssertGroupAccess(ctx context.Context, userID, groupID string) (*domain.Group, *domain.GroupMember, error) {
	g, err := repo.GetGroupByID(ctx, o.DB, groupID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	m, err := o.GetMembership(ctx, userID, groupID)
	if err != nil {
		return nil, nil, err
	}
	if m == nil && g.CreatorID != userID {
		return nil, nil, ErrForbidden
	}
	return g, m, nil
}

// DisplayName returns the member's display name for presence notifications,
// falling back to the user id when the user row is missing.
func (o *Oracle) DisplayName(ctx context.Context, userID string) string {
	u, err := repo.GetUserByID(ctx, o.DB, userID)
	if err != nil {
		return userID
	}
	return u.Name
}

// ---- role-privilege matrix ----

// CanAddMember reports whether a holder of actorRole may add members.
func CanAddMember(actorRole string) bool {
	return actorRole == domain.RoleOwner || actorRole == domain.RoleAdmin
}

// CanRemoveMember reports whether an actor may remove a member with
// targetRole. self is true when the actor is removing their own membership.
// Owners can never be removed, themselves included; ownership must be
// transferred first.
func CanRemoveMember(actorRole, targetRole string, self bool) bool {
	switch targetRole {
	case domain.RoleOwner:
		return false
	case domain.RoleAdmin:
		return self || actorRole == domain.RoleOwner
	default:
		return self || actorRole == domain.RoleOwner || actorRole == domain.RoleAdmin
	}
}

// CanChangeRole reports whether an actor may change a member's role from
// fromRole to toRole. The only permitted transitions are MEMBER→ADMIN
// (owner or admin), ADMIN→MEMBER (owner), and ADMIN→OWNER, the ownership
// transfer, which only the current owner may perform.
func CanChangeRole(actorRole, fromRole, toRole string) bool {
	switch {
	case fromRole == domain.RoleMember && toRole == domain.RoleAdmin:
		return actorRole == domain.RoleOwner || actorRole == domain.RoleAdmin
	case fromRole == domain.RoleAdmin && toRole == domain.RoleMember:
		return actorRole == domain.RoleOwner
	case fromRole == domain.RoleAdmin && toRole == domain.RoleOwner:
		return actorRole == domain.RoleOwner
	default:
		return false
	}
}
