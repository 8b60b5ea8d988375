// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Group and
// GroupMember models.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. Role rules (who may add, remove, or
// promote members) live in the authz package.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/decidr/decidr-backend/internal/domain"
)

// ErrDuplicateMember indicates the (user, group) membership already exists.
var ErrDuplicateMember = errors.New("member already exists")

// CreateGroup inserts a new group and its creator's OWNER membership in one
// transaction. The creator's first membership is always OWNER.
func CreateGroup(ctx context.Context, db *gorm.DB, creatorID, name string, description *string, isPrivate bool) (*domain.Group, error) {
	g := &domain.Group{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		IsPrivate:   isPrivate,
		CreatorID:   creatorID,
		CreatedAt:   time.Now().UTC(),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(g).Error; err != nil {
			return err
		}
		m := &domain.GroupMember{
			ID:       uuid.NewString(),
			UserID:   creatorID,
			GroupID:  g.ID,
			Role:     domain.RoleOwner,
			JoinedAt: time.Now().UTC(),
		}
		return tx.Create(m).Error
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// GetGroupByID fetches a group by primary key, or ErrNotFound.
func GetGroupByID(ctx context.Context, db *gorm.DB, id string) (*domain.Group, error) {
	var g domain.Group
	if err := db.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGroupsForUser returns every group the user is a member of, most recent
// first.
func ListGroupsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Group, error) {
	var out []domain.Group
	err := db.WithContext(ctx).
		Joins("JOIN group_members gm ON gm.group_id = groups.id").
		Where("gm.user_id = ?", userID).
		Order("groups.created_at desc").
		Find(&out).Error
	return out, err
}

// DeleteGroupCascade removes a group together with its messages, attachments,
// and memberships. Hard delete: history of a deleted group is gone.
func DeleteGroupCascade(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("message_id IN (?)", tx.Model(&domain.Message{}).Select("id").Where("group_id = ?", id)).
			Unscoped().Delete(&domain.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Unscoped().Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Delete(&domain.GroupMember{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Unscoped().Delete(&domain.Group{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// GetMembership returns the membership row for (userID, groupID) with the
// user preloaded, or ErrNotFound.
func GetMembership(ctx context.Context, db *gorm.DB, userID, groupID string) (*domain.GroupMember, error) {
	var m domain.GroupMember
	err := db.WithContext(ctx).
		Preload("User").
		Where("user_id = ? AND group_id = ?", userID, groupID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMembersByGroup returns all memberships of a group with users preloaded,
// ordered by join time.
func ListMembersByGroup(ctx context.Context, db *gorm.DB, groupID string) ([]domain.GroupMember, error) {
	var out []domain.GroupMember
	err := db.WithContext(ctx).
		Preload("User").
		Where("group_id = ?", groupID).
		Order("joined_at asc").
		Find(&out).Error
	return out, err
}

// AddMember inserts a membership row. Returns ErrDuplicateMember when the
// (user, group) pair already exists.
func AddMember(ctx context.Context, db *gorm.DB, userID, groupID, role string) (*domain.GroupMember, error) {
	m := &domain.GroupMember{
		ID:       uuid.NewString(),
		UserID:   userID,
		GroupID:  groupID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicateMember
		}
		return nil, err
	}
	return m, nil
}

// RemoveMember deletes the membership row for (userID, groupID).
// Returns ErrNotFound when no row was removed.
func RemoveMember(ctx context.Context, db *gorm.DB, userID, groupID string) error {
	res := db.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		Delete(&domain.GroupMember{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateMemberRole changes the role of an existing membership.
func UpdateMemberRole(ctx context.Context, db *gorm.DB, userID, groupID, role string) error {
	res := db.WithContext(ctx).
		Model(&domain.GroupMember{}).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountOwners returns how many OWNER memberships a group has. Used to guard
// removal of the sole owner.
func CountOwners(ctx context.Context, db *gorm.DB, groupID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.GroupMember{}).
		Where("group_id = ? AND role = ?", groupID, domain.RoleOwner).
		Count(&n).Error
	return n, err
}
