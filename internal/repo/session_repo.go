// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the UserSession
// model (issued refresh tokens).
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/decidr/decidr-backend/internal/domain"
)

// CreateUserSession records an issued refresh token. Only the refresh token
// is stored; the paired access token is verified statelessly.
func CreateUserSession(ctx context.Context, db *gorm.DB, userID, refreshToken string, expiresAt time.Time) (*domain.UserSession, error) {
	s := &domain.UserSession{
		ID:           uuid.NewString(),
		UserID:       userID,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetActiveSession returns the non-revoked, non-expired session holding the
// given refresh token, or ErrNotFound.
func GetActiveSession(ctx context.Context, db *gorm.DB, refreshToken string) (*domain.UserSession, error) {
	var s domain.UserSession
	err := db.WithContext(ctx).
		Where("refresh_token = ? AND revoked_at IS NULL AND expires_at > ?", refreshToken, time.Now().UTC()).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RevokeSession marks the session holding refreshToken as revoked.
func RevokeSession(ctx context.Context, db *gorm.DB, refreshToken string) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.UserSession{}).
		Where("refresh_token = ? AND revoked_at IS NULL", refreshToken).
		Update("revoked_at", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
