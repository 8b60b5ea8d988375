// Auth HTTP handlers.
//
// This file exposes the token endpoints:
//   - POST /auth/verify-otp  (exchange an OTP for a token pair)
//   - POST /auth/refresh     (rotate the pair)
//   - POST /auth/logout      (revoke the refresh session)
//
// OTP issuance and email delivery live outside this service. In development
// mode a fixed code (DEV_OTP) is accepted, so the binary is usable without
// the external verifier. Only the refresh token is stored server-side; the
// access token is verified statelessly from its signature.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/decidr/decidr-backend/internal/auth"
	"github.com/decidr/decidr-backend/internal/domain"
	"github.com/decidr/decidr-backend/internal/repo"
)

// timeNow is a seam so session-expiry tests can pin the clock.
var timeNow = func() time.Time { return time.Now().UTC() }

// AuthHandlers serves the token endpoints.
type AuthHandlers struct {
	DB     *gorm.DB
	Tokens *auth.Manager
	DevOTP string // accepted OTP in dev mode; empty disables the endpoint
}

// VerifyOTPRequest is the JSON payload for POST /auth/verify-otp.
type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name"`
	Code  string `json:"code" binding:"required"`
}

// TokenPairResponse carries a freshly issued access/refresh pair.
type TokenPairResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *domain.User `json:"user,omitempty"`
}

// RefreshRequest is the JSON payload for refresh and logout.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// VerifyOTP exchanges a one-time code for a token pair, creating the user row
// on first contact and marking the email verified.
func (h *AuthHandlers) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and code are required")
		return
	}
	if h.DevOTP == "" || req.Code != h.DevOTP {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid code")
		return
	}

	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	u, err := repo.GetUserByEmail(ctx, h.DB, email)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = email
		}
		u, err = repo.CreateUser(ctx, h.DB, name, email, true)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not create user")
			return
		}
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "lookup failed")
		return
	default:
		if !u.EmailVerified {
			if err := repo.MarkEmailVerified(ctx, h.DB, u.ID); err != nil {
				fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not verify email")
				return
			}
			u.EmailVerified = true
		}
	}

	pair, err := h.issuePair(c, u)
	if err != nil {
		return
	}
	pair.User = u
	ok(c, http.StatusOK, pair)
}

// Refresh rotates a valid refresh token: the old session is revoked and a new
// pair is issued in its place.
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "refreshToken is required")
		return
	}

	claims, err := h.Tokens.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid refresh token")
		return
	}

	ctx := c.Request.Context()
	if _, err := repo.GetActiveSession(ctx, h.DB, req.RefreshToken); err != nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "session revoked or expired")
		return
	}
	if err := repo.RevokeSession(ctx, h.DB, req.RefreshToken); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not rotate session")
		return
	}

	u, err := repo.GetUserByID(ctx, h.DB, claims.UserID)
	if err != nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unknown user")
		return
	}

	pair, err := h.issuePair(c, u)
	if err != nil {
		return
	}
	ok(c, http.StatusOK, pair)
}

// Logout revokes the session holding the presented refresh token. Revoking an
// unknown token still returns 204 so logout is idempotent.
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "refreshToken is required")
		return
	}
	if err := repo.RevokeSession(c.Request.Context(), h.DB, req.RefreshToken); err != nil &&
		!errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not revoke session")
		return
	}
	noContent(c)
}

// issuePair signs a new access/refresh pair and persists the refresh session.
// On failure the HTTP error is already written.
func (h *AuthHandlers) issuePair(c *gin.Context, u *domain.User) (*TokenPairResponse, error) {
	access, err := h.Tokens.SignAccessToken(u)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not sign token")
		return nil, err
	}
	refresh, err := h.Tokens.SignRefreshToken(u.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not sign token")
		return nil, err
	}
	expires := timeNow().Add(h.Tokens.RefreshTokenTTL())
	if _, err := repo.CreateUserSession(c.Request.Context(), h.DB, u.ID, refresh, expires); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not persist session")
		return nil, err
	}
	return &TokenPairResponse{AccessToken: access, RefreshToken: refresh}, nil
}
