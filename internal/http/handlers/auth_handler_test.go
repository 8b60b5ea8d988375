package handlers

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/decidr/decidr-backend/internal/auth"
	"github.com/decidr/decidr-backend/internal/config"
	"github.com/decidr/decidr-backend/internal/repo"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *gorm.DB, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tokens := auth.NewManagerFromKeys(priv, pub, config.JWTConfig{
		Issuer:          "decidr-backend",
		Audience:        "decidr-client",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})

	h := &AuthHandlers{DB: db, Tokens: tokens, DevOTP: "123456"}
	r := gin.New()
	r.POST("/auth/verify-otp", h.VerifyOTP)
	r.POST("/auth/refresh", h.Refresh)
	r.POST("/auth/logout", h.Logout)
	return r, db, tokens
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodePair(t *testing.T, w *httptest.ResponseRecorder) TokenPairResponse {
	t.Helper()
	var pair TokenPairResponse
	if err := json.Unmarshal(w.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode pair: %v (%s)", err, w.Body.String())
	}
	return pair
}

func TestVerifyOTPCreatesUser(t *testing.T) {
	r, _, tokens := newAuthRouter(t)

	w := postJSON(t, r, "/auth/verify-otp", VerifyOTPRequest{
		Email: "Alice@Example.com", Name: "Alice", Code: "123456",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	pair := decodePair(t, w)
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("token pair incomplete")
	}
	if pair.User == nil || pair.User.Email != "alice@example.com" || !pair.User.EmailVerified {
		t.Fatalf("user = %+v", pair.User)
	}

	id, err := tokens.VerifyAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if id.UserID != pair.User.ID {
		t.Fatalf("token subject = %q, want %q", id.UserID, pair.User.ID)
	}

	// Same email again resolves to the same user.
	w = postJSON(t, r, "/auth/verify-otp", VerifyOTPRequest{Email: "alice@example.com", Code: "123456"})
	if w.Code != http.StatusOK {
		t.Fatalf("second login: %d", w.Code)
	}
	if again := decodePair(t, w); again.User.ID != pair.User.ID {
		t.Fatalf("user id changed: %q vs %q", again.User.ID, pair.User.ID)
	}
}

func TestVerifyOTPRejectsBadCode(t *testing.T) {
	r, _, _ := newAuthRouter(t)

	w := postJSON(t, r, "/auth/verify-otp", VerifyOTPRequest{Email: "a@b.co", Code: "999999"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong code: status = %d", w.Code)
	}

	w = postJSON(t, r, "/auth/verify-otp", gin.H{"email": "not-an-email", "code": "123456"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad email: status = %d", w.Code)
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	r, _, _ := newAuthRouter(t)

	first := decodePair(t, postJSON(t, r, "/auth/verify-otp",
		VerifyOTPRequest{Email: "a@b.co", Code: "123456"}))

	w := postJSON(t, r, "/auth/refresh", RefreshRequest{RefreshToken: first.RefreshToken})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: status = %d: %s", w.Code, w.Body.String())
	}
	second := decodePair(t, w)
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token not rotated")
	}

	// The rotated-out token is dead.
	w = postJSON(t, r, "/auth/refresh", RefreshRequest{RefreshToken: first.RefreshToken})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh: status = %d, want 401", w.Code)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	r, _, _ := newAuthRouter(t)

	pair := decodePair(t, postJSON(t, r, "/auth/verify-otp",
		VerifyOTPRequest{Email: "a@b.co", Code: "123456"}))

	for i := 0; i < 2; i++ {
		w := postJSON(t, r, "/auth/logout", RefreshRequest{RefreshToken: pair.RefreshToken})
		if w.Code != http.StatusNoContent {
			t.Fatalf("logout %d: status = %d", i, w.Code)
		}
	}

	// A revoked session no longer refreshes.
	w := postJSON(t, r, "/auth/refresh", RefreshRequest{RefreshToken: pair.RefreshToken})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: status = %d, want 401", w.Code)
	}
}
