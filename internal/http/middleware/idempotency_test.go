package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestIdempotencyNoHeaderIsNoop(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{}, nil))
	r.POST("/groups/:groupId/messages", func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok {
			t.Error("key should be absent")
		}
		if IsReplay(c) {
			t.Error("replay should be false")
		}
		c.Status(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/groups/g1/messages", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestIdempotencyRejectsBadKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{}, nil))
	r.POST("/groups/:groupId/messages", func(c *gin.Context) { c.Status(http.StatusCreated) })

	for _, key := range []string{"has space", "emojié", strings.Repeat("a", 201)} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/groups/g1/messages", nil)
		req.Header.Set(HeaderIdempotencyKey, key)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("key %q: status = %d, want 400", key, w.Code)
		}
	}
}

func TestIdempotencyReplayDetection(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var gotUser, gotGroup, gotKey string
	lookup := func(_ context.Context, userID, groupID, key string, _ time.Time) (bool, error) {
		gotUser, gotGroup, gotKey = userID, groupID, key
		return key == "seen-before", nil
	}

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("userID", "u1") })
	r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))

	var replay, bypass bool
	r.POST("/groups/:groupId/messages", func(c *gin.Context) {
		replay, bypass = IsReplay(c), IsRateBypass(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/groups/g42/messages", nil)
	req.Header.Set(HeaderIdempotencyKey, "seen-before")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if gotUser != "u1" || gotGroup != "g42" || gotKey != "seen-before" {
		t.Fatalf("lookup got (%q,%q,%q)", gotUser, gotGroup, gotKey)
	}
	if !replay || !bypass {
		t.Fatalf("replay=%v bypass=%v, want both true", replay, bypass)
	}

	// A fresh key passes through without flags.
	req = httptest.NewRequest("POST", "/groups/g42/messages", nil)
	req.Header.Set(HeaderIdempotencyKey, "fresh-key")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if replay || bypass {
		t.Fatalf("fresh key: replay=%v bypass=%v, want both false", replay, bypass)
	}
}
