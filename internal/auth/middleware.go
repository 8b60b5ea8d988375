package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys set by Middleware for downstream handlers.
const (
	ctxKeyUserID   = "userID"
	ctxKeyIdentity = "identity"
)

// BearerToken extracts the token from the Authorization header or, as a
// fallback for websocket handshakes, the "token" query parameter.
func BearerToken(c *gin.Context) string {
	if authz := c.GetHeader("Authorization"); len(authz) > 7 &&
		strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return c.Query("token")
}

// Middleware rejects requests without a valid access token and stores the
// verified identity in the Gin context. Refresh tokens are rejected here;
// they are only accepted by the dedicated refresh endpoint.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "message": "missing bearer token"})
			return
		}
		id, err := m.VerifyAccessToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "message": "invalid token"})
			return
		}
		c.Set(ctxKeyUserID, id.UserID)
		c.Set(ctxKeyIdentity, id)
		c.Next()
	}
}

// UserID returns the authenticated user id stored by Middleware, or "".
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok2 := v.(string); ok2 {
			return s
		}
	}
	return ""
}

// IdentityFrom returns the verified identity stored by Middleware.
func IdentityFrom(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok
}
