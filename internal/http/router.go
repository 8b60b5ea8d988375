// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Two listeners exist: the REST API (RegisterRoutes) and the websocket
// gateway (RegisterSocketRoutes). They share the observability middleware but
// the socket listener skips body limits, idempotency, and the HTTP rate
// limiter, since chat events are throttled inside the gateway instead.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/decidr/decidr-backend/internal/auth"
	"github.com/decidr/decidr-backend/internal/chat"
	"github.com/decidr/decidr-backend/internal/config"
	"github.com/decidr/decidr-backend/internal/http/handlers"
	"github.com/decidr/decidr-backend/internal/http/middleware"
	"github.com/decidr/decidr-backend/internal/repo"
	"github.com/decidr/decidr-backend/internal/services"
)

// Deps carries the constructed application components the routers mount.
type Deps struct {
	DB       *gorm.DB
	Tokens   *auth.Manager
	Groups   *services.GroupService
	Messages *services.MessageService
	Gateway  *chat.Gateway
}

// RegisterRoutes attaches all middleware and REST endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per user/IP, bypass on replay)
//  9. CORS and security headers
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, groupID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, d.DB, userID, groupID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	useCORS(r, cfg)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		NoStore:      false,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	ah := &handlers.AuthHandlers{DB: d.DB, Tokens: d.Tokens, DevOTP: cfg.DevOTP}
	gh := &handlers.GroupHandlers{Groups: d.Groups}
	mh := &handlers.MessageHandlers{DB: d.DB, Messages: d.Messages, IdempotencyTTL: cfg.IdempotencyTTL}

	api := r.Group("/api/v1")
	{
		api.POST("/auth/verify-otp", ah.VerifyOTP)
		api.POST("/auth/refresh", ah.Refresh)
		api.POST("/auth/logout", ah.Logout)
	}

	authed := api.Group("", auth.Middleware(d.Tokens))
	{
		authed.POST("/groups", gh.Create)
		authed.GET("/groups", gh.List)
		authed.GET("/groups/:groupId", gh.Get)
		authed.DELETE("/groups/:groupId", gh.Delete)

		authed.GET("/groups/:groupId/members", gh.ListMembers)
		authed.POST("/groups/:groupId/members", gh.AddMember)
		authed.DELETE("/groups/:groupId/members/:userId", gh.RemoveMember)
		authed.PUT("/groups/:groupId/members/:userId/role", gh.ChangeRole)

		authed.POST("/groups/:groupId/messages", mh.Send)
		authed.GET("/groups/:groupId/messages", mh.History)
		authed.GET("/messages/:id", mh.Get)
		authed.PUT("/messages/:id", mh.Update)
		authed.DELETE("/messages/:id", mh.Delete)
	}
}

// RegisterSocketRoutes mounts the websocket gateway on its own engine. The
// gateway authenticates inside the handshake, so no auth middleware runs
// here; inbound event throttling happens inside the gateway.
func RegisterSocketRoutes(r *gin.Engine, d Deps) {
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ws", d.Gateway.Handler())
}

// useCORS installs the CORS posture: permissive when no allowlist is
// configured, strict origin matching otherwise.
func useCORS(r *gin.Engine, cfg config.Config) {
	common := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		common.AllowAllOrigins = true
		// Force ACAO even for requests without an Origin header so simple
		// health checks and tests see it.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(common))
		return
	}
	common.AllowOrigins = cfg.CORS.AllowedOrigins
	allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
	for _, o := range cfg.CORS.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	r.Use(cors.New(common))
}

// limitBody caps the request body size using http.MaxBytesReader; oversized
// bodies error on the first downstream read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
