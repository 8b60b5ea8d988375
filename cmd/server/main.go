// Command server runs the chat backend: the REST API on HTTP_PORT and the
// websocket gateway on SOCKET_PORT, sharing one SQLite store and one presence
// cache. Both listeners drain gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/decidr/decidr-backend/internal/auth"
	"github.com/decidr/decidr-backend/internal/authz"
	"github.com/decidr/decidr-backend/internal/chat"
	"github.com/decidr/decidr-backend/internal/config"
	httpapi "github.com/decidr/decidr-backend/internal/http"
	"github.com/decidr/decidr-backend/internal/observability"
	"github.com/decidr/decidr-backend/internal/presence"
	"github.com/decidr/decidr-backend/internal/repo"
	"github.com/decidr/decidr-backend/internal/services"
	"github.com/decidr/decidr-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("db open")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	cache := presence.Connect(cfg.RedisAddr, cfg.RedisDB)

	if cfg.GinMode == "debug" {
		if err := auth.EnsureDevKeyPair(cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath); err != nil {
			log.Fatal().Err(err).Msg("dev key pair")
		}
		if cfg.DevOTP == "" {
			cfg.DevOTP = "000000"
			log.Warn().Msg("DEV_OTP not set, using default dev code")
		}
	}
	tokens, err := auth.NewManager(cfg.JWT)
	if err != nil {
		log.Fatal().Err(err).Msg("jwt keys")
	}

	oracle := authz.NewOracle(db)
	hub := chat.NewHub()
	msgSvc := &services.MessageService{DB: db, Oracle: oracle, Cache: cache, Rooms: hub}
	groupSvc := &services.GroupService{DB: db, Oracle: oracle, Rooms: hub}
	gateway := &chat.Gateway{
		Hub:      hub,
		Cache:    cache,
		Tokens:   tokens,
		Oracle:   oracle,
		Messages: msgSvc,
		Limiter:  chat.NewEventLimiter(cfg.ChatRateRPS, cfg.ChatRateBurst),
	}

	deps := httpapi.Deps{
		DB:       db,
		Tokens:   tokens,
		Groups:   groupSvc,
		Messages: msgSvc,
		Gateway:  gateway,
	}

	api := gin.New()
	httpapi.RegisterRoutes(api, deps, cfg)
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	sock := gin.New()
	httpapi.RegisterSocketRoutes(sock, deps)
	// No read/write timeouts here: websocket connections are long-lived and
	// keepalive is handled by ping/pong inside the gateway.
	sockSrv := &http.Server{
		Addr:              ":" + cfg.SocketPort,
		Handler:           sock,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go serve(apiSrv, "api")
	go serve(sockSrv, "socket")
	log.Info().
		Str("version", version).
		Str("http_port", cfg.HTTPPort).
		Str("socket_port", cfg.SocketPort).
		Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api shutdown")
	}
	if err := sockSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("socket shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("bye")
}

func serve(srv *http.Server, name string) {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Str("listener", name).Msg("listen")
	}
}
