package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTPPort != "3000" || cfg.SocketPort != "8001" {
		t.Fatalf("ports = %s/%s", cfg.HTTPPort, cfg.SocketPort)
	}
	if cfg.LogLevel != "info" || cfg.GinMode != "release" {
		t.Fatalf("log=%s mode=%s", cfg.LogLevel, cfg.GinMode)
	}
	if cfg.JWT.Issuer != "decidr-backend" || cfg.JWT.Audience != "decidr-client" {
		t.Fatalf("jwt = %+v", cfg.JWT)
	}
	if cfg.JWT.AccessTokenTTL != 15*time.Minute || cfg.JWT.RefreshTokenTTL != 30*24*time.Hour {
		t.Fatalf("ttls = %v/%v", cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rest rate = %v/%d", cfg.RateRPS, cfg.RateBurst)
	}
	if cfg.ChatRateRPS != 10.0 || cfg.ChatRateBurst != 20 {
		t.Fatalf("chat rate = %v/%d", cfg.ChatRateRPS, cfg.ChatRateBurst)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("idempotency ttl = %v", cfg.IdempotencyTTL)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.SampleRatio != 1.0 {
		t.Fatalf("otel = %+v", cfg.OTEL)
	}
	if cfg.CORS.AllowedOrigins != nil {
		t.Fatalf("cors = %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoadOverridesAndNormalization(t *testing.T) {
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("GIN_MODE", "bogus")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , https://b.example ,")
	t.Setenv("RATE_RPS", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %q, want warn", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("gin mode = %q, want release fallback", cfg.GinMode)
	}
	if cfg.JWT.AccessTokenTTL != 5*time.Minute {
		t.Fatalf("access ttl = %v", cfg.JWT.AccessTokenTTL)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[0] != "https://a.example" {
		t.Fatalf("origins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.RateRPS != 2.5 {
		t.Fatalf("rate = %v", cfg.RateRPS)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"equal ports", map[string]string{"HTTP_PORT": "9000", "SOCKET_PORT": "9000"}, "must differ"},
		{"negative timeout", map[string]string{"READ_TIMEOUT": "-5s"}, "timeouts"},
		{"zero burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"bad sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
		{"negative idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "-1h"}, "IDEMPOTENCY_TTL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}
