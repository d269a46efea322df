package config

import (
	"os"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RunAddress != "localhost:8080" {
		t.Fatalf("unexpected run address: %s", cfg.RunAddress)
	}
	if cfg.SessionBackend != BackendMemory {
		t.Fatalf("unexpected backend: %s", cfg.SessionBackend)
	}
	if cfg.RestoreTimeout != 5*time.Second {
		t.Fatalf("unexpected restore timeout: %s", cfg.RestoreTimeout)
	}
}

func TestEnvOverridesFlags(t *testing.T) {
	t.Setenv("RUN_ADDRESS", ":9000")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("REDIS_DB", "3")

	cfg, err := parse([]string{"-a", ":7000", "-s", "redis"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RunAddress != ":9000" {
		t.Fatalf("expected env to win over flag, got %s", cfg.RunAddress)
	}
	if cfg.SessionBackend != BackendRedis {
		t.Fatalf("expected flag backend, got %s", cfg.SessionBackend)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("unexpected ttl: %s", cfg.SessionTTL)
	}
	if !cfg.CookieSecure {
		t.Fatalf("expected secure cookie")
	}
	if cfg.RedisDB != 3 {
		t.Fatalf("unexpected redis db: %d", cfg.RedisDB)
	}
}

func TestInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("AUTH_API_TIMEOUT", "soon")

	cfg, err := parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AuthAPITimeout != 10*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.AuthAPITimeout)
	}
}

func TestUnknownFlag(t *testing.T) {
	if _, err := parse([]string{"-nope"}); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
}

func TestUnknownSessionBackend(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "postgress")
	if _, err := parse(nil); err == nil {
		t.Fatalf("expected error for unknown session backend")
	}
}

func TestPostgresBackendNeedsDSN(t *testing.T) {
	t.Setenv("DATABASE_URI", "")
	os.Unsetenv("DATABASE_URI")
	if _, err := parse([]string{"-s", "postgres"}); err == nil {
		t.Fatalf("expected error for postgres backend without DATABASE_URI")
	}
	if _, err := parse([]string{"-s", "postgres", "-d", "postgres://localhost/authgate"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
