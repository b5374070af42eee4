package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "APP_ENV", "ACCESS_TOKEN_TTL", "CART_TTL", "CART_SWEEP_INTERVAL", "LOG_FORMAT", "REDIS_DB"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected default address :8080, got %q", cfg.Address())
	}
	if cfg.AccessTokenTTL != 8*time.Hour {
		t.Fatalf("expected default token ttl 8h, got %s", cfg.AccessTokenTTL)
	}
	if cfg.CartTTL != 12*time.Hour || cfg.CartSweepInterval != 10*time.Minute {
		t.Fatalf("unexpected cart timings %s / %s", cfg.CartTTL, cfg.CartSweepInterval)
	}
	if cfg.LogFormat != "json" || cfg.IsProduction() {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("CART_TTL", "30m")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("LOG_FORMAT", " TEXT ")
	t.Setenv("AUTH_SECRET", "  0123456789abcdef0123456789abcdef  ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Address() != ":9090" || !cfg.IsProduction() {
		t.Fatalf("unexpected address/env %+v", cfg)
	}
	if cfg.CartTTL != 30*time.Minute || cfg.RedisDB != 3 || cfg.LogFormat != "text" {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if len(cfg.AuthSecret) != 32 {
		t.Fatalf("expected trimmed secret, got %q", cfg.AuthSecret)
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("CART_TTL", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("expected malformed duration to fail")
	}
}
