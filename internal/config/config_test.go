package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.StoreEngine != "sqlite" {
		t.Errorf("StoreEngine = %q, want sqlite", cfg.StoreEngine)
	}
	if cfg.AutosaveInterval != 30*time.Second {
		t.Errorf("AutosaveInterval = %s, want 30s", cfg.AutosaveInterval)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want INFO", cfg.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("AUTOSAVE_INTERVAL", "5s")
	t.Setenv("SHARE_TTL", "1h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q, want :9999", cfg.HTTPAddr)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want DEBUG", cfg.LogLevel)
	}
	if cfg.AutosaveInterval != 5*time.Second {
		t.Errorf("AutosaveInterval = %s, want 5s", cfg.AutosaveInterval)
	}
	if cfg.ShareTTL != time.Hour {
		t.Errorf("ShareTTL = %s, want 1h", cfg.ShareTTL)
	}
}

func TestLoadRejectsRedisEngineWithoutURL(t *testing.T) {
	t.Setenv("STORE_ENGINE", "redis")
	t.Setenv("REDIS_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for redis engine without REDIS_URL")
	}
}

func TestLoadRejectsZeroAutosave(t *testing.T) {
	t.Setenv("AUTOSAVE_INTERVAL", "0s")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero autosave interval")
	}
}
