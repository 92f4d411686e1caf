package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Memory.SessionTTL != 60*time.Minute {
		t.Errorf("SessionTTL = %v, want 60m", cfg.Memory.SessionTTL)
	}
	if cfg.Memory.BufferSize != 10 {
		t.Errorf("BufferSize = %d, want 10", cfg.Memory.BufferSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("SESSION_TTL", "5m")
	t.Setenv("MEMORY_BUFFER_SIZE", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want 9999", cfg.Port)
	}
	if cfg.Memory.SessionTTL != 5*time.Minute {
		t.Errorf("SessionTTL = %v, want 5m", cfg.Memory.SessionTTL)
	}
	if cfg.Memory.BufferSize != 3 {
		t.Errorf("BufferSize = %d, want 3", cfg.Memory.BufferSize)
	}
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("SESSION_TTL", "not-a-duration")
	t.Setenv("MEMORY_BUFFER_SIZE", "many")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Memory.SessionTTL != 60*time.Minute {
		t.Errorf("invalid SESSION_TTL should fall back to default")
	}
	if cfg.Memory.BufferSize != 10 {
		t.Errorf("invalid MEMORY_BUFFER_SIZE should fall back to default")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Port: "8080", DBPath: "x.db"}
	cfg.Memory.SessionTTL = time.Minute
	cfg.Memory.BufferSize = 1
	cfg.Memory.SweepInterval = time.Minute
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}

	cfg.Memory.BufferSize = 0
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected error for zero buffer size")
	}
}

func TestIsDevelopment(t *testing.T) {
	dev := &Config{FrontendURL: "http://localhost:3000"}
	if !dev.IsDevelopment() {
		t.Errorf("localhost frontend should be development")
	}
	prod := &Config{FrontendURL: "https://shop.raqibtech.com"}
	if prod.IsDevelopment() {
		t.Errorf("production frontend should not be development")
	}
}
