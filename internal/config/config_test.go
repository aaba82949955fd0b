// internal/config/config_test.go
package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.BaseURL != "http://localhost:8008/api" {
		t.Errorf("default base URL wrong, got %s", cfg.Server.BaseURL)
	}
	if cfg.ChatMode != "single" {
		t.Errorf("default chat mode should be 'single', got %s", cfg.ChatMode)
	}
	if cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("MaxAttempts should be 5, got %d", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Reconnect.BaseDelayMs != 1000 {
		t.Errorf("BaseDelayMs should be 1000, got %d", cfg.Reconnect.BaseDelayMs)
	}
	if cfg.Typewriter.TickMs != 30 {
		t.Errorf("TickMs should be 30, got %d", cfg.Typewriter.TickMs)
	}
	if cfg.DedupeMs != 5000 {
		t.Errorf("DedupeMs should be 5000, got %d", cfg.DedupeMs)
	}
}

func TestDerivedDurations(t *testing.T) {
	cfg := defaultConfig()

	if cfg.ReconnectBaseDelay() != time.Second {
		t.Errorf("ReconnectBaseDelay should be 1s, got %v", cfg.ReconnectBaseDelay())
	}
	if cfg.TypewriterTick() != 30*time.Millisecond {
		t.Errorf("TypewriterTick should be 30ms, got %v", cfg.TypewriterTick())
	}
	if cfg.DedupeWindow() != 5*time.Second {
		t.Errorf("DedupeWindow should be 5s, got %v", cfg.DedupeWindow())
	}
	if cfg.RateTTL() != time.Hour {
		t.Errorf("RateTTL should be 1h, got %v", cfg.RateTTL())
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}
}
