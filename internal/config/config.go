// internal/config/config.go
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	BaseURL string `yaml:"base_url"` // REST base, e.g. http://localhost:8008/api
}

type ReconnectConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMs int `yaml:"base_delay_ms"`
}

type TypewriterConfig struct {
	TickMs    int `yaml:"tick_ms"`
	StaggerMs int `yaml:"stagger_ms"` // start delay added per group message
}

type GroupProvider struct {
	Provider string `yaml:"provider"`
	ModelID  string `yaml:"model_id,omitempty"`
}

type GroupConfig struct {
	Providers     []GroupProvider `yaml:"providers"`
	ReplyStrategy string          `yaml:"reply_strategy"` // discussion or exclusive
	SystemPrompt  string          `yaml:"system_prompt,omitempty"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	ChatMode   string           `yaml:"chat_mode"` // single or group
	Provider   string           `yaml:"provider,omitempty"`
	Model      string           `yaml:"model,omitempty"`
	Reconnect  ReconnectConfig  `yaml:"reconnect"`
	Typewriter TypewriterConfig `yaml:"typewriter"`
	Group      GroupConfig      `yaml:"group"`
	DedupeMs   int              `yaml:"dedupe_window_ms"`
	RateTTLMin int              `yaml:"rate_ttl_minutes"`
}

func Load() (*Config, error) {
	data, err := os.ReadFile(Path())
	if err != nil {
		// Return defaults if no config file
		return defaultConfig(), nil
	}

	// Expand environment variables in config
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8008/api"
	}
	if cfg.ChatMode == "" {
		cfg.ChatMode = "single"
	}
	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect.MaxAttempts = 5
	}
	if cfg.Reconnect.BaseDelayMs == 0 {
		cfg.Reconnect.BaseDelayMs = 1000
	}
	if cfg.Typewriter.TickMs == 0 {
		cfg.Typewriter.TickMs = 30
	}
	if cfg.Typewriter.StaggerMs == 0 {
		cfg.Typewriter.StaggerMs = 500
	}
	if cfg.Group.ReplyStrategy == "" {
		cfg.Group.ReplyStrategy = "discussion"
	}
	if cfg.DedupeMs == 0 {
		cfg.DedupeMs = 5000
	}
	if cfg.RateTTLMin == 0 {
		cfg.RateTTLMin = 60
	}
}

// Derived durations.

func (c *Config) ReconnectBaseDelay() time.Duration {
	return time.Duration(c.Reconnect.BaseDelayMs) * time.Millisecond
}

func (c *Config) TypewriterTick() time.Duration {
	return time.Duration(c.Typewriter.TickMs) * time.Millisecond
}

func (c *Config) TypewriterStagger() time.Duration {
	return time.Duration(c.Typewriter.StaggerMs) * time.Millisecond
}

func (c *Config) DedupeWindow() time.Duration {
	return time.Duration(c.DedupeMs) * time.Millisecond
}

func (c *Config) RateTTL() time.Duration {
	return time.Duration(c.RateTTLMin) * time.Minute
}

func Path() string {
	configDir, err := os.UserConfigDir()
	if err != nil || configDir == "" {
		configDir = os.ExpandEnv("$HOME/.config")
	}
	return filepath.Join(configDir, "avatar", "config.yaml")
}
