package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models taskboard.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret      string `yaml:"jwt_secret"`
		AllowAnonymous bool   `yaml:"allow_anonymous"`
	} `yaml:"auth"`
	Events struct {
		BufferSize int `yaml:"buffer_size"`
	} `yaml:"events"`
	Scheduler struct {
		Enabled         bool   `yaml:"enabled"`
		DueSweepSpec    string `yaml:"due_sweep"`
		RecurrenceSpec  string `yaml:"recurrence_sweep"`
		LogPruneSpec    string `yaml:"log_prune"`
		LogRetentionDay int    `yaml:"log_retention_days"`
	} `yaml:"scheduler"`
	Webhooks struct {
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"webhooks"`
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskboard.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = "127.0.0.1:3001"
	cfg.Server.BasePath = "/api"
	cfg.Auth.AllowAnonymous = true
	cfg.Events.BufferSize = 500
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.DueSweepSpec = "* * * * *"
	cfg.Scheduler.RecurrenceSpec = "0 0 * * *"
	cfg.Scheduler.LogPruneSpec = "0 0 * * 0"
	cfg.Scheduler.LogRetentionDay = 7
	cfg.Webhooks.TimeoutSeconds = 10
	return &cfg
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Missing fields
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Events.BufferSize <= 0 {
		return fmt.Errorf("config.events.buffer_size must be positive")
	}
	if c.Scheduler.LogRetentionDay <= 0 {
		return fmt.Errorf("config.scheduler.log_retention_days must be positive")
	}
	if c.Webhooks.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.webhooks.timeout_seconds must be positive")
	}
	return nil
}

// WebhookTimeout returns the outbound delivery timeout as a duration.
func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.Webhooks.TimeoutSeconds) * time.Second
}

// LogRetention returns how long automation log rows are kept.
func (c *Config) LogRetention() time.Duration {
	return time.Duration(c.Scheduler.LogRetentionDay) * 24 * time.Hour
}
