package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Limits    LimitsConfig    `yaml:"limits"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds listener and storage paths.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
	// DataDir holds the JSON seed files (users.json, roles.json,
	// channels.json) mirrored into the store by the watcher.
	DataDir string `yaml:"data_dir"`
}

// AuthConfig holds the external identity validator settings.
type AuthConfig struct {
	ValidateURL string `yaml:"validate_url"`
	ValidateKey string `yaml:"validate_key"`
	// Per-IP throttle for authentication attempts.
	AttemptsPerSecond float64 `yaml:"attempts_per_second"`
	AttemptsBurst     int     `yaml:"attempts_burst"`
	// Roles granted to a user provisioned on first connect.
	DefaultRoles []string `yaml:"default_roles"`
}

// LimitsConfig holds payload shape limits.
type LimitsConfig struct {
	PostContent    int `yaml:"post_content"`
	FetchDefault   int `yaml:"fetch_default"`
	RepliesDefault int `yaml:"replies_default"`
}

// RateLimitConfig holds per-user message admission settings.
type RateLimitConfig struct {
	Enabled           bool     `yaml:"enabled"`
	MessagesPerMinute int      `yaml:"messages_per_minute"`
	BurstLimit        int      `yaml:"burst_limit"`
	Cooldown          Duration `yaml:"cooldown"`
}

// RetentionConfig holds the scheduled message purge settings.
type RetentionConfig struct {
	Enabled bool     `yaml:"enabled"`
	Cron    string   `yaml:"cron"`
	Period  Duration `yaml:"period"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
}

// Duration is a wrapper around time.Duration that supports YAML parsing
// from strings like "60s" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
