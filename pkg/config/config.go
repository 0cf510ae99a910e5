package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default returns the built-in configuration. Every knob here can be
// overridden by the YAML file and, for a small set, by environment
// variables (see applyEnv).
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "0.0.0.0",
			Port:    5613,
			DBPath:  "./data/db",
			DataDir: "./data/seed",
		},
		Auth: AuthConfig{
			AttemptsPerSecond: 1,
			AttemptsBurst:     5,
			DefaultRoles:      []string{"user"},
		},
		Limits: LimitsConfig{
			PostContent:    2000,
			FetchDefault:   100,
			RepliesDefault: 50,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			MessagesPerMinute: 30,
			BurstLimit:        5,
			Cooldown:          Duration(60 * time.Second),
		},
		Retention: RetentionConfig{
			Enabled: false,
			Cron:    "0 2 * * *",
			Period:  Duration(30 * 24 * time.Hour),
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML config at path on top of the defaults and then applies
// environment overrides. A missing file is not an error: the defaults plus
// env are returned so the server can start with no config at all.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies ORIGINCHATS_* environment overrides. Env wins over file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ORIGINCHATS_ADDR"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("ORIGINCHATS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("ORIGINCHATS_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}
	if v := os.Getenv("ORIGINCHATS_DATA_DIR"); v != "" {
		cfg.Server.DataDir = v
	}
	if v := os.Getenv("ORIGINCHATS_VALIDATE_URL"); v != "" {
		cfg.Auth.ValidateURL = v
	}
	if v := os.Getenv("ORIGINCHATS_VALIDATE_KEY"); v != "" {
		cfg.Auth.ValidateKey = v
	}
	if v := os.Getenv("ORIGINCHATS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate rejects configs the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.DBPath == "" {
		return fmt.Errorf("server.db_path must not be empty")
	}
	if c.Limits.PostContent <= 0 {
		return fmt.Errorf("limits.post_content must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.MessagesPerMinute <= 0 {
			return fmt.Errorf("rate_limit.messages_per_minute must be positive")
		}
		if c.RateLimit.BurstLimit <= 0 {
			return fmt.Errorf("rate_limit.burst_limit must be positive")
		}
		if c.RateLimit.Cooldown.Duration() <= 0 {
			return fmt.Errorf("rate_limit.cooldown must be positive")
		}
	}
	return nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
