package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "0.0.0.0:5613", cfg.Addr())
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 30, cfg.RateLimit.MessagesPerMinute)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Cooldown.Duration())
	assert.Equal(t, 2000, cfg.Limits.PostContent)
	assert.False(t, cfg.Retention.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, 5613, cfg.Server.Port)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: 127.0.0.1
  port: 9000
  db_path: /tmp/chatdb
auth:
  validate_url: https://id.example/validate
  validate_key: secret
  default_roles: [member]
limits:
  post_content: 500
rate_limit:
  enabled: true
  messages_per_minute: 10
  burst_limit: 3
  cooldown: 90s
retention:
  enabled: true
  cron: "*/5 * * * *"
  period: 24h
logging:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, "/tmp/chatdb", cfg.Server.DBPath)
	assert.Equal(t, "secret", cfg.Auth.ValidateKey)
	assert.Equal(t, []string{"member"}, cfg.Auth.DefaultRoles)
	assert.Equal(t, 500, cfg.Limits.PostContent)
	assert.Equal(t, 90*time.Second, cfg.RateLimit.Cooldown.Duration())
	assert.True(t, cfg.Retention.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Retention.Period.Duration())
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))

	t.Setenv("ORIGINCHATS_PORT", "9100")
	t.Setenv("ORIGINCHATS_ADDR", "10.0.0.1")
	t.Setenv("ORIGINCHATS_VALIDATE_KEY", "envkey")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:9100", cfg.Addr())
	assert.Equal(t, "envkey", cfg.Auth.ValidateKey)
}

func TestDurationForms(t *testing.T) {
	var cfg Config
	require.NoError(t, unmarshalYAML(t, "rate_limit:\n  cooldown: 45s\n", &cfg))
	assert.Equal(t, 45*time.Second, cfg.RateLimit.Cooldown.Duration())

	// bare numbers are seconds
	require.NoError(t, unmarshalYAML(t, "rate_limit:\n  cooldown: 90\n", &cfg))
	assert.Equal(t, 90*time.Second, cfg.RateLimit.Cooldown.Duration())

	assert.Error(t, unmarshalYAML(t, "rate_limit:\n  cooldown: soon\n", &cfg))
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.DBPath = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.RateLimit.MessagesPerMinute = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.MessagesPerMinute = -1
	assert.NoError(t, cfg.Validate())
}

func unmarshalYAML(t *testing.T, doc string, cfg *Config) error {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frag.yml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	loaded, err := Load(path)
	if err != nil {
		return err
	}
	*cfg = *loaded
	return nil
}
