package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Server.Port, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, def.Limits.MaxMessageSize, cfg.Limits.MaxMessageSize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  host: 127.0.0.1
security:
  jwt_secret: "0123456789abcdef0123456789abcdef"
logging:
  level: debug
`), 0o600))
	t.Setenv(PathEnvVar, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
	// Values the file does not set keep their defaults.
	assert.Equal(t, 24*time.Hour, cfg.Security.TokenTTL)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600))
	t.Setenv(PathEnvVar, path)
	t.Setenv("CONCORD_SERVER__PORT", "9100")
	t.Setenv("CONCORD_LOGGING__LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestOriginsFromEnvCommaSeparated(t *testing.T) {
	t.Setenv("CONCORD_SECURITY__ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"https://app.example.com", "https://admin.example.com"},
		cfg.Security.AllowedOrigins)
}

func TestSanitizeRepairsBadValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = -1
	cfg.Security.BcryptCost = 99
	cfg.sanitize()

	def := Default()
	assert.Equal(t, def.Server.Port, cfg.Server.Port)
	assert.Equal(t, def.Security.BcryptCost, cfg.Security.BcryptCost)
	assert.Equal(t, def.Limits.MessageBurst, cfg.Limits.MessageBurst)
}

func TestValidateRequiresStrongSecret(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "empty secret must fail")

	cfg.Security.JWTSecret = "short"
	assert.Error(t, cfg.Validate())

	cfg.Security.JWTSecret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.Validate())
}
