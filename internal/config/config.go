// Package config loads the Concord server configuration from layered sources:
// built-in defaults, an optional YAML file, and environment variables, with
// environment variables taking the highest precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for all Concord environment variables. A double
// underscore separates nesting levels so single underscores survive inside
// key names, e.g. CONCORD_SERVER__PORT=9090 maps to server.port and
// CONCORD_LIMITS__MAX_MESSAGE_SIZE to limits.max_message_size.
const EnvPrefix = "CONCORD_"

// PathEnvVar overrides the config file search path when set.
const PathEnvVar = "CONCORD_CONFIG"

// DefaultPaths lists config file locations probed in order.
var DefaultPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/concord/config.yaml",
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig holds authentication and origin-control settings.
type SecurityConfig struct {
	JWTSecret      string        `koanf:"jwt_secret"`
	TokenTTL       time.Duration `koanf:"token_ttl"`
	BcryptCost     int           `koanf:"bcrypt_cost"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// LimitsConfig holds transport abuse-control settings. MessageRate and
// MessageBurst feed the per-connection token bucket; the HTTP fields feed
// httprate middleware on the REST API.
type LimitsConfig struct {
	MaxMessageSize   int64         `koanf:"max_message_size"`
	MessageRate      float64       `koanf:"message_rate"`
	MessageBurst     int           `koanf:"message_burst"`
	HTTPRateRequests int           `koanf:"http_rate_requests"`
	HTTPRateWindow   time.Duration `koanf:"http_rate_window"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Config is the root configuration for the Concord server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Database DatabaseConfig `koanf:"database"`
	Limits   LimitsConfig   `koanf:"limits"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// Default returns the built-in defaults applied before file and env layers.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			JWTSecret:      "",
			TokenTTL:       24 * time.Hour,
			BcryptCost:     12,
			AllowedOrigins: []string{"http://localhost:8080"},
		},
		Database: DatabaseConfig{
			Path: "concord.db",
		},
		Limits: LimitsConfig{
			MaxMessageSize:   64 * 1024,
			MessageRate:      5,
			MessageBurst:     10,
			HTTPRateRequests: 100,
			HTTPRateWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// CONCORD_* environment variables, then sanitizes the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Origins arrive as a comma-separated string when set via environment.
	if raw := k.String("security.allowed_origins"); raw != "" && strings.Contains(raw, ",") {
		cfg.Security.AllowedOrigins = splitAndTrim(raw)
	}

	cfg.sanitize()
	return cfg, nil
}

func findConfigFile() string {
	if path := os.Getenv(PathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// sanitize replaces unusable values with defaults so a partially configured
// server still starts with safe settings.
func (c *Config) sanitize() {
	def := Default()

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if c.Server.IdleTimeout <= 0 {
		c.Server.IdleTimeout = def.Server.IdleTimeout
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if c.Security.TokenTTL <= 0 {
		c.Security.TokenTTL = def.Security.TokenTTL
	}
	if c.Security.BcryptCost < 4 || c.Security.BcryptCost > 31 {
		c.Security.BcryptCost = def.Security.BcryptCost
	}
	if c.Database.Path == "" {
		c.Database.Path = def.Database.Path
	}
	if c.Limits.MaxMessageSize <= 0 {
		c.Limits.MaxMessageSize = def.Limits.MaxMessageSize
	}
	if c.Limits.MessageRate <= 0 {
		c.Limits.MessageRate = def.Limits.MessageRate
	}
	if c.Limits.MessageBurst <= 0 {
		c.Limits.MessageBurst = def.Limits.MessageBurst
	}
	if c.Limits.HTTPRateRequests <= 0 {
		c.Limits.HTTPRateRequests = def.Limits.HTTPRateRequests
	}
	if c.Limits.HTTPRateWindow <= 0 {
		c.Limits.HTTPRateWindow = def.Limits.HTTPRateWindow
	}
}

// Validate reports configuration errors that must stop startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Security.JWTSecret) == "" {
		return fmt.Errorf("security.jwt_secret is required")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	return nil
}
