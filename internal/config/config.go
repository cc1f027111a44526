// Package config loads and validates the gateway configuration from a YAML
// file with FLOODGATE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/floodgatehq/floodgate/internal/auth"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server" json:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log" json:"log"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth" json:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit" json:"rate_limit"`
	Transfer  TransferConfig  `yaml:"transfer" mapstructure:"transfer" json:"transfer"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify" json:"notify"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers" json:"providers"`
}

// ServerConfig represents the HTTP listener configuration.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host" json:"host"`
	Port int    `yaml:"port" mapstructure:"port" json:"port"`
}

// Address joins host and port for the listener.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig represents logging and rotation configuration.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level" json:"level"`
	File       string `yaml:"file" mapstructure:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" mapstructure:"compress" json:"compress"`
}

// AuthConfig selects and configures the auth handler.
type AuthConfig struct {
	// Mode is "remote" (external auth provider) or "static" (grants from
	// this file).
	Mode string `yaml:"mode" mapstructure:"mode" json:"mode"`

	// URL of the remote auth provider; required in remote mode.
	URL string `yaml:"url" mapstructure:"url" json:"url"`

	// Secret verifies HS256 bearer tokens in static mode. Empty disables
	// verification (development only).
	Secret string `yaml:"secret" mapstructure:"secret" json:"-"`

	Grants []auth.StaticGrant `yaml:"grants" mapstructure:"grants" json:"grants"`
}

// RateLimitConfig configures the fixed-window limiter.
type RateLimitConfig struct {
	Enabled       *bool  `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Limit         int64  `yaml:"limit" mapstructure:"limit" json:"limit"`
	WindowSeconds int    `yaml:"window_seconds" mapstructure:"window_seconds" json:"window_seconds"`
	Backend       string `yaml:"backend" mapstructure:"backend" json:"backend"`
	RedisURL      string `yaml:"redis_url" mapstructure:"redis_url" json:"-"`
	PostgresDSN   string `yaml:"postgres_dsn" mapstructure:"postgres_dsn" json:"-"`
}

// Window returns the window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// IsEnabled resolves the tri-state flag; limiting defaults to off.
func (r RateLimitConfig) IsEnabled() bool {
	return r.Enabled != nil && *r.Enabled
}

// TransferConfig bounds the copy/move engine.
type TransferConfig struct {
	InactivityTimeoutSeconds int    `yaml:"inactivity_timeout_seconds" mapstructure:"inactivity_timeout_seconds" json:"inactivity_timeout_seconds"`
	SpoolDir                 string `yaml:"spool_dir" mapstructure:"spool_dir" json:"spool_dir"`
	SpoolMaxAgeMinutes       int    `yaml:"spool_max_age_minutes" mapstructure:"spool_max_age_minutes" json:"spool_max_age_minutes"`
}

// InactivityTimeout returns the transfer watchdog duration.
func (t TransferConfig) InactivityTimeout() time.Duration {
	return time.Duration(t.InactivityTimeoutSeconds) * time.Second
}

// NotifyConfig configures the post-mutation notification hook.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url" json:"webhook_url"`
}

// ProvidersConfig holds per-provider process-wide settings.
type ProvidersConfig struct {
	LocalFS LocalFSConfig `yaml:"localfs" mapstructure:"localfs" json:"localfs"`
}

// LocalFSConfig roots the local filesystem provider.
type LocalFSConfig struct {
	Root string `yaml:"root" mapstructure:"root" json:"root"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 7777},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
		},
		Auth: AuthConfig{Mode: "static"},
		RateLimit: RateLimitConfig{
			Limit:         3600,
			WindowSeconds: 3600,
			Backend:       "memory",
		},
		Transfer: TransferConfig{
			InactivityTimeoutSeconds: 600,
			SpoolDir:                 filepath.Join(os.TempDir(), "floodgate-spool"),
			SpoolMaxAgeMinutes:       120,
		},
		Providers: ProvidersConfig{
			LocalFS: LocalFSConfig{Root: "./data"},
		},
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	switch c.Auth.Mode {
	case "static":
	case "remote":
		if c.Auth.URL == "" {
			return fmt.Errorf("auth.url is required in remote mode")
		}
	default:
		return fmt.Errorf("auth.mode %q is not one of static, remote", c.Auth.Mode)
	}

	if c.RateLimit.IsEnabled() {
		if c.RateLimit.Limit <= 0 {
			return fmt.Errorf("rate_limit.limit must be positive")
		}
		if c.RateLimit.WindowSeconds <= 0 {
			return fmt.Errorf("rate_limit.window_seconds must be positive")
		}
		switch c.RateLimit.Backend {
		case "memory":
		case "redis":
			if c.RateLimit.RedisURL == "" {
				return fmt.Errorf("rate_limit.redis_url is required with the redis backend")
			}
		case "postgres":
			if c.RateLimit.PostgresDSN == "" {
				return fmt.Errorf("rate_limit.postgres_dsn is required with the postgres backend")
			}
		default:
			return fmt.Errorf("rate_limit.backend %q is not one of memory, redis, postgres", c.RateLimit.Backend)
		}
	}

	if c.Transfer.InactivityTimeoutSeconds < 0 {
		return fmt.Errorf("transfer.inactivity_timeout_seconds cannot be negative")
	}
	return nil
}

// LoadConfig reads configuration from configFile, layering FLOODGATE_*
// environment variables over it. A missing file yields the defaults.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLOODGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	config := DefaultConfig()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveToFile writes the configuration as YAML.
func SaveToFile(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
