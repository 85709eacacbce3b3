// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Player    PlayerConfig    `yaml:"player"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8090"`
}

// DatabaseConfig represents storage configuration.
type DatabaseConfig struct {
	Path string `yaml:"path" default:"yukebox.db"`
}

// PlayerConfig represents mpv subprocess configuration.
type PlayerConfig struct {
	Binary            string `yaml:"binary" default:"mpv"`
	SocketDir         string `yaml:"socket_dir" default:"/tmp/yukebox"`
	ConnectRetries    int    `yaml:"connect_retries" default:"20" validate:"gte=1"`
	ConnectRetryMs    int    `yaml:"connect_retry_ms" default:"250" validate:"gte=10"`
	RequestTimeoutMs  int    `yaml:"request_timeout_ms" default:"3000" validate:"gte=100"`
	HealthIntervalSec int    `yaml:"health_interval_sec" default:"15" validate:"gte=1"`
	HealthTimeoutMs   int    `yaml:"health_timeout_ms" default:"2000" validate:"gte=100"`
}

// SchedulerConfig represents the due-schedule poller configuration.
type SchedulerConfig struct {
	PollIntervalSec int `yaml:"poll_interval_sec" default:"5" validate:"gte=1"`
	GraceWindowSec  int `yaml:"grace_window_sec" default:"60" validate:"gte=1"`
}

// ResolverConfig represents track resolver configuration.
type ResolverConfig struct {
	Providers []ProviderConfig `yaml:"providers" validate:"required,min=1,dive"`
}

// ProviderConfig represents a single resolver provider configuration.
type ProviderConfig struct {
	Type     string         `yaml:"type" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" default:"info"`
	Output string `yaml:"output" default:"stdout"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("YUKEBOX_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("YUKEBOX_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("YUKEBOX_MPV_BINARY"); v != "" {
		c.Player.Binary = v
	}
	if v := os.Getenv("YUKEBOX_SOCKET_DIR"); v != "" {
		c.Player.SocketDir = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
