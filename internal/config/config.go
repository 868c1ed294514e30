// ABOUTME: Configuration loading and parsing for supportd
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete supportd configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Provider ProviderConfig `yaml:"provider"`
	Support  SupportConfig  `yaml:"support"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds the connection settings for the lock store backend.
// When Addr is empty the in-memory lock store is used instead (single
// instance deployments and tests).
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AMQPConfig holds the message-ingest broker settings
type AMQPConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	Queue      string `yaml:"queue"`
	BindingKey string `yaml:"binding_key"`
	Prefetch   int    `yaml:"prefetch"`
}

// ProviderConfig holds the external messaging provider settings
type ProviderConfig struct {
	BaseURL     string `yaml:"base_url"`
	AdminUserID string `yaml:"admin_user_id"`
	Secret      string `yaml:"secret"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// SupportConfig holds the conversation coordination timing configuration
type SupportConfig struct {
	LockTTL           time.Duration `yaml:"-"`
	HeartbeatInterval time.Duration `yaml:"-"`
	SessionTimeout    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	LockTTLRaw           string `yaml:"lock_ttl"`
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
	SessionTimeoutRaw    string `yaml:"session_timeout"`

	// SessionQueueSize bounds the per-session event backlog
	SessionQueueSize int `yaml:"session_queue_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default timing values applied when the config file leaves them unset.
const (
	DefaultLockTTL           = 30 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultSessionTimeout    = 45 * time.Second
	DefaultSessionQueueSize  = 64
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in timing values left unset by the config file
func (c *Config) applyDefaults() {
	if c.Support.LockTTL == 0 {
		c.Support.LockTTL = DefaultLockTTL
	}
	if c.Support.HeartbeatInterval == 0 {
		c.Support.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Support.SessionTimeout == 0 {
		c.Support.SessionTimeout = DefaultSessionTimeout
	}
	if c.Support.SessionQueueSize == 0 {
		c.Support.SessionQueueSize = DefaultSessionQueueSize
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 10 * time.Second
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// Heartbeats must fire strictly more often than the lock expires,
	// otherwise a healthy operator would lose ownership between renewals.
	if c.Support.HeartbeatInterval >= c.Support.LockTTL {
		return fmt.Errorf("support.heartbeat_interval (%s) must be shorter than support.lock_ttl (%s)",
			c.Support.HeartbeatInterval, c.Support.LockTTL)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Support.LockTTLRaw != "" {
		cfg.Support.LockTTL, err = time.ParseDuration(cfg.Support.LockTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing lock_ttl %q: %w", cfg.Support.LockTTLRaw, err)
		}
	}

	if cfg.Support.HeartbeatIntervalRaw != "" {
		cfg.Support.HeartbeatInterval, err = time.ParseDuration(cfg.Support.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.Support.HeartbeatIntervalRaw, err)
		}
	}

	if cfg.Support.SessionTimeoutRaw != "" {
		cfg.Support.SessionTimeout, err = time.ParseDuration(cfg.Support.SessionTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing session_timeout %q: %w", cfg.Support.SessionTimeoutRaw, err)
		}
	}

	if cfg.Provider.TimeoutRaw != "" {
		cfg.Provider.Timeout, err = time.ParseDuration(cfg.Provider.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing provider timeout %q: %w", cfg.Provider.TimeoutRaw, err)
		}
	}

	return nil
}
