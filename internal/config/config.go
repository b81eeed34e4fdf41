// ABOUTME: Configuration loading and parsing for the plaza server
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete plaza server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Plaza   PlazaConfig   `yaml:"plaza"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds listener address configuration
type ServerConfig struct {
	WSAddr  string `yaml:"ws_addr"`
	APIAddr string `yaml:"api_addr"`
}

// PlazaConfig holds coordination timing and capacity configuration
type PlazaConfig struct {
	HeartbeatInterval  time.Duration `yaml:"-"`
	HeartbeatTimeout   time.Duration `yaml:"-"`
	SweepInterval      time.Duration `yaml:"-"`
	MessageLogCapacity int           `yaml:"message_log_capacity"`

	// Raw string values for YAML unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
	HeartbeatTimeoutRaw  string `yaml:"heartbeat_timeout"`
	SweepIntervalRaw     string `yaml:"sweep_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default timing: agents heartbeat every 15s, two
// missed heartbeats trigger eviction on a 30s sweep.
const (
	DefaultHeartbeatInterval  = 15 * time.Second
	DefaultHeartbeatTimeout   = 60 * time.Second
	DefaultSweepInterval      = 30 * time.Second
	DefaultMessageLogCapacity = 10000
)

// Default returns a configuration with all defaults applied, suitable for
// tests and for running without a config file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			WSAddr:  "localhost:8080",
			APIAddr: "localhost:8081",
		},
		Plaza: PlazaConfig{
			HeartbeatInterval:  DefaultHeartbeatInterval,
			HeartbeatTimeout:   DefaultHeartbeatTimeout,
			SweepInterval:      DefaultSweepInterval,
			MessageLogCapacity: DefaultMessageLogCapacity,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

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

// applyDefaults fills in zero-valued fields.
func (c *Config) applyDefaults() {
	if c.Plaza.HeartbeatInterval == 0 {
		c.Plaza.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Plaza.HeartbeatTimeout == 0 {
		c.Plaza.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Plaza.SweepInterval == 0 {
		c.Plaza.SweepInterval = DefaultSweepInterval
	}
	if c.Plaza.MessageLogCapacity == 0 {
		c.Plaza.MessageLogCapacity = DefaultMessageLogCapacity
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.WSAddr == "" {
		return fmt.Errorf("server.ws_addr is required")
	}
	if c.Server.APIAddr == "" {
		return fmt.Errorf("server.api_addr is required")
	}
	if c.Plaza.HeartbeatTimeout <= c.Plaza.HeartbeatInterval {
		return fmt.Errorf("plaza.heartbeat_timeout (%s) must exceed plaza.heartbeat_interval (%s)",
			c.Plaza.HeartbeatTimeout, c.Plaza.HeartbeatInterval)
	}
	if c.Plaza.MessageLogCapacity < 0 {
		return fmt.Errorf("plaza.message_log_capacity must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Plaza.HeartbeatIntervalRaw != "" {
		cfg.Plaza.HeartbeatInterval, err = time.ParseDuration(cfg.Plaza.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.Plaza.HeartbeatIntervalRaw, err)
		}
	}

	if cfg.Plaza.HeartbeatTimeoutRaw != "" {
		cfg.Plaza.HeartbeatTimeout, err = time.ParseDuration(cfg.Plaza.HeartbeatTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_timeout %q: %w", cfg.Plaza.HeartbeatTimeoutRaw, err)
		}
	}

	if cfg.Plaza.SweepIntervalRaw != "" {
		cfg.Plaza.SweepInterval, err = time.ParseDuration(cfg.Plaza.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Plaza.SweepIntervalRaw, err)
		}
	}

	return nil
}
