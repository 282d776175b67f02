package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Events    EventsConfig    `yaml:"events"`
	Authority AuthorityConfig `yaml:"authority"`
	Payout    PayoutConfig    `yaml:"payout"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	APIKey       string        `yaml:"api_key"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // HTTP read timeout (default: 30s)
	WriteTimeout time.Duration `yaml:"write_timeout"` // HTTP write timeout (default: 30s)
	IdleTimeout  time.Duration `yaml:"idle_timeout"`  // HTTP idle timeout (default: 60s)
}

// StorageConfig contains ledger storage settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// EventsConfig contains notification archive settings
type EventsConfig struct {
	Path string `yaml:"path"`
}

// AuthorityConfig identifies the single principal allowed to withdraw
// residual pool funds. KeyHash is a bcrypt hash of the withdrawal key;
// leaving it empty disables withdrawals.
type AuthorityConfig struct {
	Address string `yaml:"address"`
	KeyHash string `yaml:"key_hash"`
}

// PayoutConfig contains the external payout endpoint settings
type PayoutConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"` // default: 30s
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ListenAddr      string        `yaml:"listen_addr"`      // Default: :9090
	Path            string        `yaml:"path"`             // Default: /metrics
	CollectInterval time.Duration `yaml:"collect_interval"` // Default: 10s
	AllowedIPs      []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to access metrics
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/fundry/ledger.db"
	}
	if c.Events.Path == "" {
		c.Events.Path = "/var/lib/fundry/events.db"
	}

	if c.Payout.Timeout == 0 {
		c.Payout.Timeout = 30 * time.Second
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.CollectInterval == 0 {
		c.Metrics.CollectInterval = 10 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Payout.Endpoint == "" {
		return fmt.Errorf("payout.endpoint is required")
	}

	if (c.Authority.Address == "") != (c.Authority.KeyHash == "") {
		return fmt.Errorf("authority.address and authority.key_hash must be set together")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}

	return nil
}
