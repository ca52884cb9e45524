package config

import (
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Afero           AferoConfig    `yaml:"afero"`
	MQTT            MQTTConfig     `yaml:"mqtt"`
	Database        DatabaseConfig `yaml:"database"`
	Log             LogConfig      `yaml:"log"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	Entities        EntityConfig   `yaml:"entities"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// AferoConfig contains Afero cloud connection settings
type AferoConfig struct {
	Host      string   `yaml:"host"`       // API host (default: api2.afero.net)
	AccountID string   `yaml:"account_id"` // Afero account id
	Token     string   `yaml:"token"`      // Bearer token for the account
	Timeout   Duration `yaml:"timeout"`    // HTTP timeout for API requests

	// Poll loop settings
	PollInterval    Duration `yaml:"poll_interval"`     // Device snapshot poll interval (default: 30s)
	MinRetryBackoff Duration `yaml:"min_retry_backoff"` // Minimum backoff between failed polls (default: 1s)
	MaxRetryBackoff Duration `yaml:"max_retry_backoff"` // Maximum backoff between failed polls (default: 2m)
	RetryMultiplier float64  `yaml:"retry_multiplier"`  // Backoff multiplier (default: 2.0)
}

// MQTTConfig contains MQTT broker connection settings
type MQTTConfig struct {
	Broker    string   `yaml:"broker"`     // Broker URL, e.g. tcp://localhost:1883
	ClientID  string   `yaml:"client_id"`  // Client id prefix (default: hubspaced)
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	QoS       int      `yaml:"qos"`        // 0, 1 or 2 (default: 1)
	TopicBase string   `yaml:"topic_base"` // Topic prefix (default: hubspaced)
	Timeout   Duration `yaml:"timeout"`    // Connect/publish timeout (default: 10s)
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the configured log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// LedgerConfig contains command ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// EntityConfig contains entity behaviour settings
type EntityConfig struct {
	BulbRefreshInterval Duration `yaml:"bulb_refresh_interval"` // Per-bulb state refresh interval (default: 30s)
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./hubspaced.sqlite"
	}

	// Afero defaults
	if cfg.Afero.Host == "" {
		cfg.Afero.Host = "api2.afero.net"
	}
	if cfg.Afero.Timeout == 0 {
		cfg.Afero.Timeout = Duration(30 * time.Second)
	}
	if cfg.Afero.PollInterval == 0 {
		cfg.Afero.PollInterval = Duration(30 * time.Second)
	}
	if cfg.Afero.MinRetryBackoff == 0 {
		cfg.Afero.MinRetryBackoff = Duration(1 * time.Second)
	}
	if cfg.Afero.MaxRetryBackoff == 0 {
		cfg.Afero.MaxRetryBackoff = Duration(2 * time.Minute)
	}
	if cfg.Afero.RetryMultiplier == 0 {
		cfg.Afero.RetryMultiplier = 2.0
	}

	// MQTT defaults
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "hubspaced"
	}
	if cfg.MQTT.QoS == 0 {
		cfg.MQTT.QoS = 1
	}
	if cfg.MQTT.TopicBase == "" {
		cfg.MQTT.TopicBase = "hubspaced"
	}
	if cfg.MQTT.Timeout == 0 {
		cfg.MQTT.Timeout = Duration(10 * time.Second)
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Entity defaults
	if cfg.Entities.BulbRefreshInterval == 0 {
		cfg.Entities.BulbRefreshInterval = Duration(30 * time.Second)
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
