package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// maxHistoryDays bounds historical backfill regardless of the configured value.
// The upstream service rate-limits aggressively beyond a week of minute data.
const maxHistoryDays = 7

// Config is the root configuration structure for vueflux.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Accounts  []AccountConfig `yaml:"accounts"`
	Collector CollectorConfig `yaml:"collector"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AccountConfig identifies one Emporia account to poll.
type AccountConfig struct {
	// Name tags every point written for this account.
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// Devices optionally overrides discovered channel names.
	Devices []DeviceNameConfig `yaml:"devices"`
}

// DeviceNameConfig maps a device's numbered channels to friendly names.
// Channel N takes the Nth entry in Channels.
type DeviceNameConfig struct {
	Name     string   `yaml:"name"`
	Channels []string `yaml:"channels"`
}

// CollectorConfig contains polling, backfill, and transition-detection settings.
type CollectorConfig struct {
	// UpdateIntervalSecs is the wait between polling cycles.
	UpdateIntervalSecs int `yaml:"update_interval_secs"`

	// LagSecs is subtracted from "now" when querying usage, so the
	// upstream service is never asked for data it has not settled yet.
	LagSecs int `yaml:"lag_secs"`

	// DetailedDataEnabled turns on opportunistic per-second collection.
	DetailedDataEnabled bool `yaml:"detailed_data_enabled"`

	// DetailedIntervalSecs is the minimum gap between detailed fetches.
	DetailedIntervalSecs int `yaml:"detailed_interval_secs"`

	// HistoryDays requests minute-resolution backfill for the given number
	// of days on startup. 0 disables backfill. Clamped to 7.
	HistoryDays int `yaml:"history_days"`

	// PowerOnThresholdWatts is the hysteresis threshold for on/off transitions.
	PowerOnThresholdWatts float64 `yaml:"power_on_threshold_watts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// Reset deletes all previously written energy_usage data at startup.
	Reset bool `yaml:"reset"`
}

// MQTTConfig contains settings for the optional realtime point mirror.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// CatalogConfig contains settings for the persistent channel catalog.
type CatalogConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MetricsConfig contains Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VUEFLUX_SECTION_KEY
// For example: VUEFLUX_INFLUXDB_TOKEN, VUEFLUX_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Backfill is bounded to a week no matter what the file says.
	if cfg.Collector.HistoryDays > maxHistoryDays {
		cfg.Collector.HistoryDays = maxHistoryDays
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Collector: CollectorConfig{
			UpdateIntervalSecs:    60,
			LagSecs:               5,
			DetailedDataEnabled:   false,
			DetailedIntervalSecs:  3600,
			HistoryDays:           0,
			PowerOnThresholdWatts: 1,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "vueflux",
			Bucket:        "energy",
			BatchSize:     100,
			FlushInterval: 10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "vueflux",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Catalog: CatalogConfig{
			Path:        "./data/vueflux.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Metrics: MetricsConfig{
			Listen: ":9221",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VUEFLUX_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// InfluxDB
	if v := os.Getenv("VUEFLUX_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("VUEFLUX_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// MQTT
	if v := os.Getenv("VUEFLUX_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VUEFLUX_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VUEFLUX_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Catalog
	if v := os.Getenv("VUEFLUX_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Accounts: at least one, each fully identified
	if len(c.Accounts) == 0 {
		errs = append(errs, "at least one account is required")
	}
	for i, acct := range c.Accounts {
		if acct.Name == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d].name is required", i))
		}
		if acct.Email == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d].email is required", i))
		}
		if acct.Password == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d].password is required", i))
		}
	}

	// Collector validation
	if c.Collector.UpdateIntervalSecs <= 0 {
		errs = append(errs, "collector.update_interval_secs must be positive")
	}
	if c.Collector.LagSecs < 0 {
		errs = append(errs, "collector.lag_secs must not be negative")
	}
	if c.Collector.HistoryDays < 0 {
		errs = append(errs, "collector.history_days must not be negative")
	}

	// InfluxDB validation
	if c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required")
	}
	if c.InfluxDB.Bucket == "" {
		errs = append(errs, "influxdb.bucket is required")
	}

	// MQTT validation (only when the mirror is enabled)
	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
	}

	// Catalog validation
	if c.Catalog.Enabled && c.Catalog.Path == "" {
		errs = append(errs, "catalog.path is required when catalog is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// UpdateInterval returns the polling interval as a Duration.
func (c *CollectorConfig) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalSecs) * time.Second
}

// Lag returns the query lag as a Duration.
func (c *CollectorConfig) Lag() time.Duration {
	return time.Duration(c.LagSecs) * time.Second
}

// DetailedInterval returns the minimum gap between detailed fetches as a Duration.
func (c *CollectorConfig) DetailedInterval() time.Duration {
	return time.Duration(c.DetailedIntervalSecs) * time.Second
}
