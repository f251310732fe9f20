package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither --config nor ARYLIC_CONFIG is set.
const DefaultPath = "configs/config.yaml"

// Config is the root configuration structure for the Arylic gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Arylic    ArylicConfig    `yaml:"arylic"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ArylicConfig contains speaker connection and discovery settings.
type ArylicConfig struct {
	// BridgeID identifies this gateway in health messages.
	BridgeID string `yaml:"bridge_id"`

	// Devices are speakers always kept in the reconnect set.
	Devices []DeviceConfig `yaml:"devices"`

	// ReconnectInterval is how often unconnected targets are retried.
	// Default: 30s
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`

	// PingInterval is how often live sessions are pinged.
	// Default: 60s
	PingInterval time.Duration `yaml:"ping_interval"`

	// PingDelay postpones the first ping round.
	// Default: 10s
	PingDelay time.Duration `yaml:"ping_delay"`

	// ConnectTimeout bounds the TCP dial.
	// Default: 5s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// HandshakeTimeout bounds the device-info handshake.
	// Default: 5s
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	Discovery DiscoveryConfig `yaml:"discovery"`
}

// DeviceConfig is a statically configured speaker.
type DeviceConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

// DiscoveryConfig contains mDNS discovery settings.
type DiscoveryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Service string `yaml:"service"`
	Domain  string `yaml:"domain"`

	// Interval is how often the controller polls the latest snapshot.
	// Default: 1s
	Interval time.Duration `yaml:"interval"`

	// ScanWindow is how long each mDNS browse runs.
	// Default: 5s
	ScanWindow time.Duration `yaml:"scan_window"`

	// LostAfter is how many consecutive scans a speaker may miss before it
	// is treated as gone.
	// Default: 3
	LostAfter int `yaml:"lost_after"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker        MQTTBrokerConfig    `yaml:"broker"`
	Auth          MQTTAuthConfig      `yaml:"auth"`
	QoS           int                 `yaml:"qos"`
	Reconnect     MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix   string              `yaml:"topic_prefix"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
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

// HomeAssistantConfig controls MQTT discovery announcements.
type HomeAssistantConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// RequestTimeout bounds request/reply endpoints.
	// Default: 5s
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
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
// Environment variables follow the pattern: ARYLIC_SECTION_KEY
// For example: ARYLIC_MQTT_HOST, ARYLIC_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. Used when no config file exists.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Arylic: ArylicConfig{
			BridgeID:          "arylic-gateway",
			ReconnectInterval: 30 * time.Second,
			PingInterval:      60 * time.Second,
			PingDelay:         10 * time.Second,
			ConnectTimeout:    5 * time.Second,
			HandshakeTimeout:  5 * time.Second,
			Discovery: DiscoveryConfig{
				Enabled:    true,
				Service:    "_linkplay._tcp",
				Domain:     "local.",
				Interval:   time.Second,
				ScanWindow: 5 * time.Second,
				LostAfter:  3,
			},
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/arylic.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "arylic-gateway",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			TopicPrefix: "arylic",
			HomeAssistant: HomeAssistantConfig{
				Enabled: true,
				Prefix:  "homeassistant",
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			RequestTimeout: 5 * time.Second,
		},
		WebSocket: WebSocketConfig{
			Path:           "/arylic/events",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ARYLIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Speakers: comma-separated host[:port] list replaces the static devices.
	if v := os.Getenv("ARYLIC_DEVICES"); v != "" {
		cfg.Arylic.Devices = parseDeviceList(v)
	}
	if v := os.Getenv("ARYLIC_DISCOVERY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Arylic.Discovery.Enabled = b
		}
	}

	// Database
	if v := os.Getenv("ARYLIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("ARYLIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ARYLIC_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("ARYLIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ARYLIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ARYLIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("ARYLIC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("ARYLIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("ARYLIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func parseDeviceList(v string) []DeviceConfig {
	var devices []DeviceConfig
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		host, portStr, found := strings.Cut(entry, ":")
		d := DeviceConfig{IP: host}
		if found {
			if port, err := strconv.Atoi(portStr); err == nil {
				d.Port = port
			}
		}
		devices = append(devices, d)
	}
	return devices
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	for i, d := range c.Arylic.Devices {
		if d.IP == "" {
			errs = append(errs, fmt.Sprintf("arylic.devices[%d].ip is required", i))
		}
		if d.Port < 0 || d.Port > 65535 {
			errs = append(errs, fmt.Sprintf("arylic.devices[%d].port must be between 0 and 65535", i))
		}
	}
	if c.Arylic.ReconnectInterval <= 0 {
		errs = append(errs, "arylic.reconnect_interval must be positive")
	}
	if c.Arylic.PingInterval <= 0 {
		errs = append(errs, "arylic.ping_interval must be positive")
	}
	if c.Arylic.PingDelay < 0 {
		errs = append(errs, "arylic.ping_delay must not be negative")
	}
	if c.Arylic.Discovery.Enabled {
		if c.Arylic.Discovery.Service == "" {
			errs = append(errs, "arylic.discovery.service is required when discovery is enabled")
		}
		if c.Arylic.Discovery.ScanWindow <= 0 {
			errs = append(errs, "arylic.discovery.scan_window must be positive")
		}
		if c.Arylic.Discovery.LostAfter < 1 {
			errs = append(errs, "arylic.discovery.lost_after must be at least 1")
		}
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix must be set and must not contain wildcards")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.RequestTimeout <= 0 {
		errs = append(errs, "api.request_timeout must be positive")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
