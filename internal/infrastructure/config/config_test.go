package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
arylic:
  devices:
    - ip: "192.168.1.20"
    - ip: "192.168.1.21"
      port: 9000
  reconnect_interval: 10s
  ping_delay: 0s
  discovery:
    enabled: false
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1883
  topic_prefix: "speakers"
api:
  port: 8081
  request_timeout: 2s
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Arylic.Devices) != 2 || cfg.Arylic.Devices[1].Port != 9000 {
		t.Errorf("Arylic.Devices = %+v", cfg.Arylic.Devices)
	}
	if cfg.Arylic.ReconnectInterval != 10*time.Second {
		t.Errorf("ReconnectInterval = %v, want 10s", cfg.Arylic.ReconnectInterval)
	}
	if cfg.Arylic.PingDelay != 0 {
		t.Errorf("PingDelay = %v, want 0", cfg.Arylic.PingDelay)
	}
	if cfg.Arylic.PingInterval != 60*time.Second {
		t.Errorf("PingInterval = %v, want default 60s", cfg.Arylic.PingInterval)
	}
	if cfg.Arylic.Discovery.Enabled {
		t.Error("Discovery.Enabled should be false")
	}
	if cfg.MQTT.Broker.Host != "broker.local" || cfg.MQTT.TopicPrefix != "speakers" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.API.RequestTimeout != 2*time.Second {
		t.Errorf("RequestTimeout = %v, want 2s", cfg.API.RequestTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
arylic:
  devices:
    - port: 8899
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for device without ip, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:    "device without ip",
			mutate:  func(c *Config) { c.Arylic.Devices = []DeviceConfig{{Port: 8899}} },
			wantErr: true,
		},
		{
			name:    "device port out of range",
			mutate:  func(c *Config) { c.Arylic.Devices = []DeviceConfig{{IP: "10.0.0.1", Port: 70000}} },
			wantErr: true,
		},
		{
			name:    "zero reconnect interval",
			mutate:  func(c *Config) { c.Arylic.ReconnectInterval = 0 },
			wantErr: true,
		},
		{
			name:    "negative ping delay",
			mutate:  func(c *Config) { c.Arylic.PingDelay = -time.Second },
			wantErr: true,
		},
		{
			name:    "discovery without service",
			mutate:  func(c *Config) { c.Arylic.Discovery.Service = "" },
			wantErr: true,
		},
		{
			name:    "discovery lost_after zero",
			mutate:  func(c *Config) { c.Arylic.Discovery.LostAfter = 0 },
			wantErr: true,
		},
		{
			name: "discovery disabled without service",
			mutate: func(c *Config) {
				c.Arylic.Discovery.Enabled = false
				c.Arylic.Discovery.Service = ""
			},
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name: "database disabled",
			mutate: func(c *Config) {
				c.Database.Enabled = false
				c.Database.Path = ""
			},
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "wildcard topic prefix",
			mutate:  func(c *Config) { c.MQTT.TopicPrefix = "arylic/#" },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("ARYLIC_DEVICES", "192.168.1.20, 192.168.1.21:9000")
	t.Setenv("ARYLIC_DISCOVERY_ENABLED", "false")
	t.Setenv("ARYLIC_DATABASE_PATH", "/custom/path.db")
	t.Setenv("ARYLIC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("ARYLIC_MQTT_PORT", "8883")
	t.Setenv("ARYLIC_MQTT_USERNAME", "testuser")
	t.Setenv("ARYLIC_MQTT_PASSWORD", "testpass")
	t.Setenv("ARYLIC_API_HOST", "192.168.1.1")
	t.Setenv("ARYLIC_API_PORT", "9090")
	t.Setenv("ARYLIC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("ARYLIC_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	want := []DeviceConfig{{IP: "192.168.1.20"}, {IP: "192.168.1.21", Port: 9000}}
	if len(cfg.Arylic.Devices) != len(want) {
		t.Fatalf("Arylic.Devices = %+v, want %+v", cfg.Arylic.Devices, want)
	}
	for i := range want {
		if cfg.Arylic.Devices[i] != want[i] {
			t.Errorf("Arylic.Devices[%d] = %+v, want %+v", i, cfg.Arylic.Devices[i], want[i])
		}
	}

	if cfg.Arylic.Discovery.Enabled {
		t.Error("Discovery.Enabled should be overridden to false")
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" || cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker = %+v", cfg.MQTT.Broker)
	}

	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v", cfg.MQTT.Auth)
	}

	if cfg.API.Host != "192.168.1.1" || cfg.API.Port != 9090 {
		t.Errorf("API = %s:%d", cfg.API.Host, cfg.API.Port)
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Arylic.ReconnectInterval != 30*time.Second {
		t.Errorf("ReconnectInterval = %v, want 30s", cfg.Arylic.ReconnectInterval)
	}

	if cfg.Arylic.PingInterval != 60*time.Second || cfg.Arylic.PingDelay != 10*time.Second {
		t.Errorf("ping = %v after %v, want 60s after 10s", cfg.Arylic.PingInterval, cfg.Arylic.PingDelay)
	}

	if cfg.Arylic.Discovery.Service != "_linkplay._tcp" || cfg.Arylic.Discovery.Domain != "local." {
		t.Errorf("Discovery = %+v", cfg.Arylic.Discovery)
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate: %v", err)
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("ARYLIC_MQTT_HOST", "mqtt.example.com")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q", cfg.MQTT.Broker.Host)
	}
}
