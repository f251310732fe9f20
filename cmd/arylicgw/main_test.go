package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/arylic-gateway/internal/bridges/arylic"
	"github.com/nerrad567/arylic-gateway/internal/infrastructure/config"
)

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with a missing explicit config.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config error", err)
	}
}

// TestRun_MissingDatabasePath verifies validation rejects an enabled store
// without a path.
func TestRun_MissingDatabasePath(t *testing.T) {
	path := writeConfig(t, `
database:
  enabled: true
  path: ""

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"

influxdb:
  enabled: false
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, path); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_MalformedYAML verifies parse errors are reported.
func TestRun_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "arylic: [unterminated\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, path); err == nil {
		t.Fatal("run() should fail with malformed YAML")
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv("ARYLIC_CONFIG", "/from/env.yaml")
		if got := resolveConfigPath("/from/flag.yaml"); got != "/from/flag.yaml" {
			t.Errorf("resolveConfigPath() = %q", got)
		}
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("ARYLIC_CONFIG", "/from/env.yaml")
		if got := resolveConfigPath(""); got != "/from/env.yaml" {
			t.Errorf("resolveConfigPath() = %q", got)
		}
	})

	t.Run("default", func(t *testing.T) {
		t.Setenv("ARYLIC_CONFIG", "")
		if got := resolveConfigPath(""); got != config.DefaultPath {
			t.Errorf("resolveConfigPath() = %q, want %q", got, config.DefaultPath)
		}
	})
}

func TestLoadConfigMissingDefaultFallsBack(t *testing.T) {
	// Run from an empty directory so configs/config.yaml does not exist.
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(config.DefaultPath)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.MQTT.TopicPrefix != "arylic" {
		t.Errorf("TopicPrefix = %q, want built-in default", cfg.MQTT.TopicPrefix)
	}
}

func TestLoadConfigMissingExplicitFails(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("loadConfig() error = %v, want ErrNotExist", err)
	}
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	if !cfg.Arylic.Discovery.Enabled || cfg.Arylic.Discovery.Service != "_linkplay._tcp" {
		t.Errorf("Discovery = %+v", cfg.Arylic.Discovery)
	}
}

func TestControllerConfig(t *testing.T) {
	got := controllerConfig(config.ArylicConfig{
		Devices: []config.DeviceConfig{
			{IP: "192.168.1.20"},
			{IP: "192.168.1.21", Port: 9000},
		},
		ReconnectInterval: 30 * time.Second,
		PingInterval:      time.Minute,
		PingDelay:         10 * time.Second,
		ConnectTimeout:    5 * time.Second,
		HandshakeTimeout:  4 * time.Second,
		Discovery:         config.DiscoveryConfig{Interval: 2 * time.Second},
	})

	want := []arylic.Identity{
		{Host: "192.168.1.20", Port: arylic.DefaultPort},
		{Host: "192.168.1.21", Port: 9000},
	}
	if len(got.Devices) != len(want) {
		t.Fatalf("Devices = %+v", got.Devices)
	}
	for i := range want {
		if got.Devices[i] != want[i] {
			t.Errorf("Devices[%d] = %+v, want %+v", i, got.Devices[i], want[i])
		}
	}
	if got.DiscoveryInterval != 2*time.Second || got.HandshakeTimeout != 4*time.Second {
		t.Errorf("controllerConfig() = %+v", got)
	}
}

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{
			args: []string{"encode", "mute"},
			want: "18 96 18 20 0C 00 00 00 CC 02 00 00 00 00 00 00 00 00 00 00 " +
				"4D 43 55 2B 4D 55 54 2B 30 30 31 0A",
		},
		{
			args: []string{"encode", "volume", "40"},
			want: "18 96 18 20 0C 00 00 00 CA 02 00 00 00 00 00 00 00 00 00 00 " +
				"4D 43 55 2B 56 4F 4C 2B 30 34 30 0A",
		},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if err != nil {
				t.Fatalf("execute() error = %v", err)
			}
			if strings.TrimSpace(out) != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestEncodeCommandErrors(t *testing.T) {
	if _, err := execute(t, "encode", "volume", "150"); !errors.Is(err, arylic.ErrInvalidVolume) {
		t.Errorf("volume 150 error = %v, want ErrInvalidVolume", err)
	}
	if _, err := execute(t, "encode", "rewind"); !errors.Is(err, arylic.ErrUnknownCommand) {
		t.Errorf("rewind error = %v, want ErrUnknownCommand", err)
	}
}

func TestDecodeCommand(t *testing.T) {
	frame := arylic.FormatHex(arylic.EncodeFrame([]byte("AXX+MUT+001\n")))

	out, err := execute(t, append([]string{"decode"}, strings.Fields(frame)...)...)
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	want := `{"kind":"mute","data":{"enabled":true}}`
	if strings.TrimSpace(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestDecodeCommandRejectedFrame(t *testing.T) {
	// Truncated after the checksum: dropped without output.
	out, err := execute(t, "decode", "18 96 18 20 0C 00 00 00 D7 02 00 00")
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	if out != "" {
		t.Errorf("output = %q, want empty", out)
	}
}

func TestDecodeCommandBadHex(t *testing.T) {
	if _, err := execute(t, "decode", "zz"); err == nil {
		t.Error("decode zz should fail")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	if !strings.HasPrefix(out, "arylicgw "+version) {
		t.Errorf("output = %q", out)
	}
}

func TestMigrateCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "arylic.db")
	cfgPath := writeConfig(t, "database:\n  enabled: true\n  path: "+dbPath+"\n")

	steps := []struct {
		args []string
		want []string
	}{
		{[]string{"migrate", "status"}, []string{"database: " + dbPath, "current:  none", "20260101_000000  pending"}},
		{[]string{"migrate", "up"}, []string{"applied 20260101_000000 known_devices"}},
		{[]string{"migrate", "up"}, []string{"schema is up to date"}},
		{[]string{"migrate", "status"}, []string{"current:  20260101_000000", "20260101_000000  applied"}},
		{[]string{"migrate", "down"}, []string{"rolled back 20260101_000000 known_devices"}},
		{[]string{"migrate", "down"}, []string{"nothing to roll back"}},
	}

	for _, step := range steps {
		out, err := execute(t, append(step.args, "--config", cfgPath)...)
		if err != nil {
			t.Fatalf("%v error = %v", step.args, err)
		}
		for _, want := range step.want {
			if !strings.Contains(out, want) {
				t.Errorf("%v output = %q, want it to contain %q", step.args, out, want)
			}
		}
	}
}

func TestMigrateCommandBadConfig(t *testing.T) {
	if _, err := execute(t, "migrate", "status", "--config", "/nonexistent/config.yaml"); err == nil {
		t.Error("migrate status should fail with a missing config")
	}
}
