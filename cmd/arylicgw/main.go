// Arylicgw bridges Arylic/LinkPlay speakers to MQTT and HTTP.
//
// The gateway keeps a TCP control session open to every speaker it knows
// about (static configuration, mDNS discovery, or remembered from an earlier
// run), publishes speaker state to MQTT and accepts commands from MQTT topics
// and a small HTTP API.
//
// Usage:
//
//	arylicgw [serve] [--config path]
//	arylicgw encode <command> [arg]
//	arylicgw decode <hex...>
//	arylicgw migrate status|up|down
//	arylicgw version
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/arylic-gateway/migrations"

	"github.com/nerrad567/arylic-gateway/internal/api"
	"github.com/nerrad567/arylic-gateway/internal/bridges/arylic"
	"github.com/nerrad567/arylic-gateway/internal/device"
	"github.com/nerrad567/arylic-gateway/internal/discovery"
	"github.com/nerrad567/arylic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/arylic-gateway/internal/infrastructure/database"
	"github.com/nerrad567/arylic-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/arylic-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/arylic-gateway/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// configPath is the --config flag.
var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway (default)",
		Long: `Run the gateway until interrupted.

The configuration file is taken from --config, then $ARYLIC_CONFIG, then
configs/config.yaml. When none of these exist the built-in defaults are used.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	root := &cobra.Command{
		Use:           "arylicgw",
		Short:         "Arylic speaker gateway",
		Long:          "A TCP gateway that exposes Arylic/LinkPlay speakers over MQTT and HTTP.",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Args:          cobra.NoArgs,
		RunE:          runServe,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")

	root.AddCommand(serve, newEncodeCmd(), newDecodeCmd(), newMigrateCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "arylicgw %s\ncommit: %s\nbuilt:  %s\n", version, commit, date)
		},
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return run(ctx, resolveConfigPath(configPath))
}

// resolveConfigPath applies the flag > ARYLIC_CONFIG > default order.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("ARYLIC_CONFIG"); path != "" {
		return path
	}
	return config.DefaultPath
}

// loadConfig reads path. A missing default file falls back to built-in
// defaults; a missing explicit file is an error.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == config.DefaultPath && errors.Is(err, os.ErrNotExist) {
		return config.Default()
	}
	return nil, err
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context, path string) error { //nolint:gocognit,gocyclo // startup wiring is linear
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting arylic gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", path)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Known-device store (optional)
	var db *database.DB
	var store arylic.KnownDeviceStore
	if cfg.Database.Enabled {
		db, err = database.Open(database.FromConfig(cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		store = device.NewStore(device.NewSQLiteRepository(db))
		log.Info("known-device store ready", "path", db.Path())
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	topics := arylic.Topics{
		Prefix:          cfg.MQTT.TopicPrefix,
		DiscoveryPrefix: cfg.MQTT.HomeAssistant.Prefix,
	}

	bridge, err := arylic.NewBridge(arylic.BridgeOptions{
		MQTTClient:    &mqttBridgeAdapter{client: mqttClient},
		Topics:        topics,
		HomeAssistant: cfg.MQTT.HomeAssistant.Enabled,
		Version:       version,
		Logger:        log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating MQTT bridge: %w", err)
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	sinks := arylic.MultiSink{bridge, hub}
	if influxClient != nil {
		sinks = append(sinks, arylic.NewHistoryRecorder(influxClient))
	}

	// mDNS discovery (optional)
	var source arylic.DiscoverySource
	if cfg.Arylic.Discovery.Enabled {
		browser := discovery.NewBrowser(discovery.FromConfig(cfg.Arylic.Discovery))
		browser.SetLogger(log.Component("discovery"))
		if startErr := browser.Start(ctx); startErr != nil {
			return fmt.Errorf("starting discovery: %w", startErr)
		}
		defer browser.Stop()
		source = browser
		log.Info("mDNS discovery started", "service", cfg.Arylic.Discovery.Service)
	}

	ctrl := arylic.NewController(arylic.ControllerOptions{
		Config:    controllerConfig(cfg.Arylic),
		Sink:      sinks,
		Discovery: source,
		Store:     store,
		Logger:    log.Component("controller"),
	})
	bridge.SetDevices(ctrl)

	if startErr := bridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting MQTT bridge: %w", startErr)
	}
	defer bridge.Stop()

	if startErr := ctrl.Start(ctx); startErr != nil {
		return fmt.Errorf("starting controller: %w", startErr)
	}
	defer ctrl.Stop()

	health := arylic.NewHealthReporter(arylic.HealthReporterConfig{
		BridgeID:  cfg.Arylic.BridgeID,
		Version:   version,
		Topics:    topics,
		Publisher: mqttClient,
		Stats:     ctrl,
	})
	if pubErr := health.PublishStarting(); pubErr != nil {
		log.Warn("failed to publish starting status", "error", pubErr)
	}
	health.Start(ctx)
	defer health.Stop()

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log.Component("api"),
			Registry: api.NewControllerRegistry(ctrl),
			Stats:    ctrl,
			Hub:      hub,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"static_devices", len(cfg.Arylic.Devices),
		"discovery", cfg.Arylic.Discovery.Enabled,
	)

	<-ctx.Done()

	// Deferred calls run in reverse: API, health, controller, bridge,
	// discovery, InfluxDB, MQTT, database.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// controllerConfig converts the YAML section to controller settings.
func controllerConfig(cfg config.ArylicConfig) arylic.ControllerConfig {
	devices := make([]arylic.Identity, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		devices = append(devices, arylic.NewIdentity(d.IP, d.Port))
	}
	return arylic.ControllerConfig{
		Devices:           devices,
		ReconnectInterval: cfg.ReconnectInterval,
		DiscoveryInterval: cfg.Discovery.Interval,
		PingInterval:      cfg.PingInterval,
		PingDelay:         cfg.PingDelay,
		ConnectTimeout:    cfg.ConnectTimeout,
		HandshakeTimeout:  cfg.HandshakeTimeout,
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// db and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - arylic bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements arylic.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements arylic.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements arylic.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
