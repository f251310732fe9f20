package arylic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// commandTimeout bounds a single speaker write triggered from MQTT.
const commandTimeout = 5 * time.Second

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests; main.go adapts the infrastructure client.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// DeviceLookup resolves a device name to its live connection.
// *Controller satisfies it.
type DeviceLookup interface {
	Lookup(name string) (*Connection, bool)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// MQTTClient is required.
	MQTTClient MQTTClient

	// Topics selects the topic roots. Zero value uses the defaults.
	Topics Topics

	// Devices resolves command targets. May be set later with SetDevices.
	Devices DeviceLookup

	// HomeAssistant enables discovery announcements for found speakers.
	HomeAssistant bool

	// Version is reported in discovery announcements.
	Version string

	// Logger is optional.
	Logger Logger
}

// BridgeMetrics holds bridge counters.
type BridgeMetrics struct {
	MessagesPublished uint64
	PublishErrors     uint64
	CommandsHandled   uint64
	CommandsRejected  uint64
}

// Bridge maps speaker events to MQTT state topics and MQTT command topics
// to speaker commands. It is an EventSink.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	logHolder

	mqtt    MQTTClient
	topics  Topics
	ha      bool
	version string

	devices   DeviceLookup
	devicesMu sync.RWMutex

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	published        atomic.Uint64
	publishErrors    atomic.Uint64
	commandsHandled  atomic.Uint64
	commandsRejected atomic.Uint64
}

// NewBridge creates a bridge. Call Start to subscribe to commands.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		mqtt:    opts.MQTTClient,
		topics:  opts.Topics,
		ha:      opts.HomeAssistant,
		version: opts.Version,
		devices: opts.Devices,
		ctx:     ctx,
		cancel:  cancel,
	}
	if opts.Logger != nil {
		b.SetLogger(opts.Logger)
	}
	return b, nil
}

// SetDevices sets the lookup used for inbound commands.
func (b *Bridge) SetDevices(devices DeviceLookup) {
	b.devicesMu.Lock()
	b.devices = devices
	b.devicesMu.Unlock()
}

// Start subscribes to the command topics.
func (b *Bridge) Start(_ context.Context) error {
	topic := b.topics.CommandSubscription()
	if err := b.mqtt.Subscribe(topic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", topic)
	return nil
}

// Stop aborts in-flight commands.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.cancel()
		b.logInfo("bridge stopped")
	})
}

// DeviceAvailable publishes the retained availability flag.
func (b *Bridge) DeviceAvailable(name string, available bool) {
	b.publish(b.topics.Available(name), []byte(strconv.FormatBool(available)), true)
}

// DeviceEvent publishes a decoded speaker message.
//
// PlayStatus goes retained to the "playing" topic as true/false. PlayInfo
// also updates the "volume" topic. Everything else is published as JSON on
// the topic named after its kind.
func (b *Bridge) DeviceEvent(name string, cmd ReceiveCommand) {
	switch msg := cmd.(type) {
	case PlayStatus:
		b.publish(b.topics.Playing(name), []byte(strconv.FormatBool(msg.Playing)), true)
		return
	case PlayInfo:
		if msg.Volume != "" {
			b.publish(b.topics.State(name, "volume"), []byte(msg.Volume), false)
		}
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		b.logError("failed to encode event", err, "device", name, "kind", cmd.Kind().String())
		return
	}
	b.publish(b.topics.State(name, cmd.Kind().String()), payload, false)
}

// DeviceDiscovered sends a Home Assistant announcement when enabled.
func (b *Bridge) DeviceDiscovered(device DiscoveredDevice) {
	if !b.ha {
		return
	}

	payload, err := json.Marshal(NewHADiscovery(b.topics, device, b.version))
	if err != nil {
		b.logError("failed to encode discovery", err, "device", device.Name)
		return
	}

	topic := b.topics.Discovery(device.Model())
	b.logInfo("announcing device to home assistant", "topic", topic, "device", device.Name)
	b.publish(topic, payload, true)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	if err := b.mqtt.Publish(topic, payload, 1, retained); err != nil {
		b.publishErrors.Add(1)
		b.logError("failed to publish", err, "topic", topic)
		return
	}
	b.published.Add(1)
	b.logDebug("published", "topic", topic)
}

// handleMQTTMessage routes a command topic to the named speaker. Invalid
// topics, unknown devices and bad payloads are logged and dropped.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	device, command, ok := b.topics.ParseCommand(topic)
	if !ok {
		b.logWarn("ignoring message on unexpected topic", "topic", topic)
		return
	}

	if err := b.execute(device, command, string(payload)); err != nil {
		b.commandsRejected.Add(1)
		switch {
		case errors.Is(err, ErrDeviceNotFound), errors.Is(err, ErrUnknownCommand), errors.Is(err, ErrInvalidVolume):
			b.logInfo("ignoring command", "device", device, "command", command, "reason", err.Error())
		default:
			b.logError("command failed", err, "device", device, "command", command)
		}
		return
	}
	b.commandsHandled.Add(1)
}

func (b *Bridge) execute(device, command, arg string) error {
	b.devicesMu.RLock()
	devices := b.devices
	b.devicesMu.RUnlock()

	if devices == nil {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
	}
	conn, ok := devices.Lookup(strings.ToLower(device))
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
	}

	cmd, err := ParseCommand(command, arg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()
	return conn.Send(ctx, cmd)
}

// GetMetrics returns the bridge counters.
func (b *Bridge) GetMetrics() BridgeMetrics {
	return BridgeMetrics{
		MessagesPublished: b.published.Load(),
		PublishErrors:     b.publishErrors.Load(),
		CommandsHandled:   b.commandsHandled.Load(),
		CommandsRejected:  b.commandsRejected.Load(),
	}
}
