package arylic

import (
	"fmt"
	"strings"
	"time"
)

// Default topic roots.
const (
	DefaultTopicPrefix     = "arylic"
	DefaultDiscoveryPrefix = "homeassistant"

	// discoveryNode is the Home Assistant node id for every announcement.
	discoveryNode = "arylic-mqtt"
)

// Topics builds the MQTT topics used by the bridge.
//
//	topics := Topics{Prefix: "arylic", DiscoveryPrefix: "homeassistant"}
//	topics.State("kitchen", "mute")  // "arylic/state/kitchen/mute"
//	topics.Command("kitchen", "play") // "arylic/cmd/kitchen/play"
type Topics struct {
	Prefix          string
	DiscoveryPrefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// State returns the state topic for a device key.
func (t Topics) State(device, key string) string {
	return fmt.Sprintf("%s/state/%s/%s", t.prefix(), device, key)
}

// Available returns the retained availability topic for a device.
func (t Topics) Available(device string) string {
	return t.State(device, "available")
}

// Playing returns the retained playback topic for a device.
func (t Topics) Playing(device string) string {
	return t.State(device, "playing")
}

// Command returns the command topic for a device.
func (t Topics) Command(device, command string) string {
	return fmt.Sprintf("%s/cmd/%s/%s", t.prefix(), device, command)
}

// CommandSubscription matches every device command.
func (t Topics) CommandSubscription() string {
	return t.prefix() + "/cmd/+/+"
}

// ParseCommand splits a command topic into device and command.
func (t Topics) ParseCommand(topic string) (device, command string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix()+"/cmd/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Health returns the bridge health topic.
func (t Topics) Health() string {
	return t.prefix() + "/health"
}

// Discovery returns the Home Assistant device discovery topic for a model.
func (t Topics) Discovery(model string) string {
	root := t.DiscoveryPrefix
	if root == "" {
		root = DefaultDiscoveryPrefix
	}
	return fmt.Sprintf("%s/device/%s/%s/config", root, discoveryNode, model)
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published periodically on the health topic.
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	Devices *DeviceCounts `json:"devices,omitempty"`
}

// DeviceCounts summarises the controller registry.
type DeviceCounts struct {
	Connected  int    `json:"connected"`
	Pending    int    `json:"pending"`
	Discovered int    `json:"discovered"`
	Known      int    `json:"known"`
	Handshakes uint64 `json:"handshakes"`
	Failures   uint64 `json:"failures"`
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats ControllerStats, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:        bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Devices: &DeviceCounts{
			Connected:  stats.Connected,
			Pending:    stats.Pending,
			Discovered: stats.Discovered,
			Known:      stats.Known,
			Handshakes: stats.Handshakes,
			Failures:   stats.Failures,
		},
	}
}
