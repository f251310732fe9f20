package arylic

import (
	"context"
	"net"
	"strings"
	"time"
)

// DiscoveredDevice is a speaker found by a discovery source.
type DiscoveredDevice struct {
	Identity Identity `json:"identity"`

	// HostName is the advertised host name, e.g. "up2stream-a1b2.local.".
	HostName string `json:"host_name"`

	// Name is the advertised service instance name.
	Name string `json:"name"`
}

// Model returns the first label of the host name, falling back to the
// identity host. IP addresses are kept whole with separators replaced.
func (d DiscoveredDevice) Model() string {
	host := d.HostName
	if host == "" {
		host = d.Identity.Host
	}
	if net.ParseIP(host) != nil {
		return strings.NewReplacer(".", "-", ":", "-").Replace(host)
	}
	label, _, _ := strings.Cut(host, ".")
	return strings.ToLower(label)
}

// DiscoverySource reports the speakers currently visible on the network.
type DiscoverySource interface {
	Discover(ctx context.Context) ([]DiscoveredDevice, error)
}

// EventSink receives device lifecycle and state events from the Controller.
//
// Calls for one device arrive in order. Implementations must not block for
// long: DeviceEvent runs on the connection's read goroutine.
type EventSink interface {
	DeviceAvailable(name string, available bool)
	DeviceEvent(name string, cmd ReceiveCommand)
	DeviceDiscovered(device DiscoveredDevice)
}

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) DeviceAvailable(name string, available bool) {
	for _, s := range m {
		s.DeviceAvailable(name, available)
	}
}

func (m MultiSink) DeviceEvent(name string, cmd ReceiveCommand) {
	for _, s := range m {
		s.DeviceEvent(name, cmd)
	}
}

func (m MultiSink) DeviceDiscovered(device DiscoveredDevice) {
	for _, s := range m {
		s.DeviceDiscovered(device)
	}
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) DeviceAvailable(string, bool)       {}
func (NopSink) DeviceEvent(string, ReceiveCommand) {}
func (NopSink) DeviceDiscovered(DiscoveredDevice)  {}

// KnownDevice is a speaker that completed a handshake at some point.
type KnownDevice struct {
	Name     string
	Identity Identity
	LastSeen time.Time
}

// KnownDeviceStore persists speakers across restarts.
type KnownDeviceStore interface {
	KnownDevices(ctx context.Context) ([]KnownDevice, error)
	RememberDevice(ctx context.Context, device KnownDevice) error
}
