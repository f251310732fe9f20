package api

import (
	"context"
	"sort"

	"github.com/nerrad567/arylic-gateway/internal/bridges/arylic"
)

// Device is the part of a speaker session the HTTP facade drives.
// *arylic.Connection satisfies it.
type Device interface {
	Name() string
	Identity() arylic.Identity
	Send(ctx context.Context, cmd arylic.SentCommand) error
	Request(ctx context.Context, cmd arylic.SentCommand, reply arylic.Kind) (arylic.ReceiveCommand, error)
}

// Registry resolves device names to live sessions.
type Registry interface {
	// Device looks a device up by name, case-insensitively.
	Device(name string) (Device, bool)

	// Devices returns every live device.
	Devices() []Device
}

// StatsSource reports controller counters for the health endpoint.
type StatsSource interface {
	Stats() arylic.ControllerStats
}

// controllerRegistry adapts *arylic.Controller to Registry.
type controllerRegistry struct {
	ctrl *arylic.Controller
}

// NewControllerRegistry exposes a controller's live connections.
func NewControllerRegistry(ctrl *arylic.Controller) Registry {
	return controllerRegistry{ctrl: ctrl}
}

func (r controllerRegistry) Device(name string) (Device, bool) {
	conn, ok := r.ctrl.Lookup(name)
	if !ok {
		return nil, false
	}
	return conn, true
}

func (r controllerRegistry) Devices() []Device {
	conns := r.ctrl.Connections()
	out := make([]Device, 0, len(conns))
	for _, conn := range conns {
		out = append(out, conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
