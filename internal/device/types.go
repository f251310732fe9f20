package device

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// maxNameLength bounds speaker names. The firmware allows far less.
const maxNameLength = 100

// KnownDevice is a speaker that completed a handshake at least once.
type KnownDevice struct {
	// Name is the speaker's self-reported name, as used on MQTT topics.
	Name string `json:"name"`

	// Host is the IP address or host name the gateway connected to.
	Host string `json:"host"`

	// Port is the speaker's TCP control port.
	Port int `json:"port"`

	// FirstSeen is when the speaker was first stored.
	FirstSeen time.Time `json:"first_seen"`

	// LastSeen is the most recent handshake.
	LastSeen time.Time `json:"last_seen"`
}

// Address returns host:port.
func (d KnownDevice) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Validate checks the fields required for storage.
func (d KnownDevice) Validate() error {
	name := strings.TrimSpace(d.Name)
	if name == "" || len(name) > maxNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidName, d.Name)
	}
	if d.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidAddress)
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, d.Port)
	}
	return nil
}
