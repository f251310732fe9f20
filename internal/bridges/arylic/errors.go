package arylic

import "errors"

// Domain errors for the Arylic bridge package.
var (
	// ErrConnectionFailed is returned when a TCP connection to a speaker
	// cannot be established.
	ErrConnectionFailed = errors.New("arylic: connection to device failed")

	// ErrConnectionClosed is returned to pending expectations when the
	// session terminates before the awaited reply arrives.
	ErrConnectionClosed = errors.New("arylic: connection closed")

	// ErrNotConnected is returned when sending on a closed session.
	ErrNotConnected = errors.New("arylic: not connected")

	// ErrSendFailed is returned when writing a frame to the socket fails.
	ErrSendFailed = errors.New("arylic: send failed")

	// ErrHandshakeFailed is returned when the initial device-info exchange
	// does not complete.
	ErrHandshakeFailed = errors.New("arylic: handshake failed")

	// ErrDuplicateName is returned when a second speaker reports a name
	// already held by a live connection.
	ErrDuplicateName = errors.New("arylic: device name already registered")

	// ErrProtocol marks a frame whose payload could not be interpreted.
	ErrProtocol = errors.New("arylic: protocol error")

	// ErrInvalidVolume is returned for volume levels outside 0..100.
	ErrInvalidVolume = errors.New("arylic: volume must be between 0 and 100")

	// ErrDeviceNotFound is returned when no live connection matches a name.
	ErrDeviceNotFound = errors.New("arylic: device not found")

	// ErrUnknownCommand is returned when a command name cannot be mapped to
	// a SentCommand.
	ErrUnknownCommand = errors.New("arylic: unknown command")
)
