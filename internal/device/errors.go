package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no speaker with that name is stored.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidName is returned when a speaker name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidAddress is returned when host or port is unusable.
	ErrInvalidAddress = errors.New("device: invalid address")
)
