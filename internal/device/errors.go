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
	// ErrDeviceNotFound is returned when no device has the requested name.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device name is empty, too long or
	// contains characters that cannot appear in a URL path or MQTT topic.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrProtocolImmutable is returned when an update would change a device's protocol.
	ErrProtocolImmutable = errors.New("device: protocol cannot be changed")
)
