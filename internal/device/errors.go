package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrUnknownCommand) {
//	    // handle unknown command
//	}
var (
	// ErrInvalidDevice is returned when the device configuration is unusable.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidInput is returned when an input name or value is rejected.
	ErrInvalidInput = errors.New("device: invalid input")

	// ErrInputNotFound is returned when Attr() names neither an input nor
	// a dynamic attribute.
	ErrInputNotFound = errors.New("device: attribute not found")

	// ErrUnknownCommand is returned for a command the device does not have.
	ErrUnknownCommand = errors.New("device: unknown command")

	// ErrInvalidRequest is returned for malformed bus requests.
	ErrInvalidRequest = errors.New("device: invalid request")

	// ErrNoPropertyStore is returned by property writes when no store is
	// configured.
	ErrNoPropertyStore = errors.New("device: no property store")
)
