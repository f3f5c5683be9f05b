package property

import "errors"

var (
	// ErrInvalidDevice is returned for an empty device name.
	ErrInvalidDevice = errors.New("property: invalid device name")

	// ErrInvalidProperty is returned when a stored row names an unknown
	// property or holds an unparsable scalar.
	ErrInvalidProperty = errors.New("property: invalid property")
)
