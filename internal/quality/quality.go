// Package quality defines the confidence tag attached to every computed value.
package quality

import (
	"fmt"
	"strings"
)

// Quality is the confidence of a published value.
//
// The zero value is Unset, which means "no explicit quality"; the
// attribute engine publishes Unset values as Valid.
type Quality uint8

const (
	Unset Quality = iota
	Valid
	Warning
	Invalid
)

// String returns the upper-case name used on the bus and in formulas.
func (q Quality) String() string {
	switch q {
	case Valid:
		return "VALID"
	case Warning:
		return "WARNING"
	case Invalid:
		return "INVALID"
	default:
		return "UNSET"
	}
}

// OrValid returns q, or Valid when q is Unset.
func (q Quality) OrValid() Quality {
	if q == Unset {
		return Valid
	}
	return q
}

// Worst returns the less confident of two qualities.
func Worst(a, b Quality) Quality {
	if a.OrValid() > b.OrValid() {
		return a.OrValid()
	}
	return b.OrValid()
}

// Parse accepts VALID, WARNING, INVALID and their ATTR_ prefixed forms.
func Parse(s string) (Quality, error) {
	name := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "ATTR_")
	switch name {
	case "VALID":
		return Valid, nil
	case "WARNING", "ALARM":
		return Warning, nil
	case "INVALID":
		return Invalid, nil
	default:
		return Unset, fmt.Errorf("quality: unknown value %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.OrValid().String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *Quality) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
