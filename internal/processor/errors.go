package processor

import "errors"

// Domain errors for the attribute engine.
var (
	// ErrMalformedFormula is returned when a formula declaration cannot be
	// registered.
	ErrMalformedFormula = errors.New("processor: malformed formula")

	// ErrAttributeNotFound is returned when reading an unknown attribute.
	ErrAttributeNotFound = errors.New("processor: attribute not found")

	// ErrNoStateMatched is returned when no state formula is true and no
	// default state is configured.
	ErrNoStateMatched = errors.New("processor: no state matched")

	// ErrCircularReference is returned when attributes reference each other.
	ErrCircularReference = errors.New("processor: circular attribute reference")

	// ErrNotPublishable is returned when a formula yields a module, a
	// function or a mixed list.
	ErrNotPublishable = errors.New("processor: value cannot be published")

	// ErrNotConfigured is returned before the first Configure.
	ErrNotConfigured = errors.New("processor: engine not configured")
)
