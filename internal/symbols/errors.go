package symbols

import (
	"errors"
	"fmt"
)

// Domain errors for symbol table construction.
var (
	// ErrForbiddenModule is returned for extra modules rooted at a denied name.
	ErrForbiddenModule = errors.New("symbols: module not allowed")

	// ErrUnknownModule is returned when no provider is registered under a name.
	ErrUnknownModule = errors.New("symbols: unknown module")

	// ErrUnknownSymbol is returned when a provider lacks the requested member.
	ErrUnknownSymbol = errors.New("symbols: unknown symbol")

	// ErrNameConflict is returned when an alias is already bound.
	ErrNameConflict = errors.New("symbols: name already bound")

	// ErrInvalidSpec is returned for extra-module entries that cannot be parsed.
	ErrInvalidSpec = errors.New("symbols: invalid module spec")

	// ErrDuplicateProvider is returned when registering a name twice.
	ErrDuplicateProvider = errors.New("symbols: provider already registered")

	// ErrNoAccessor is returned by self-reference helpers when the table was
	// built without a device.
	ErrNoAccessor = errors.New("symbols: no device accessor")
)

// EntryError reports one extra-module entry that was skipped.
type EntryError struct {
	Entry string
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("extra module %q: %v", e.Entry, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }
