package symbols

import (
	"fmt"
	"strings"
)

// deniedRoots are module roots that would reach process or OS facilities.
var deniedRoots = map[string]bool{
	"sys":        true,
	"os":         true,
	"exec":       true,
	"syscall":    true,
	"subprocess": true,
	"unsafe":     true,
	"runtime":    true,
	"plugin":     true,
}

// ExtraModuleSpec is one parsed extra-module entry.
type ExtraModuleSpec struct {
	// Module is the provider name, possibly with a path such as "lab/stats".
	Module string

	// Symbol is empty for a whole-module import, "*" for a wildcard import,
	// or the member name to bind.
	Symbol string

	// Alias is the explicit "as" name, or empty.
	Alias string
}

// Wildcard reports whether the entry binds every member at top level.
func (s ExtraModuleSpec) Wildcard() bool { return s.Symbol == "*" }

// BindName returns the top-level name the entry binds. It is empty for
// wildcard imports.
func (s ExtraModuleSpec) BindName() string {
	switch {
	case s.Wildcard():
		return ""
	case s.Alias != "":
		return s.Alias
	case s.Symbol != "":
		return s.Symbol
	}
	return s.Module[strings.LastIndex(s.Module, "/")+1:]
}

// String reassembles the entry in its configuration form.
func (s ExtraModuleSpec) String() string {
	out := s.Module
	if s.Symbol != "" {
		out += "." + s.Symbol
	}
	if s.Alias != "" {
		out += " as " + s.Alias
	}
	return out
}

// root returns the first path segment of the module name.
func (s ExtraModuleSpec) root() string {
	return strings.FieldsFunc(s.Module, func(r rune) bool { return r == '/' || r == '.' })[0]
}

// ParseExtraModule parses "module[.symbol][ as alias]".
//
// Returns:
//   - ExtraModuleSpec: the parsed entry
//   - error: ErrForbiddenModule when the root is denied, ErrInvalidSpec when
//     the text is malformed
func ParseExtraModule(entry string) (ExtraModuleSpec, error) {
	text := strings.TrimSpace(entry)
	var alias string
	if before, after, found := strings.Cut(text, " as "); found {
		text = strings.TrimSpace(before)
		alias = strings.TrimSpace(after)
		if !isIdentifier(alias) {
			return ExtraModuleSpec{}, fmt.Errorf("%w: alias %q is not an identifier", ErrInvalidSpec, alias)
		}
	}
	if text == "" {
		return ExtraModuleSpec{}, fmt.Errorf("%w: empty module name", ErrInvalidSpec)
	}

	parts := strings.Split(text, ".")
	spec := ExtraModuleSpec{Module: parts[0], Alias: alias}

	// The deny-list applies before anything else about the entry is checked.
	if root := spec.rootOrEmpty(); deniedRoots[root] {
		return ExtraModuleSpec{}, fmt.Errorf("%w: %s", ErrForbiddenModule, root)
	}

	switch len(parts) {
	case 1:
	case 2:
		spec.Symbol = parts[1]
	default:
		return ExtraModuleSpec{}, fmt.Errorf("%w: nested member %q", ErrInvalidSpec, text)
	}

	for _, seg := range strings.Split(spec.Module, "/") {
		if !isIdentifier(seg) {
			return ExtraModuleSpec{}, fmt.Errorf("%w: module name %q", ErrInvalidSpec, spec.Module)
		}
	}
	if spec.Symbol != "" && spec.Symbol != "*" && !isIdentifier(spec.Symbol) {
		return ExtraModuleSpec{}, fmt.Errorf("%w: symbol %q", ErrInvalidSpec, spec.Symbol)
	}
	if spec.Wildcard() && alias != "" {
		return ExtraModuleSpec{}, fmt.Errorf("%w: wildcard import cannot be aliased", ErrInvalidSpec)
	}
	return spec, nil
}

func (s ExtraModuleSpec) rootOrEmpty() string {
	if strings.Trim(s.Module, "/.") == "" {
		return ""
	}
	return s.root()
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
