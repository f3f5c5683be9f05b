package symbols

import (
	"context"
	"fmt"

	"github.com/nerrad567/attribute-processor/internal/formula"
)

// Accessor is the host device surface formulas may reach: its own commands
// and attributes. Calls may block; implementations must honour ctx.
type Accessor interface {
	// DeviceName returns the device name exposed as self.name.
	DeviceName() string

	// CommandNames lists the commands bound as top-level callables.
	CommandNames() []string

	// InvokeCommand runs a device command.
	InvokeCommand(ctx context.Context, name string, args []formula.Value) (formula.Value, error)

	// ReadSelfAttribute reads one of the device's attributes by name.
	ReadSelfAttribute(ctx context.Context, name string) (formula.Value, error)
}

// selfMembers returns Attr, ATTR, Cmd and the self module. With a nil
// accessor, Attr still passes values through and name lookups fail with
// ErrNoAccessor.
func selfMembers(acc Accessor) members {
	attr := formula.Func("Attr", func(c formula.Call) (formula.Value, error) {
		v, ok := c.Arg(0, "name")
		if !ok {
			return formula.Value{}, fmt.Errorf("%w: Attr: missing argument", formula.ErrType)
		}
		name, isName := v.Str()
		if !isName {
			return v, nil
		}
		if acc == nil {
			return formula.Value{}, fmt.Errorf("%w: reading %s", ErrNoAccessor, name)
		}
		return acc.ReadSelfAttribute(c.Context(), name)
	})
	cmd := formula.Func("Cmd", func(c formula.Call) (formula.Value, error) {
		name, err := c.Str(0, "name")
		if err != nil {
			return formula.Value{}, err
		}
		if acc == nil {
			return formula.Value{}, fmt.Errorf("%w: running %s", ErrNoAccessor, name)
		}
		var args []formula.Value
		if len(c.Args) > 1 {
			args = c.Args[1:]
		}
		return acc.InvokeCommand(c.Context(), name, args)
	})

	self := members{"read": attr, "command": cmd, "name": formula.String("")}
	if acc != nil {
		self["name"] = formula.String(acc.DeviceName())
	}
	return members{
		"Attr": attr,
		"ATTR": attr,
		"Cmd":  cmd,
		"self": formula.ModuleValue(formula.NewModule("self", self)),
	}
}

// commandFunc binds one device command as a callable.
func commandFunc(acc Accessor, name string) formula.Value {
	return formula.Func(name, func(c formula.Call) (formula.Value, error) {
		return acc.InvokeCommand(c.Context(), name, c.Args)
	})
}
