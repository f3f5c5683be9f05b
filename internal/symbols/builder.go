package symbols

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/nerrad567/attribute-processor/internal/formula"
)

// Logger defines the logging interface used by the Builder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options selects what a Build includes beyond the builtin library.
type Options struct {
	// ExtraModules are "module[.symbol][ as alias]" entries, applied in order.
	ExtraModules []string

	// SearchPaths are provider namespace prefixes tried after the bare name.
	SearchPaths []string

	// Accessor enables the device self-reference. May be nil.
	Accessor Accessor

	// Archive enables the archiving module. May be nil.
	Archive ArchiveReader

	// Chi2Warning overrides the default PEAKFIT warning threshold when > 0.
	Chi2Warning float64
}

// Table is an immutable namespace snapshot. It implements formula.Env.
type Table struct {
	entries    map[string]formula.Value
	generation uint64
}

// Lookup implements formula.Env.
func (t *Table) Lookup(_ context.Context, name string) (formula.Value, error) {
	if v, ok := t.entries[name]; ok {
		return v, nil
	}
	return formula.Value{}, fmt.Errorf("%w: %s", formula.ErrUndefined, name)
}

// Has reports whether name is bound.
func (t *Table) Has(name string) bool {
	_, ok := t.entries[name]
	return ok
}

// Len returns the number of bound names.
func (t *Table) Len() int { return len(t.entries) }

// Generation increases with every Build of the same Builder.
func (t *Table) Generation() uint64 { return t.generation }

// Names returns the bound names, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for k := range t.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Builder assembles symbol tables.
//
// Thread Safety: Build is safe for concurrent use; each call produces an
// independent table.
type Builder struct {
	registry   *Registry
	logger     Logger
	generation atomic.Uint64
}

// NewBuilder creates a builder resolving extra modules against registry.
// A nil registry means DefaultRegistry().
func NewBuilder(registry *Registry) *Builder {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Builder{registry: registry, logger: noopLogger{}}
}

// SetLogger sets the logger for the builder.
func (b *Builder) SetLogger(logger Logger) {
	b.logger = logger
}

// Build assembles a new table from scratch.
//
// Extra-module entries that fail are logged and skipped; their errors are
// returned as *EntryError values alongside the (still usable) table.
//
// Returns:
//   - *Table: the new snapshot, never nil
//   - []error: one *EntryError per skipped entry
func (b *Builder) Build(opts Options) (*Table, []error) {
	t := &Table{entries: make(map[string]formula.Value, 256)}

	// Library names first; later layers may shadow them, mirroring the
	// order they are listed in.
	for _, layer := range []members{mathMembers(), randomMembers(), signalMembers(), conversionMembers()} {
		t.bind(layer)
	}
	if opts.Chi2Warning > 0 {
		t.entries["PEAKFIT"] = formula.Func("PEAKFIT", peakFitWith(opts.Chi2Warning))
	}
	t.bind(regexMembers())
	t.bind(wrapperMembers())
	t.bind(qualityMembers())
	t.entries["math"] = formula.ModuleValue(formula.NewModule("math", mathMembers()))
	t.entries["random"] = formula.ModuleValue(formula.NewModule("random", randomMembers()))
	t.entries["np"] = formula.ModuleValue(formula.NewModule("np", npMembers()))
	t.entries["time"] = formula.ModuleValue(formula.NewModule("time", timeMembers()))

	functional := functionalMembers()
	t.entries["functional"] = formula.ModuleValue(formula.NewModule("functional", functional))
	for name, v := range functional {
		if isConversionHelper(name) {
			t.entries[name] = v
		}
	}

	if opts.Archive != nil {
		t.entries["archiving"] = archivingModule(opts.Archive)
	}

	var errs []error
	t.bind(selfMembers(opts.Accessor))
	if opts.Accessor != nil {
		for _, name := range opts.Accessor.CommandNames() {
			if t.Has(name) {
				err := &EntryError{Entry: "command " + name, Err: fmt.Errorf("%w: %s", ErrNameConflict, name)}
				b.logger.Warn("device command shadowed by library name", "command", name)
				errs = append(errs, err)
				continue
			}
			t.entries[name] = commandFunc(opts.Accessor, name)
		}
	}

	for _, entry := range opts.ExtraModules {
		if err := b.loadExtra(t, entry, opts.SearchPaths); err != nil {
			errs = append(errs, &EntryError{Entry: entry, Err: err})
			if errors.Is(err, ErrForbiddenModule) {
				b.logger.Error("extra module rejected", "entry", entry, "error", err)
			} else {
				b.logger.Warn("extra module skipped", "entry", entry, "error", err)
			}
		}
	}

	t.generation = b.generation.Add(1)
	b.logger.Debug("symbol table built", "names", t.Len(), "generation", t.generation, "skipped", len(errs))
	return t, errs
}

func (t *Table) bind(m members) {
	for k, v := range m {
		t.entries[k] = v
	}
}

// loadExtra applies one extra-module entry to t.
func (b *Builder) loadExtra(t *Table, entry string, searchPaths []string) error {
	spec, err := ParseExtraModule(entry)
	if err != nil {
		return err
	}

	bind := spec.BindName()
	if bind != "" && t.Has(bind) {
		return fmt.Errorf("%w: %s", ErrNameConflict, bind)
	}

	provider, ok := b.registry.Resolve(spec.Module, searchPaths)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, spec.Module)
	}
	exported := provider.Members()

	switch {
	case spec.Symbol == "":
		t.entries[bind] = formula.ModuleValue(formula.NewModule(provider.Name, exported))
	case spec.Wildcard():
		var shadowed []string
		for name, v := range exported {
			if t.Has(name) {
				shadowed = append(shadowed, name)
				continue
			}
			t.entries[name] = v
		}
		if len(shadowed) > 0 {
			sort.Strings(shadowed)
			b.logger.Debug("wildcard import kept existing names", "module", provider.Name, "names", shadowed)
		}
	default:
		v, ok := exported[spec.Symbol]
		if !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownSymbol, spec.Module, spec.Symbol)
		}
		t.entries[bind] = v
	}

	b.logger.Info("extra module loaded", "entry", spec.String(), "provider", provider.Name)
	return nil
}
