package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/attribute-processor/internal/formula"
	"github.com/nerrad567/attribute-processor/internal/quality"
	"github.com/nerrad567/attribute-processor/internal/symbols"
)

// Logger defines the logging interface used by the Engine.
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

// ValueStore persists last-known values so a restarted device can still
// publish a stale reading for a faulted attribute.
type ValueStore interface {
	Get(key string, dst any) (bool, error)
	Put(key string, v any) error
}

// Deps holds the collaborators of an Engine. Only Builder is required.
type Deps struct {
	Builder  *symbols.Builder
	Accessor symbols.Accessor      // host commands and attributes; may be nil
	Archive  symbols.ArchiveReader // enables the archiving module; may be nil
	Store    ValueStore            // warm cache of last-known values; may be nil
	Logger   Logger
	Clock    func() time.Time
}

// snapshot is everything a configuration produces. It is never modified
// after installation.
type snapshot struct {
	registry     *Registry
	table        *symbols.Table
	props        Properties
	defaultState string
}

// Engine evaluates dynamic attributes and derives the device state.
type Engine struct {
	builder *symbols.Builder
	host    symbols.Accessor
	archive symbols.ArchiveReader
	store   ValueStore
	logger  Logger
	now     func() time.Time

	snap atomic.Pointer[snapshot]

	mu        sync.RWMutex
	lastKnown map[string]EvaluatedValue
	statuses  map[string]AttributeStatus
	state     string
	status    string
}

// NewEngine creates an unconfigured engine. Call Configure before reading.
func NewEngine(deps Deps) *Engine {
	e := &Engine{
		builder:   deps.Builder,
		host:      deps.Accessor,
		archive:   deps.Archive,
		store:     deps.Store,
		logger:    deps.Logger,
		now:       deps.Clock,
		lastKnown: make(map[string]EvaluatedValue),
		statuses:  make(map[string]AttributeStatus),
		state:     StateUnknown,
	}
	if e.builder == nil {
		e.builder = symbols.NewBuilder(nil)
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Report lists what a Configure skipped. Skipped entries do not prevent
// the rest of the configuration from being installed.
type Report struct {
	Attributes int
	States     int
	Skipped    []error
}

// Configure builds a registry and symbol table from props and installs
// them atomically. Previously published values are kept.
//
// Malformed formulas and failing extra modules are logged, skipped and
// listed in the report. Configure fails, leaving the current configuration
// in place, only when the default state is not a valid state name.
func (e *Engine) Configure(props Properties) (Report, error) {
	var report Report

	defaultState := ""
	if props.DefaultState != "" {
		s, err := NormalizeState(props.DefaultState)
		if err != nil {
			return report, fmt.Errorf("default state: %w", err)
		}
		defaultState = s
	}

	reg := NewRegistry()
	for _, decl := range props.DynamicAttributes {
		if strings.TrimSpace(decl) == "" {
			continue
		}
		if _, err := reg.RegisterAttribute(decl); err != nil {
			e.logger.Warn("attribute formula skipped", "declaration", decl, "error", err)
			report.Skipped = append(report.Skipped, err)
		}
	}
	for _, decl := range props.DynamicStates {
		if strings.TrimSpace(decl) == "" {
			continue
		}
		if _, err := reg.RegisterState(decl); err != nil {
			e.logger.Warn("state formula skipped", "declaration", decl, "error", err)
			report.Skipped = append(report.Skipped, err)
		}
	}

	table, moduleErrs := e.builder.Build(symbols.Options{
		ExtraModules: props.ExtraModules,
		SearchPaths:  props.SearchPaths,
		Accessor:     selfAccessor{host: e.host},
		Archive:      e.archive,
		Chi2Warning:  props.Chi2Warning,
	})
	report.Skipped = append(report.Skipped, moduleErrs...)

	for _, attr := range reg.Attributes() {
		if table.Has(attr.Name) {
			e.logger.Warn("attribute name shadowed by library symbol", "attribute", attr.Name)
		}
	}

	report.Attributes = len(reg.Attributes())
	report.States = len(reg.States())

	e.mu.Lock()
	e.snap.Store(&snapshot{registry: reg, table: table, props: props, defaultState: defaultState})
	statuses := make(map[string]AttributeStatus, report.Attributes)
	for _, attr := range reg.Attributes() {
		statuses[attr.Name] = StatusRegistered
	}
	e.statuses = statuses
	if report.States > 0 {
		e.state = StateUnknown
		e.status = "Waiting for the first read cycle"
	} else {
		e.state = StateOn
		e.status = "Device is ON"
	}
	e.mu.Unlock()

	e.logger.Info("engine configured",
		"attributes", report.Attributes,
		"states", report.States,
		"symbols", table.Len(),
		"skipped", len(report.Skipped),
	)
	return report, nil
}

func (e *Engine) current() (*snapshot, error) {
	snap := e.snap.Load()
	if snap == nil {
		return nil, ErrNotConfigured
	}
	return snap, nil
}

// ReadAttribute evaluates one attribute.
//
// Evaluation failures do not produce an error: the value is returned with
// INVALID quality, the failure text, and the last known reading if any.
//
// Returns:
//   - EvaluatedValue: the reading
//   - error: ErrAttributeNotFound for unknown names, ErrNotConfigured
//     before the first Configure
func (e *Engine) ReadAttribute(ctx context.Context, name string) (EvaluatedValue, error) {
	snap, err := e.current()
	if err != nil {
		return EvaluatedValue{}, err
	}
	attr, ok := snap.registry.Attribute(name)
	if !ok {
		return EvaluatedValue{}, fmt.Errorf("%w: %s", ErrAttributeNotFound, name)
	}
	return e.evaluate(ctx, newScope(snap), attr), nil
}

// ReadAll runs one read cycle: every attribute in declaration order, then
// state derivation when state formulas are configured.
func (e *Engine) ReadAll(ctx context.Context) (Cycle, error) {
	snap, err := e.current()
	if err != nil {
		return Cycle{}, err
	}

	cycle := Cycle{ID: uuid.NewString(), Started: e.now()}
	sc := newScope(snap)
	var faulted []string
	for _, attr := range snap.registry.Attributes() {
		v := e.evaluate(ctx, sc, attr)
		if v.Error != "" {
			faulted = append(faulted, attr.Name)
		}
		cycle.Values = append(cycle.Values, v)
	}

	e.mu.RLock()
	prior := e.state
	e.mu.RUnlock()
	state, status := prior, ""

	if states := snap.registry.States(); len(states) > 0 {
		d, err := DeriveState(withScope(ctx, sc), states, sc, snap.defaultState)
		for _, f := range d.Failures {
			e.logger.Debug("state formula not matched", "error", f)
		}
		if err != nil {
			msg := fmt.Sprintf("No state formula matched; keeping %s", prior)
			cycle.Warnings = append(cycle.Warnings, msg)
			e.logger.Warn("state derivation failed", "error", err, "state", prior)
			status = msg
		} else {
			state = d.State
			if d.Index >= 0 {
				status = fmt.Sprintf("%s selected by %s=%s", d.State, d.State, states[d.Index].Source)
			} else {
				status = fmt.Sprintf("%s is the default state", d.State)
			}
		}
	} else {
		state, status = StateOn, "Device is ON"
	}
	if len(faulted) > 0 {
		msg := fmt.Sprintf("%d attribute(s) faulted: %s", len(faulted), strings.Join(faulted, ", "))
		cycle.Warnings = append(cycle.Warnings, msg)
		status += "\n" + msg
	}

	e.mu.Lock()
	cycle.StateChanged = state != e.state
	e.state, e.status = state, status
	e.mu.Unlock()

	if cycle.StateChanged {
		e.logger.Info("device state changed", "from", prior, "to", state, "cycle", cycle.ID)
	}

	cycle.State = state
	cycle.Status = status
	cycle.Duration = e.now().Sub(cycle.Started)
	return cycle, nil
}

// evaluate reads attr within sc and records the outcome.
func (e *Engine) evaluate(ctx context.Context, sc *scope, attr *AttributeFormula) EvaluatedValue {
	e.setStatus(attr.Name, StatusEvaluating)
	v, err := sc.resolve(withScope(ctx, sc), attr)
	now := e.now()

	if err != nil {
		if isCircular(err) {
			e.logger.Warn("circular attribute reference", "attribute", attr.Name, "error", err)
		} else {
			e.logger.Debug("attribute evaluation failed", "attribute", attr.Name, "error", err)
		}
		e.setStatus(attr.Name, StatusFaulted)

		out := EvaluatedValue{Name: attr.Name, Quality: quality.Invalid, Timestamp: now, Error: err.Error()}
		if last, ok := e.lastKnownValue(attr.Name); ok {
			out.Value = last.Value
			out.Stale = true
		}
		return out
	}

	out := EvaluatedValue{
		Name:      attr.Name,
		Value:     v.Native(),
		Quality:   v.Quality().OrValid(),
		Timestamp: now,
	}
	e.remember(out)
	e.setStatus(attr.Name, StatusReady)
	return out
}

func (e *Engine) setStatus(name string, s AttributeStatus) {
	e.mu.Lock()
	e.statuses[name] = s
	e.mu.Unlock()
}

func (e *Engine) remember(v EvaluatedValue) {
	e.mu.Lock()
	e.lastKnown[v.Name] = v
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.Put(v.Name, v); err != nil {
			e.logger.Warn("storing last-known value failed", "attribute", v.Name, "error", err)
		}
	}
}

// lastKnownValue returns the last good reading, from memory or else the
// warm cache.
func (e *Engine) lastKnownValue(name string) (EvaluatedValue, bool) {
	e.mu.RLock()
	v, ok := e.lastKnown[name]
	e.mu.RUnlock()
	if ok || e.store == nil {
		return v, ok
	}

	var cached EvaluatedValue
	found, err := e.store.Get(name, &cached)
	if err != nil {
		e.logger.Warn("reading last-known value failed", "attribute", name, "error", err)
		return EvaluatedValue{}, false
	}
	if !found {
		return EvaluatedValue{}, false
	}
	cached.Value = normalizeNative(cached.Value)

	e.mu.Lock()
	e.lastKnown[name] = cached
	e.mu.Unlock()
	return cached, true
}

// normalizeNative turns decoded generic slices back into []float64.
func normalizeNative(x any) any {
	items, ok := x.([]any)
	if !ok {
		return x
	}
	out := make([]float64, len(items))
	for i, item := range items {
		switch n := item.(type) {
		case float64:
			out[i] = n
		case float32:
			out[i] = float64(n)
		case int64:
			out[i] = float64(n)
		case uint64:
			out[i] = float64(n)
		default:
			return x
		}
	}
	return out
}

// Evaluate evaluates an ad-hoc formula against the current symbol table
// and attributes. It is used by operator consoles; nothing is recorded.
func (e *Engine) Evaluate(ctx context.Context, source string) (formula.Value, error) {
	snap, err := e.current()
	if err != nil {
		return formula.Value{}, err
	}
	expr, err := formula.Compile("", source)
	if err != nil {
		return formula.Value{}, fmt.Errorf("%w: %w", ErrMalformedFormula, err)
	}
	sc := newScope(snap)
	return expr.Eval(withScope(ctx, sc), sc)
}

// State returns the published device state and status text.
func (e *Engine) State() (string, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state, e.status
}

// LastValues returns the last good reading of every attribute that has one,
// in declaration order.
func (e *Engine) LastValues() []EvaluatedValue {
	snap := e.snap.Load()
	if snap == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]EvaluatedValue, 0, len(e.lastKnown))
	for _, attr := range snap.registry.Attributes() {
		if v, ok := e.lastKnown[attr.Name]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Attributes describes the configured attributes in declaration order.
func (e *Engine) Attributes() []AttributeInfo {
	snap := e.snap.Load()
	if snap == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]AttributeInfo, 0, len(snap.registry.Attributes()))
	for _, attr := range snap.registry.Attributes() {
		status, ok := e.statuses[attr.Name]
		if !ok {
			status = StatusUnconfigured
		}
		out = append(out, AttributeInfo{Name: attr.Name, Source: attr.Source, Type: attr.Type, Status: status})
	}
	return out
}

// StateFormulas returns the configured state declarations in order.
func (e *Engine) StateFormulas() []string {
	snap := e.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]string, 0, len(snap.registry.States()))
	for _, sf := range snap.registry.States() {
		out = append(out, sf.State+"="+sf.Source)
	}
	return out
}

// Properties returns the configuration currently installed.
func (e *Engine) Properties() (Properties, error) {
	snap, err := e.current()
	if err != nil {
		return Properties{}, err
	}
	return snap.props, nil
}

// Symbols returns the names bound in the current symbol table.
func (e *Engine) Symbols() []string {
	snap := e.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.table.Names()
}

// IsNotFound reports whether err means the attribute does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAttributeNotFound)
}
