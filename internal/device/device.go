package device

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/nerrad567/attribute-processor/internal/formula"
	"github.com/nerrad567/attribute-processor/internal/infrastructure/config"
	"github.com/nerrad567/attribute-processor/internal/infrastructure/mqtt"
	"github.com/nerrad567/attribute-processor/internal/processor"
	"github.com/nerrad567/attribute-processor/internal/property"
	"github.com/nerrad567/attribute-processor/internal/symbols"
)

// Logger defines the logging interface used by the Device.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bus publishes device output and delivers requests. *mqtt.Client
// implements it.
type Bus interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error

	// ReportState hands the current state to the bus presence message.
	ReportState(state, status string)
}

// HistoryWriter records readings and state transitions of this device.
// *influxdb.History implements it.
type HistoryWriter interface {
	WriteReading(v processor.EvaluatedValue)
	WriteState(state, source string, at time.Time)
}

// Broadcaster pushes events to live subscribers such as WebSocket clients.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Event names passed to the Broadcaster.
const (
	EventCycle  = "cycle"
	EventValue  = "value"
	EventState  = "state"
	EventReload = "reload"
	EventInput  = "input"
)

// Command names callable from formulas with Cmd() and from the bus.
const (
	CommandSetInput = "SetInput"
	CommandState    = "State"
	CommandStatus   = "Status"
)

// defaultReadTimeout bounds a cycle when the config gives no timeout.
const defaultReadTimeout = 3 * time.Second

// Deps holds the collaborators of a Device. Only Config is required.
type Deps struct {
	Config    config.DeviceConfig
	Processor config.ProcessorConfig

	Builder      *symbols.Builder
	Properties   property.Repository    // property store; nil means file only
	StateHistory StateHistoryRepository // may be nil
	Store        processor.ValueStore   // last-known values; may be nil
	Archive      symbols.ArchiveReader  // may be nil
	Bus          Bus                    // may be nil
	History      HistoryWriter          // may be nil
	Logger       Logger
	Clock        func() time.Time
}

// Device hosts a processor engine and connects it to the outside world.
//
// Thread Safety: all methods are safe for concurrent use.
type Device struct {
	name             string
	engine           *processor.Engine
	fileProps        processor.Properties
	repo             property.Repository
	stateHistory     StateHistoryRepository
	store            processor.ValueStore
	bus              Bus
	values           HistoryWriter
	logger           Logger
	now              func() time.Time
	schedule         *cronexpr.Expression
	readTimeout      time.Duration
	publishUnchanged bool
	topics           mqtt.Topics

	// mu serialises cycles, single reads and reloads.
	mu sync.Mutex

	inputsMu sync.RWMutex
	inputs   map[string]formula.Value

	pubMu      sync.Mutex
	published  map[string]processor.EvaluatedValue
	lastState  string
	lastStatus string

	broadcastMu sync.RWMutex
	broadcaster Broadcaster
}

// New creates a device. Call Reload before the first read.
//
// Returns:
//   - *Device: the device, unconfigured
//   - error: ErrInvalidDevice for an empty name, an unparsable schedule or
//     a bad input name
func New(deps Deps) (*Device, error) {
	name := strings.TrimSpace(deps.Config.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}

	d := &Device{
		name: name,
		fileProps: processor.Properties{
			DynamicAttributes: deps.Config.DynamicAttributes,
			DynamicStates:     deps.Config.DynamicStates,
			ExtraModules:      deps.Config.ExtraModules,
			SearchPaths:       deps.Config.SearchPaths,
			DefaultState:      deps.Config.DefaultState,
			Chi2Warning:       deps.Config.Chi2Warning,
		},
		repo:             deps.Properties,
		stateHistory:     deps.StateHistory,
		store:            deps.Store,
		bus:              deps.Bus,
		values:           deps.History,
		logger:           deps.Logger,
		now:              deps.Clock,
		readTimeout:      deps.Processor.GetCycleTimeout(),
		publishUnchanged: deps.Processor.PublishUnchanged,
		inputs:           make(map[string]formula.Value, len(deps.Config.Inputs)),
		published:        make(map[string]processor.EvaluatedValue),
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.readTimeout <= 0 {
		d.readTimeout = defaultReadTimeout
	}

	if deps.Processor.Schedule != "" {
		expr, err := cronexpr.Parse(deps.Processor.Schedule)
		if err != nil {
			return nil, fmt.Errorf("%w: schedule %q: %w", ErrInvalidDevice, deps.Processor.Schedule, err)
		}
		d.schedule = expr
	}

	for k, v := range deps.Config.Inputs {
		if err := validateInputName(k); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDevice, err)
		}
		d.inputs[k] = formula.Number(v)
	}

	d.engine = processor.NewEngine(processor.Deps{
		Builder:  deps.Builder,
		Accessor: d,
		Archive:  deps.Archive,
		Store:    deps.Store,
		Logger:   deps.Logger,
		Clock:    d.now,
	})
	return d, nil
}

// SetBroadcaster sets the live event sink. It may be called once the API
// hub exists.
func (d *Device) SetBroadcaster(b Broadcaster) {
	d.broadcastMu.Lock()
	d.broadcaster = b
	d.broadcastMu.Unlock()
}

func (d *Device) broadcast(event string, payload any) {
	d.broadcastMu.RLock()
	b := d.broadcaster
	d.broadcastMu.RUnlock()
	if b != nil {
		b.Broadcast(event, payload)
	}
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// State returns the device state and status text.
func (d *Device) State() (string, string) { return d.engine.State() }

// Attributes describes the configured dynamic attributes.
func (d *Device) Attributes() []processor.AttributeInfo { return d.engine.Attributes() }

// LastValues returns the last good reading of every attribute.
func (d *Device) LastValues() []processor.EvaluatedValue { return d.engine.LastValues() }

// StateFormulas returns the configured state declarations.
func (d *Device) StateFormulas() []string { return d.engine.StateFormulas() }

// Properties returns the installed configuration.
func (d *Device) Properties() (processor.Properties, error) { return d.engine.Properties() }

// Symbols returns the names formulas can use.
func (d *Device) Symbols() []string { return d.engine.Symbols() }

// Evaluate runs an ad-hoc formula against the live configuration.
func (d *Device) Evaluate(ctx context.Context, source string) (formula.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, d.readTimeout)
	defer cancel()
	return d.engine.Evaluate(ctx, source)
}

// ─── Inputs ─────────────────────────────────────────────────────────

func validateInputName(name string) error {
	if name == "" || strings.ContainsAny(name, "/+# ") {
		return fmt.Errorf("%w: name %q", ErrInvalidInput, name)
	}
	return nil
}

// SetInput sets a plain input attribute. Numbers, booleans, strings and
// numeric vectors are accepted.
func (d *Device) SetInput(name string, v formula.Value) error {
	if err := validateInputName(name); err != nil {
		return err
	}
	switch v.Kind() {
	case formula.KindNumber, formula.KindBool, formula.KindString, formula.KindVector:
	default:
		return fmt.Errorf("%w: %s: unsupported %s value", ErrInvalidInput, name, v.Kind())
	}

	d.inputsMu.Lock()
	d.inputs[name] = v
	d.inputsMu.Unlock()

	d.logger.Debug("input set", "input", name, "value", v.String())
	d.broadcast(EventInput, map[string]any{"name": name, "value": v.Native()})
	return nil
}

// Inputs returns the current input values.
func (d *Device) Inputs() map[string]any {
	d.inputsMu.RLock()
	defer d.inputsMu.RUnlock()
	out := make(map[string]any, len(d.inputs))
	for k, v := range d.inputs {
		out[k] = v.Native()
	}
	return out
}

// ─── symbols.Accessor ───────────────────────────────────────────────

// DeviceName implements symbols.Accessor.
func (d *Device) DeviceName() string { return d.name }

// CommandNames implements symbols.Accessor.
func (d *Device) CommandNames() []string {
	return []string{CommandSetInput, CommandState, CommandStatus}
}

// InvokeCommand implements symbols.Accessor. Commands never take the device
// mutex, so formulas may call them during a cycle.
func (d *Device) InvokeCommand(_ context.Context, name string, args []formula.Value) (formula.Value, error) {
	switch name {
	case CommandState:
		state, _ := d.engine.State()
		return formula.String(state), nil
	case CommandStatus:
		_, status := d.engine.State()
		return formula.String(status), nil
	case CommandSetInput:
		if len(args) != 2 {
			return formula.Value{}, fmt.Errorf("%w: %s takes a name and a value", formula.ErrType, name)
		}
		input, ok := args[0].Str()
		if !ok {
			return formula.Value{}, fmt.Errorf("%w: %s: name must be a string", formula.ErrType, name)
		}
		if err := d.SetInput(input, args[1]); err != nil {
			return formula.Value{}, err
		}
		return args[1], nil
	}
	return formula.Value{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

// ReadSelfAttribute implements symbols.Accessor. It serves inputs and the
// State and Status attributes; dynamic attributes are resolved by the
// engine before this is reached.
func (d *Device) ReadSelfAttribute(_ context.Context, name string) (formula.Value, error) {
	d.inputsMu.RLock()
	v, ok := d.inputs[name]
	d.inputsMu.RUnlock()
	if ok {
		return v, nil
	}

	switch name {
	case CommandState:
		state, _ := d.engine.State()
		return formula.String(state), nil
	case CommandStatus:
		_, status := d.engine.State()
		return formula.String(status), nil
	}
	return formula.Value{}, fmt.Errorf("%w: %s", ErrInputNotFound, name)
}

// inputNames returns the input names, sorted.
func (d *Device) inputNames() []string {
	d.inputsMu.RLock()
	defer d.inputsMu.RUnlock()
	return slices.Sorted(maps.Keys(d.inputs))
}
