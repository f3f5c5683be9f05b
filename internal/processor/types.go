package processor

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/attribute-processor/internal/formula"
	"github.com/nerrad567/attribute-processor/internal/quality"
	"github.com/nerrad567/attribute-processor/internal/symbols"
)

// DeclaredType is the shape an attribute publishes.
type DeclaredType string

const (
	TypeAuto   DeclaredType = "auto"
	TypeScalar DeclaredType = "scalar"
	TypeVector DeclaredType = "vector"
)

func declaredTypeOf(expr *formula.Expr) DeclaredType {
	name, ok := expr.OuterCall()
	if !ok {
		return TypeAuto
	}
	switch symbols.WrapperShape(name) {
	case symbols.ShapeScalar:
		return TypeScalar
	case symbols.ShapeVector:
		return TypeVector
	}
	return TypeAuto
}

// AttributeStatus is the lifecycle state of one dynamic attribute.
type AttributeStatus string

const (
	StatusUnconfigured AttributeStatus = "unconfigured"
	StatusRegistered   AttributeStatus = "registered"
	StatusEvaluating   AttributeStatus = "evaluating"
	StatusReady        AttributeStatus = "ready"
	StatusFaulted      AttributeStatus = "faulted"
)

// AttributeFormula is one "name=expression" declaration.
type AttributeFormula struct {
	Name   string
	Source string
	Expr   *formula.Expr
	Type   DeclaredType
}

// StateFormula is one "STATE=expression" declaration. Priority is the
// declaration index; lower wins.
type StateFormula struct {
	State    string
	Source   string
	Expr     *formula.Expr
	Priority int
}

// EvaluatedValue is a published attribute reading.
type EvaluatedValue struct {
	Name      string          `json:"name" cbor:"1,keyasint"`
	Value     any             `json:"value" cbor:"2,keyasint"`
	Quality   quality.Quality `json:"quality" cbor:"3,keyasint"`
	Timestamp time.Time       `json:"timestamp" cbor:"4,keyasint"`
	Error     string          `json:"error,omitempty" cbor:"5,keyasint,omitempty"`

	// Stale is set when Value is a previous reading re-published after a
	// failed evaluation.
	Stale bool `json:"stale,omitempty" cbor:"6,keyasint,omitempty"`
}

// AttributeInfo describes a configured attribute for operator surfaces.
type AttributeInfo struct {
	Name   string          `json:"name"`
	Source string          `json:"formula"`
	Type   DeclaredType    `json:"type"`
	Status AttributeStatus `json:"status"`
}

// Cycle is the outcome of one ReadAll.
type Cycle struct {
	ID           string           `json:"id"`
	Started      time.Time        `json:"started"`
	Duration     time.Duration    `json:"duration"`
	Values       []EvaluatedValue `json:"values"`
	State        string           `json:"state"`
	StateChanged bool             `json:"state_changed"`
	Status       string           `json:"status"`
	Warnings     []string         `json:"warnings,omitempty"`
}

// Properties is the device configuration the engine is built from.
type Properties struct {
	DynamicAttributes []string `json:"dynamic_attributes" yaml:"dynamic_attributes"`
	DynamicStates     []string `json:"dynamic_states" yaml:"dynamic_states"`
	ExtraModules      []string `json:"extra_modules" yaml:"extra_modules"`
	SearchPaths       []string `json:"search_paths" yaml:"search_paths"`
	DefaultState      string   `json:"default_state" yaml:"default_state"`
	Chi2Warning       float64  `json:"chi2_warning" yaml:"chi2_warning"`
}

// Well-known device states used by the engine itself.
const (
	StateOn      = "ON"
	StateUnknown = "UNKNOWN"
)

// NormalizeState upper-cases a state label and checks it is a plain name
// such as ALARM, OK or STANDBY.
func NormalizeState(name string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(name))
	if !isName(s) {
		return "", fmt.Errorf("%w: invalid state name %q", ErrMalformedFormula, name)
	}
	return s, nil
}
