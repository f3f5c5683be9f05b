package processor

import (
	"context"
	"fmt"

	"github.com/nerrad567/attribute-processor/internal/formula"
)

// Derivation is the outcome of DeriveState.
type Derivation struct {
	State string

	// Index is the position of the matching formula, or -1 when the
	// default state was used.
	Index int

	// Failures holds the evaluation error of every formula that failed
	// before the match. They counted as not matched.
	Failures []error
}

// DeriveState evaluates the state formulas in declaration order and
// returns the state of the first one whose value is truthy.
//
// A formula that fails to evaluate, or whose value has no single truth
// value (a vector of several elements), counts as not matched. When nothing
// matches, defaultState is used if set.
//
// Returns:
//   - Derivation: the chosen state and the failures seen on the way
//   - error: ErrNoStateMatched when there are no formulas, or nothing
//     matched and defaultState is empty
func DeriveState(ctx context.Context, formulas []*StateFormula, env formula.Env, defaultState string) (Derivation, error) {
	d := Derivation{Index: -1}
	for i, sf := range formulas {
		v, err := sf.Expr.Eval(ctx, env)
		if err != nil {
			d.Failures = append(d.Failures, err)
			continue
		}
		truth, err := v.Truthy()
		if err != nil {
			d.Failures = append(d.Failures, &formula.EvalError{Formula: sf.State, Source: sf.Source, Err: err})
			continue
		}
		if truth {
			d.State = sf.State
			d.Index = i
			return d, nil
		}
	}

	if len(formulas) > 0 && defaultState != "" {
		d.State = defaultState
		return d, nil
	}
	return d, fmt.Errorf("%w: %d formulas, %d failed", ErrNoStateMatched, len(formulas), len(d.Failures))
}
