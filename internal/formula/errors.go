package formula

import (
	"errors"
	"fmt"
)

// Evaluation errors. Every runtime failure is reported as an *EvalError
// wrapping one of these.
var (
	// ErrEval matches any *EvalError.
	ErrEval = errors.New("formula: evaluation failed")

	// ErrSyntax matches any *SyntaxError.
	ErrSyntax = errors.New("formula: syntax error")

	// ErrUndefined is returned when an identifier or member cannot be resolved.
	ErrUndefined = errors.New("formula: undefined name")

	// ErrType is returned when an operator or call receives the wrong kind of value.
	ErrType = errors.New("formula: type mismatch")

	// ErrDivisionByZero is returned by /, // and % with a zero divisor.
	ErrDivisionByZero = errors.New("formula: division by zero")

	// ErrIndex is returned when a subscript is out of range.
	ErrIndex = errors.New("formula: index out of range")

	// ErrCall is returned when a called function fails or panics.
	ErrCall = errors.New("formula: call failed")
)

// EvalError is a runtime failure of one formula.
type EvalError struct {
	Formula string // attribute or state name, may be empty
	Source  string
	Err     error
}

func (e *EvalError) Error() string {
	if e.Formula == "" {
		return fmt.Sprintf("evaluating %q: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("evaluating %s: %v", e.Formula, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// Is reports true for ErrEval so callers can test for any evaluation failure.
func (e *EvalError) Is(target error) bool { return target == ErrEval }

// SyntaxError is a parse failure with the byte offset where it was detected.
type SyntaxError struct {
	Source string
	Pos    int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at column %d: %s", e.Pos+1, e.Msg)
}

func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }
