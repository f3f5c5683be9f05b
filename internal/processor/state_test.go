package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/attribute-processor/internal/formula"
)

func compileStates(t *testing.T, decls ...string) []*StateFormula {
	t.Helper()
	r := NewRegistry()
	for _, d := range decls {
		if _, err := r.RegisterState(d); err != nil {
			t.Fatalf("RegisterState(%q) error = %v", d, err)
		}
	}
	return r.States()
}

// anyFunc stands in for the builtin any() of the symbol table.
var anyFunc = formula.Func("any", func(c formula.Call) (formula.Value, error) {
	v, err := c.Floats(0, "a")
	if err != nil {
		return formula.Value{}, err
	}
	for _, x := range v {
		if x != 0 {
			return formula.Bool(true), nil
		}
	}
	return formula.Bool(false), nil
})

func TestDeriveState(t *testing.T) {
	tests := []struct {
		name         string
		decls        []string
		env          formula.MapEnv
		defaultState string
		want         string
		wantIndex    int
		wantFailures int
		wantErr      error
	}{
		{
			name:      "first truthy wins",
			decls:     []string{"ALARM=T1 > 70", "OK=1"},
			env:       formula.MapEnv{"T1": formula.Number(80)},
			want:      "ALARM",
			wantIndex: 0,
		},
		{
			name:      "falls through",
			decls:     []string{"ALARM=T1 > 70", "OK=1"},
			env:       formula.MapEnv{"T1": formula.Number(10)},
			want:      "OK",
			wantIndex: 1,
		},
		{
			name:         "failure counts as not matched",
			decls:        []string{"FAULT=missing > 1", "ON=True"},
			env:          formula.MapEnv{},
			want:         "ON",
			wantIndex:    1,
			wantFailures: 1,
		},
		{
			name:         "default state",
			decls:        []string{"FAULT=0", "ALARM=''"},
			env:          formula.MapEnv{},
			defaultState: "STANDBY",
			want:         "STANDBY",
			wantIndex:    -1,
		},
		{
			name:      "nothing matched",
			decls:     []string{"FAULT=None"},
			env:       formula.MapEnv{},
			wantIndex: -1,
			wantErr:   ErrNoStateMatched,
		},
		{
			name:         "no formulas ignores default",
			env:          formula.MapEnv{},
			defaultState: "STANDBY",
			wantIndex:    -1,
			wantErr:      ErrNoStateMatched,
		},
		{
			name:         "every formula fails",
			decls:        []string{"A=missing > 1", "B=1/0"},
			env:          formula.MapEnv{},
			wantIndex:    -1,
			wantFailures: 2,
			wantErr:      ErrNoStateMatched,
		},
		{
			name:         "vector condition is not matched",
			decls:        []string{"ALARM=V > 70", "OK=1"},
			env:          formula.MapEnv{"V": formula.Vector([]float64{10, 20, 30})},
			want:         "OK",
			wantIndex:    1,
			wantFailures: 1,
		},
		{
			name:      "reduced vector condition",
			decls:     []string{"ALARM=any(V > 25)", "OK=1"},
			env:       formula.MapEnv{"V": formula.Vector([]float64{10, 20, 30}), "any": anyFunc},
			want:      "ALARM",
			wantIndex: 0,
		},
		{
			name:      "one-element vector is its element",
			decls:     []string{"ALARM=V > 70", "OK=1"},
			env:       formula.MapEnv{"V": formula.Vector([]float64{80})},
			want:      "ALARM",
			wantIndex: 0,
		},
		{
			name:      "lower-case label",
			decls:     []string{"moving=speed != 0"},
			env:       formula.MapEnv{"speed": formula.Number(0.5)},
			want:      "MOVING",
			wantIndex: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DeriveState(context.Background(), compileStates(t, tt.decls...), tt.env, tt.defaultState)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DeriveState() error = %v, want %v", err, tt.wantErr)
			}
			if d.State != tt.want || d.Index != tt.wantIndex {
				t.Errorf("DeriveState() = %s@%d, want %s@%d", d.State, d.Index, tt.want, tt.wantIndex)
			}
			if len(d.Failures) != tt.wantFailures {
				t.Errorf("Failures = %v, want %d", d.Failures, tt.wantFailures)
			}
			for _, f := range d.Failures {
				if !errors.Is(f, formula.ErrEval) {
					t.Errorf("failure %v is not an evaluation error", f)
				}
			}
		})
	}
}
