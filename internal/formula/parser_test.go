package formula

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCompile_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantPos int
		wantMsg string
	}{
		{name: "unbalanced paren", source: "(1 + 2", wantPos: 6, wantMsg: "expected ')'"},
		{name: "trailing operator", source: "1 +", wantPos: 3, wantMsg: "unexpected end"},
		{name: "empty", source: "   ", wantPos: 0, wantMsg: "empty formula"},
		{name: "stray close", source: "1)", wantPos: 1, wantMsg: "unexpected ')'"},
		{name: "bad character", source: "a $ b", wantPos: 2, wantMsg: "unexpected character"},
		{name: "unterminated string", source: "'abc", wantPos: 0, wantMsg: "unterminated string"},
		{name: "positional after keyword", source: "f(a=1, 2)", wantPos: 7, wantMsg: "positional argument follows"},
		{name: "repeated keyword", source: "f(a=1, a=2)", wantPos: 7, wantMsg: "repeated"},
		{name: "assignment", source: "a = 1", wantPos: 2, wantMsg: "unexpected '='"},
		{name: "number then ident", source: "2x", wantPos: 1, wantMsg: "identifier directly after number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("attr", tt.source)
			if !errors.Is(err, ErrSyntax) {
				t.Fatalf("Compile(%q) error = %v, want ErrSyntax", tt.source, err)
			}
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("error is %T, want *SyntaxError", err)
			}
			if se.Pos != tt.wantPos {
				t.Errorf("Pos = %d, want %d (%v)", se.Pos, tt.wantPos, err)
			}
			if !strings.Contains(se.Msg, tt.wantMsg) {
				t.Errorf("Msg = %q, want it to contain %q", se.Msg, tt.wantMsg)
			}
		})
	}
}

func TestCompile_NestingLimit(t *testing.T) {
	src := strings.Repeat("(", maxDepth+10) + "1" + strings.Repeat(")", maxDepth+10)
	if _, err := Compile("deep", src); !errors.Is(err, ErrSyntax) {
		t.Errorf("Compile(deeply nested) error = %v, want ErrSyntax", err)
	}

	src = strings.Repeat("-", maxDepth+10) + "1"
	if _, err := Compile("deep", src); !errors.Is(err, ErrSyntax) {
		t.Errorf("Compile(long unary chain) error = %v, want ErrSyntax", err)
	}
}

func TestCompile_Precedence(t *testing.T) {
	tests := []struct {
		source string
		want   float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"2 ** 3 ** 2", 512},
		{"-2 ** 2", -4},
		{"2 ** -1", 0.5},
		{"7 // 2", 3},
		{"-7 // 2", -4},
		{"-7 % 3", 2},
		{"7 % -3", -2},
		{"10 - 4 - 3", 3},
		{"100 / 10 / 5", 2},
		{"1e3 + .5", 1000.5},
		{"0x10", 16},
		{"+3", 3},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got := mustEval(t, tt.source, nil)
			f, ok := got.Float()
			if !ok {
				t.Fatalf("result kind = %s, want number", got.Kind())
			}
			if f != tt.want {
				t.Errorf("%s = %v, want %v", tt.source, f, tt.want)
			}
		})
	}
}

func TestExpr_OuterCall(t *testing.T) {
	tests := []struct {
		source string
		want   string
		ok     bool
	}{
		{"DevDouble(x + 1)", "DevDouble", true},
		{"DevVarDoubleArray([1, 2])", "DevVarDoubleArray", true},
		{"np.mean(x)", "", false},
		{"DevDouble(x) + 1", "", false},
		{"x", "", false},
	}
	for _, tt := range tests {
		expr, err := Parse(tt.source)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tt.source, err)
		}
		got, ok := expr.OuterCall()
		if got != tt.want || ok != tt.ok {
			t.Errorf("OuterCall(%q) = %q, %v; want %q, %v", tt.source, got, ok, tt.want, tt.ok)
		}
	}
}

func mustEval(t *testing.T, source string, env Env) Value {
	t.Helper()
	if env == nil {
		env = MapEnv{}
	}
	v, err := Evaluate(context.Background(), "test", source, env)
	if err != nil {
		t.Fatalf("Evaluate(%q) error = %v", source, err)
	}
	return v
}
