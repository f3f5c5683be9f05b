package processor

import (
	"errors"
	"testing"
)

func TestRegistry_RegisterAttribute(t *testing.T) {
	tests := []struct {
		decl     string
		wantName string
		wantSrc  string
		wantType DeclaredType
		wantErr  bool
	}{
		{decl: "T1 = 80", wantName: "T1", wantSrc: "80", wantType: TypeAuto},
		{decl: "eq=a == b", wantName: "eq", wantSrc: "a == b", wantType: TypeAuto},
		{decl: "d=DevDouble(1)", wantName: "d", wantSrc: "DevDouble(1)", wantType: TypeScalar},
		{decl: "w=DevVarFloatArray([1])", wantName: "w", wantSrc: "DevVarFloatArray([1])", wantType: TypeVector},
		{decl: "x=DevDouble(1) + 1", wantName: "x", wantSrc: "DevDouble(1) + 1", wantType: TypeAuto},
		{decl: "missing equals", wantErr: true},
		{decl: "empty=", wantErr: true},
		{decl: "=1", wantErr: true},
		{decl: "not=1", wantErr: true},
		{decl: "bad name=1", wantErr: true},
		{decl: "p=(1+2", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			attr, err := NewRegistry().RegisterAttribute(tt.decl)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedFormula) {
					t.Fatalf("error = %v, want ErrMalformedFormula", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("RegisterAttribute() error = %v", err)
			}
			if attr.Name != tt.wantName || attr.Source != tt.wantSrc || attr.Type != tt.wantType {
				t.Errorf("got %s=%s (%s), want %s=%s (%s)", attr.Name, attr.Source, attr.Type, tt.wantName, tt.wantSrc, tt.wantType)
			}
		})
	}
}

func TestRegistry_DuplicateAttribute(t *testing.T) {
	r := NewRegistry()
	if _, err := r.RegisterAttribute("a=1"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := r.RegisterAttribute("a=2"); !errors.Is(err, ErrMalformedFormula) {
		t.Errorf("duplicate error = %v, want ErrMalformedFormula", err)
	}
	if got := len(r.Attributes()); got != 1 {
		t.Errorf("Attributes() = %d, want 1", got)
	}
}

func TestRegistry_StatesKeepOrder(t *testing.T) {
	r := NewRegistry()
	for _, d := range []string{"alarm=x > 1", "OK=1", "ALARM=y"} {
		if _, err := r.RegisterState(d); err != nil {
			t.Fatalf("RegisterState(%q) error = %v", d, err)
		}
	}
	states := r.States()
	want := []string{"ALARM", "OK", "ALARM"}
	for i, sf := range states {
		if sf.State != want[i] || sf.Priority != i {
			t.Errorf("states[%d] = %s/%d, want %s/%d", i, sf.State, sf.Priority, want[i], i)
		}
	}

	if _, err := r.RegisterState("2BAD=1"); !errors.Is(err, ErrMalformedFormula) {
		t.Errorf("invalid state error = %v, want ErrMalformedFormula", err)
	}
}
