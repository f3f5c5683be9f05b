package processor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/attribute-processor/internal/formula"
	"github.com/nerrad567/attribute-processor/internal/quality"
)

// ─── Test doubles ──────────────────────────────────────────────────

type mockHost struct {
	mu      sync.Mutex
	attrs   map[string]formula.Value
	invoked []string
}

func (h *mockHost) DeviceName() string { return "lab/attr/proc" }

func (h *mockHost) CommandNames() []string { return []string{"Reset"} }

func (h *mockHost) InvokeCommand(_ context.Context, name string, _ []formula.Value) (formula.Value, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invoked = append(h.invoked, name)
	return formula.Null(), nil
}

func (h *mockHost) ReadSelfAttribute(_ context.Context, name string) (formula.Value, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.attrs[name]
	if !ok {
		return formula.Value{}, errors.New("no attribute " + name)
	}
	return v, nil
}

func (h *mockHost) set(name string, v formula.Value) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attrs[name] = v
}

func (h *mockHost) drop(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.attrs, name)
}

type memStore struct {
	mu   sync.Mutex
	data map[string]EvaluatedValue
}

func (s *memStore) Get(key string, dst any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if ok {
		*dst.(*EvaluatedValue) = v
	}
	return ok, nil
}

func (s *memStore) Put(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = v.(EvaluatedValue)
	return nil
}

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, props Properties, host *mockHost) *Engine {
	t.Helper()
	deps := Deps{Clock: func() time.Time { return fixedTime }}
	if host != nil {
		deps.Accessor = host
	}
	e := NewEngine(deps)
	if _, err := e.Configure(props); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	return e
}

func valueByName(t *testing.T, c Cycle, name string) EvaluatedValue {
	t.Helper()
	for _, v := range c.Values {
		if v.Name == name {
			return v
		}
	}
	t.Fatalf("cycle has no value for %s", name)
	return EvaluatedValue{}
}

// ─── State derivation ──────────────────────────────────────────────

func TestEngine_StateFromAttribute(t *testing.T) {
	tests := []struct {
		t1   string
		want string
	}{
		{"80", "ALARM"},
		{"10", "OK"},
	}
	for _, tt := range tests {
		t.Run("T1="+tt.t1, func(t *testing.T) {
			e := newTestEngine(t, Properties{
				DynamicAttributes: []string{"T1=" + tt.t1},
				DynamicStates:     []string{"ALARM=Attr(T1)>70", "OK=1"},
			}, nil)

			c, err := e.ReadAll(context.Background())
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if c.State != tt.want {
				t.Errorf("State = %s, want %s", c.State, tt.want)
			}
			if state, _ := e.State(); state != tt.want {
				t.Errorf("State() = %s, want %s", state, tt.want)
			}
		})
	}
}

func TestEngine_StateFromHostAttribute(t *testing.T) {
	host := &mockHost{attrs: map[string]formula.Value{"Temperature": formula.Number(80)}}
	e := newTestEngine(t, Properties{
		DynamicStates: []string{"alarm=Attr('Temperature') > 70", "ok=True"},
	}, host)
	ctx := context.Background()

	c, err := e.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if c.State != "ALARM" || !c.StateChanged {
		t.Errorf("first cycle: State = %s changed = %v, want ALARM true", c.State, c.StateChanged)
	}

	host.set("Temperature", formula.Number(20))
	c, _ = e.ReadAll(ctx)
	if c.State != "OK" || !c.StateChanged {
		t.Errorf("second cycle: State = %s changed = %v, want OK true", c.State, c.StateChanged)
	}

	c, _ = e.ReadAll(ctx)
	if c.StateChanged {
		t.Error("third cycle reported a state change")
	}
}

func TestEngine_NoStateMatchedKeepsPrevious(t *testing.T) {
	host := &mockHost{attrs: map[string]formula.Value{"Level": formula.Number(5)}}
	e := newTestEngine(t, Properties{
		DynamicStates: []string{"HIGH=Attr('Level') > 3"},
	}, host)
	ctx := context.Background()

	if c, _ := e.ReadAll(ctx); c.State != "HIGH" {
		t.Fatalf("State = %s, want HIGH", c.State)
	}

	host.set("Level", formula.Number(1))
	c, err := e.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if c.State != "HIGH" {
		t.Errorf("State = %s, want HIGH kept", c.State)
	}
	if len(c.Warnings) != 1 || !strings.Contains(c.Warnings[0], "No state formula matched") {
		t.Errorf("Warnings = %q, want one no-match warning", c.Warnings)
	}
}

func TestEngine_AllStatesFailingKeepsPrevious(t *testing.T) {
	host := &mockHost{attrs: map[string]formula.Value{"Level": formula.Number(5)}}
	e := newTestEngine(t, Properties{
		DynamicStates: []string{"HIGH=Attr('Level') > 3", "BROKEN=1/0"},
	}, host)
	ctx := context.Background()

	if c, _ := e.ReadAll(ctx); c.State != "HIGH" {
		t.Fatalf("State = %s, want HIGH", c.State)
	}

	host.drop("Level")
	c, err := e.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if c.State != "HIGH" || c.StateChanged {
		t.Errorf("State = %s changed = %v, want HIGH kept", c.State, c.StateChanged)
	}
	state, status := e.State()
	if state != "HIGH" || !strings.Contains(status, "No state formula matched") {
		t.Errorf("State() = %s %q, want HIGH with a no-match status", state, status)
	}
}

func TestEngine_VectorStateCondition(t *testing.T) {
	tests := []struct {
		states []string
		want   string
	}{
		{[]string{"ALARM=V > 70", "OK=1"}, "OK"},
		{[]string{"ALARM=any(V > 25)", "OK=1"}, "ALARM"},
		{[]string{"ALARM=all(V > 5)", "OK=1"}, "ALARM"},
		{[]string{"ALARM=not V", "OK=1"}, "OK"},
	}
	for _, tt := range tests {
		t.Run(tt.states[0], func(t *testing.T) {
			e := newTestEngine(t, Properties{
				DynamicAttributes: []string{"V=[10, 20, 30]"},
				DynamicStates:     tt.states,
			}, nil)

			c, err := e.ReadAll(context.Background())
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if c.State != tt.want {
				t.Errorf("State = %s, want %s", c.State, tt.want)
			}
		})
	}
}

func TestEngine_DefaultState(t *testing.T) {
	e := newTestEngine(t, Properties{
		DynamicStates: []string{"FAULT=0"},
		DefaultState:  "standby",
	}, nil)

	c, err := e.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if c.State != "STANDBY" {
		t.Errorf("State = %s, want STANDBY", c.State)
	}
}

func TestEngine_NoStatesMeansOn(t *testing.T) {
	e := newTestEngine(t, Properties{DynamicAttributes: []string{"x=1"}}, nil)
	if state, _ := e.State(); state != StateOn {
		t.Errorf("State() after Configure = %s, want ON", state)
	}
	c, _ := e.ReadAll(context.Background())
	if c.State != StateOn {
		t.Errorf("cycle State = %s, want ON", c.State)
	}
}

// ─── Attribute reads ───────────────────────────────────────────────

func TestEngine_MalformedFormulaSkipped(t *testing.T) {
	e := NewEngine(Deps{})
	report, err := e.Configure(Properties{
		DynamicAttributes: []string{"bad=(1+2", "good=2**3", "noequals", "1x=3"},
	})
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if report.Attributes != 1 {
		t.Errorf("Attributes = %d, want 1", report.Attributes)
	}
	if len(report.Skipped) != 3 {
		t.Fatalf("Skipped = %v, want 3 errors", report.Skipped)
	}
	for _, err := range report.Skipped {
		if !errors.Is(err, ErrMalformedFormula) {
			t.Errorf("skip error %v is not ErrMalformedFormula", err)
		}
	}
	var syn *formula.SyntaxError
	if !errors.As(report.Skipped[0], &syn) {
		t.Errorf("first skip error %v does not wrap a SyntaxError", report.Skipped[0])
	}

	v, err := e.ReadAttribute(context.Background(), "good")
	if err != nil {
		t.Fatalf("ReadAttribute() error = %v", err)
	}
	if v.Value != 8.0 || v.Quality != quality.Valid {
		t.Errorf("good = %v (%v), want 8 VALID", v.Value, v.Quality)
	}
}

func TestEngine_ReadAttributeNotFound(t *testing.T) {
	e := newTestEngine(t, Properties{DynamicAttributes: []string{"a=1"}}, nil)
	_, err := e.ReadAttribute(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Errorf("error = %v, want ErrAttributeNotFound", err)
	}
}

func TestEngine_NotConfigured(t *testing.T) {
	e := NewEngine(Deps{})
	if _, err := e.ReadAll(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("ReadAll() error = %v, want ErrNotConfigured", err)
	}
	if _, err := e.ReadAttribute(context.Background(), "a"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("ReadAttribute() error = %v, want ErrNotConfigured", err)
	}
}

func TestEngine_AttributesReferenceEachOther(t *testing.T) {
	e := newTestEngine(t, Properties{
		DynamicAttributes: []string{
			"total=a + b",
			"a=2",
			"b=Attr('a') * 10",
			"wave=linspace(0, 1, 5)",
			"label='beam ' + str(total)",
		},
	}, nil)

	c, err := e.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	got := map[string]any{}
	for _, v := range c.Values {
		got[v.Name] = v.Value
	}
	want := map[string]any{
		"total": 22.0,
		"a":     2.0,
		"b":     20.0,
		"wave":  []float64{0, 0.25, 0.5, 0.75, 1},
		"label": "beam 22",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	var order []string
	for _, v := range c.Values {
		order = append(order, v.Name)
	}
	if diff := cmp.Diff([]string{"total", "a", "b", "wave", "label"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_CircularReference(t *testing.T) {
	e := newTestEngine(t, Properties{
		DynamicAttributes: []string{"a=b + 1", "b=Attr('a') * 2", "c=5"},
	}, nil)

	c, err := e.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	for _, name := range []string{"a", "b"} {
		v := valueByName(t, c, name)
		if v.Quality != quality.Invalid {
			t.Errorf("%s quality = %v, want INVALID", name, v.Quality)
		}
		if !strings.Contains(v.Error, "circular") {
			t.Errorf("%s error = %q, want a circular reference", name, v.Error)
		}
	}
	if v := valueByName(t, c, "c"); v.Value != 5.0 {
		t.Errorf("c = %v, want 5", v.Value)
	}
}

func TestEngine_DeclaredScalarRejectsVector(t *testing.T) {
	e := newTestEngine(t, Properties{
		DynamicAttributes: []string{"s=DevDouble([1, 2])", "v=DevVarDoubleArray([1, 2])", "m=math"},
	}, nil)
	ctx := context.Background()

	for name, wantErr := range map[string]bool{"s": true, "v": false, "m": true} {
		v, err := e.ReadAttribute(ctx, name)
		if err != nil {
			t.Fatalf("ReadAttribute(%s) error = %v", name, err)
		}
		if (v.Error != "") != wantErr {
			t.Errorf("%s error = %q, want error %v", name, v.Error, wantErr)
		}
	}

	infos := e.Attributes()
	if infos[0].Type != TypeScalar || infos[1].Type != TypeVector || infos[2].Type != TypeAuto {
		t.Errorf("types = %v %v %v, want scalar vector auto", infos[0].Type, infos[1].Type, infos[2].Type)
	}
}

func TestEngine_LastKnownValue(t *testing.T) {
	host := &mockHost{attrs: map[string]formula.Value{"Raw": formula.Number(4)}}
	store := &memStore{data: map[string]EvaluatedValue{}}
	e := NewEngine(Deps{Accessor: host, Store: store, Clock: func() time.Time { return fixedTime }})
	if _, err := e.Configure(Properties{DynamicAttributes: []string{"scaled=Attr('Raw') * 2"}}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	ctx := context.Background()

	v, _ := e.ReadAttribute(ctx, "scaled")
	if v.Value != 8.0 || v.Stale {
		t.Fatalf("scaled = %v stale=%v, want 8 fresh", v.Value, v.Stale)
	}

	host.drop("Raw")
	v, _ = e.ReadAttribute(ctx, "scaled")
	if v.Quality != quality.Invalid || !v.Stale || v.Value != 8.0 {
		t.Errorf("after failure = %+v, want INVALID stale 8", v)
	}
	if v.Error == "" {
		t.Error("failure has no error text")
	}

	// A fresh engine sharing the store still has the reading.
	e2 := NewEngine(Deps{Accessor: host, Store: store})
	if _, err := e2.Configure(Properties{DynamicAttributes: []string{"scaled=Attr('Raw') * 2"}}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	v, _ = e2.ReadAttribute(ctx, "scaled")
	if !v.Stale || v.Value != 8.0 {
		t.Errorf("restarted engine = %+v, want stale 8", v)
	}
}

func TestEngine_PeakFitQuality(t *testing.T) {
	e := newTestEngine(t, Properties{
		DynamicAttributes: []string{
			"spectrum=GaussPeak(arange(0, 100, 1), 50, 100, 10, 0)",
			"fit=PEAKFIT(spectrum)",
			"failed=PEAKFIT(zeros(32))",
			"mixed=spectrum[0] + failed[0]",
		},
	}, nil)

	c, err := e.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	tests := map[string]quality.Quality{
		"spectrum": quality.Valid,
		"fit":      quality.Valid,
		"failed":   quality.Invalid,
		"mixed":    quality.Invalid,
	}
	for name, want := range tests {
		v := valueByName(t, c, name)
		if v.Error != "" {
			t.Errorf("%s error = %s", name, v.Error)
		}
		if v.Quality != want {
			t.Errorf("%s quality = %v, want %v", name, v.Quality, want)
		}
	}
}

func TestEngine_CommandsAndSelf(t *testing.T) {
	host := &mockHost{attrs: map[string]formula.Value{}}
	e := newTestEngine(t, Properties{
		DynamicAttributes: []string{"who=self.name", "kick=Cmd('Reset')"},
	}, host)

	c, _ := e.ReadAll(context.Background())
	if v := valueByName(t, c, "who"); v.Value != "lab/attr/proc" {
		t.Errorf("who = %v, want lab/attr/proc", v.Value)
	}
	if diff := cmp.Diff([]string{"Reset"}, host.invoked); diff != "" {
		t.Errorf("invoked mismatch (-want +got):\n%s", diff)
	}
}

// ─── Configuration ─────────────────────────────────────────────────

func TestEngine_ReconfigureSwapsFormulas(t *testing.T) {
	e := newTestEngine(t, Properties{DynamicAttributes: []string{"a=1", "b=2"}}, nil)
	ctx := context.Background()
	if _, err := e.ReadAll(ctx); err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	if _, err := e.Configure(Properties{
		DynamicAttributes: []string{"a=q(10)"},
		ExtraModules:      []string{"stats.median as q"},
	}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if _, err := e.ReadAttribute(ctx, "b"); !IsNotFound(err) {
		t.Errorf("b after reload: error = %v, want not found", err)
	}
	if v, _ := e.ReadAttribute(ctx, "a"); v.Value != 10.0 {
		t.Errorf("a = %v (%s), want 10", v.Value, v.Error)
	}

	if _, err := e.Configure(Properties{
		DynamicAttributes: []string{"a=q([1, 9, 5])"},
		ExtraModules:      []string{"stats.median as q"},
	}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	v, _ := e.ReadAttribute(ctx, "a")
	if v.Value != 5.0 {
		t.Errorf("a = %v (%s), want 5", v.Value, v.Error)
	}
}

func TestEngine_InvalidDefaultStateKeepsConfiguration(t *testing.T) {
	e := newTestEngine(t, Properties{DynamicAttributes: []string{"a=1"}}, nil)

	_, err := e.Configure(Properties{DynamicAttributes: []string{"z=2"}, DefaultState: "not a state"})
	if err == nil {
		t.Fatal("Configure() error = nil, want invalid default state")
	}
	if _, err := e.ReadAttribute(context.Background(), "a"); err != nil {
		t.Errorf("old configuration lost: %v", err)
	}
}

func TestEngine_ForbiddenModuleReported(t *testing.T) {
	e := NewEngine(Deps{})
	report, err := e.Configure(Properties{
		DynamicAttributes: []string{"a=1"},
		ExtraModules:      []string{"os.system"},
	})
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if len(report.Skipped) != 1 {
		t.Errorf("Skipped = %v, want 1", report.Skipped)
	}
	if v, _ := e.ReadAttribute(context.Background(), "a"); v.Value != 1.0 {
		t.Errorf("a = %v, want 1", v.Value)
	}
}

func TestEngine_Evaluate(t *testing.T) {
	e := newTestEngine(t, Properties{DynamicAttributes: []string{"a=21"}}, nil)
	ctx := context.Background()

	v, err := e.Evaluate(ctx, "a * 2")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if f, _ := v.Float(); f != 42 {
		t.Errorf("Evaluate() = %v, want 42", v)
	}

	if _, err := e.Evaluate(ctx, "a *"); !errors.Is(err, ErrMalformedFormula) {
		t.Errorf("Evaluate(bad) error = %v, want ErrMalformedFormula", err)
	}
	if len(e.LastValues()) != 0 {
		t.Error("Evaluate recorded values")
	}
}

func TestEngine_ConcurrentReads(t *testing.T) {
	e := newTestEngine(t, Properties{
		DynamicAttributes: []string{"a=np.sum(arange(0, 10, 1))", "b=a / 5"},
		DynamicStates:     []string{"BUSY=b > 1"},
	}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := e.ReadAll(ctx); err != nil {
					t.Errorf("ReadAll() error = %v", err)
					return
				}
				if _, err := e.ReadAttribute(ctx, "b"); err != nil {
					t.Errorf("ReadAttribute() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if state, _ := e.State(); state != "BUSY" {
		t.Errorf("State() = %s, want BUSY", state)
	}
}
