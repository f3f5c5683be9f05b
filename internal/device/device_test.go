package device

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/attribute-processor/internal/formula"
	"github.com/nerrad567/attribute-processor/internal/infrastructure/config"
	"github.com/nerrad567/attribute-processor/internal/infrastructure/mqtt"
	"github.com/nerrad567/attribute-processor/internal/processor"
	"github.com/nerrad567/attribute-processor/internal/property"
)

const testDevice = "lab/attr/proc"

// ─── Test doubles ───────────────────────────────────────────────────

type publishedMsg struct {
	topic    string
	payload  []byte
	retained bool
}

type mockBus struct {
	mu       sync.Mutex
	msgs     []publishedMsg
	handlers map[string]mqtt.MessageHandler
	reported []string
}

func newMockBus() *mockBus {
	return &mockBus{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *mockBus) PublishJSON(topic string, v any, retained bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, publishedMsg{topic: topic, payload: data, retained: retained})
	return nil
}

func (b *mockBus) Subscribe(topic string, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *mockBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[topic]; !ok {
		return errors.New("not subscribed: " + topic)
	}
	delete(b.handlers, topic)
	return nil
}

func (b *mockBus) ReportState(state, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reported = append(b.reported, state)
}

// on returns the messages published on topic.
func (b *mockBus) on(topic string) []publishedMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publishedMsg
	for _, m := range b.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type historyWrite struct {
	attribute string
	value     any
	quality   string
}

type mockHistory struct {
	mu     sync.Mutex
	writes []historyWrite
	states []string
}

func (h *mockHistory) WriteReading(v processor.EvaluatedValue) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes = append(h.writes, historyWrite{v.Name, v.Value, v.Quality.String()})
}

func (h *mockHistory) WriteState(state, source string, _ time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, state+"/"+source)
}

type memStateHistory struct {
	mu      sync.Mutex
	entries []StateHistoryEntry
}

func (m *memStateHistory) RecordStateChange(_ context.Context, device, state, status, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, StateHistoryEntry{
		ID: int64(len(m.entries) + 1), Device: device, State: state, Status: status, Source: source,
	})
	return nil
}

func (m *memStateHistory) GetHistory(_ context.Context, _ string, limit int) ([]StateHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StateHistoryEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *memStateHistory) PruneHistory(context.Context, time.Duration) (int64, error) { return 0, nil }

func (m *memStateHistory) states() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.State + "/" + e.Source
	}
	return out
}

type memRepo struct {
	mu      sync.Mutex
	props   map[string]processor.Properties
	reloads []property.ReloadRecord
}

func newMemRepo() *memRepo {
	return &memRepo{props: make(map[string]processor.Properties)}
}

func (r *memRepo) Load(_ context.Context, device string) (processor.Properties, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.props[device]
	return p, ok, nil
}

func (r *memRepo) Save(_ context.Context, device string, props processor.Properties) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.props[device] = props
	return nil
}

func (r *memRepo) Clear(_ context.Context, device string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.props, device)
	return nil
}

func (r *memRepo) RecordReload(_ context.Context, rec property.ReloadRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloads = append(r.reloads, rec)
	return nil
}

func (r *memRepo) ReloadHistory(_ context.Context, _ string, limit int) ([]property.ReloadRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []property.ReloadRecord
	for i := len(r.reloads) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.reloads[i])
	}
	return out, nil
}

type countingBroadcaster struct {
	mu     sync.Mutex
	events map[string]int
}

func (b *countingBroadcaster) Broadcast(event string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events == nil {
		b.events = make(map[string]int)
	}
	b.events[event]++
}

func (b *countingBroadcaster) count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events[event]
}

type pruningStore struct {
	mu   sync.Mutex
	kept []string
}

func (s *pruningStore) Get(string, any) (bool, error) { return false, nil }
func (s *pruningStore) Put(string, any) error         { return nil }
func (s *pruningStore) Prune(keep []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kept = keep
	return 0, nil
}

// ─── Helpers ────────────────────────────────────────────────────────

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func testConfig() config.DeviceConfig {
	return config.DeviceConfig{
		Name:              testDevice,
		DynamicAttributes: []string{"double=Attr('Raw') * 2"},
		DynamicStates:     []string{"HIGH=double > 10", "LOW=1"},
		Inputs:            map[string]float64{"Raw": 4},
	}
}

// newTestDevice creates and reloads a device wired to fresh doubles.
func newTestDevice(t *testing.T, cfg config.DeviceConfig, deps Deps) *Device {
	t.Helper()
	deps.Config = cfg
	if deps.Processor.ReadTimeout == 0 {
		deps.Processor.ReadTimeout = 3
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock
	}
	d, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := d.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	return d
}

func decodeJSON(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("payload %s is not JSON: %v", data, err)
	}
	return out
}

// ─── Construction ───────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"empty name", Deps{Config: config.DeviceConfig{Name: "  "}}},
		{"bad schedule", Deps{Config: config.DeviceConfig{Name: testDevice}, Processor: config.ProcessorConfig{Schedule: "not cron"}}},
		{"bad input name", Deps{Config: config.DeviceConfig{Name: testDevice, Inputs: map[string]float64{"a/b": 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); !errors.Is(err, ErrInvalidDevice) {
				t.Errorf("New() error = %v, want ErrInvalidDevice", err)
			}
		})
	}
}

func TestReadCycle_BeforeReload(t *testing.T) {
	d, err := New(Deps{Config: testConfig()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := d.ReadCycle(context.Background()); !errors.Is(err, processor.ErrNotConfigured) {
		t.Errorf("ReadCycle() error = %v, want ErrNotConfigured", err)
	}
}

// ─── Reload ─────────────────────────────────────────────────────────

func TestReload_FileConfiguration(t *testing.T) {
	d := newTestDevice(t, testConfig(), Deps{})

	state, _ := d.State()
	if state != processor.StateUnknown {
		t.Errorf("state after reload = %q, want UNKNOWN", state)
	}
	if got := len(d.Attributes()); got != 1 {
		t.Errorf("Attributes() = %d, want 1", got)
	}
	if _, err := d.ReloadHistory(context.Background(), 10); !errors.Is(err, ErrNoPropertyStore) {
		t.Errorf("ReloadHistory() error = %v, want ErrNoPropertyStore", err)
	}
}

func TestReload_StoreOverridesFile(t *testing.T) {
	repo := newMemRepo()
	repo.props[testDevice] = processor.Properties{
		DynamicAttributes: []string{"a=1", "b=a + 1", "bad=(1"},
	}
	store := &pruningStore{}

	d := newTestDevice(t, testConfig(), Deps{Properties: repo, Store: store})

	if len(repo.reloads) != 1 {
		t.Fatalf("reloads recorded = %d, want 1", len(repo.reloads))
	}
	rec := repo.reloads[0]
	if rec.Source != SourceStore || rec.Attributes != 2 || rec.States != 0 || len(rec.Skipped) != 1 {
		t.Errorf("reload record = %+v", rec)
	}
	if rec.ID == "" || !rec.LoadedAt.Equal(fixedClock()) {
		t.Errorf("reload record id %q at %v", rec.ID, rec.LoadedAt)
	}
	if diff := cmp.Diff([]string{"a", "b"}, store.kept); diff != "" {
		t.Errorf("pruned store kept mismatch (-want +got):\n%s", diff)
	}

	state, _ := d.State()
	if state != processor.StateOn {
		t.Errorf("state = %q, want ON without state formulas", state)
	}
}

func TestSaveAndClearProperties(t *testing.T) {
	repo := newMemRepo()
	d := newTestDevice(t, testConfig(), Deps{Properties: repo})
	ctx := context.Background()

	_, err := d.SaveProperties(ctx, processor.Properties{DefaultState: "not a state"})
	if err == nil {
		t.Fatal("SaveProperties() with invalid default state error = nil")
	}
	if _, saved := repo.props[testDevice]; saved {
		t.Error("invalid properties were saved")
	}

	rec, err := d.SaveProperties(ctx, processor.Properties{
		DynamicAttributes: []string{"x=Attr('Raw') + 1"},
		DynamicStates:     []string{"BUSY=x > 100"},
		DefaultState:      "idle",
	})
	if err != nil {
		t.Fatalf("SaveProperties() error = %v", err)
	}
	if rec.Source != SourceStore {
		t.Errorf("source = %q, want store", rec.Source)
	}
	cycle, err := d.ReadCycle(ctx)
	if err != nil {
		t.Fatalf("ReadCycle() error = %v", err)
	}
	if cycle.State != "IDLE" {
		t.Errorf("state = %q, want IDLE from the default state", cycle.State)
	}

	rec, err = d.ClearProperties(ctx)
	if err != nil {
		t.Fatalf("ClearProperties() error = %v", err)
	}
	if rec.Source != SourceFile || rec.Attributes != 1 {
		t.Errorf("after clear record = %+v", rec)
	}

	history, err := d.ReloadHistory(ctx, 10)
	if err != nil {
		t.Fatalf("ReloadHistory() error = %v", err)
	}
	var sources []string
	for _, h := range history {
		sources = append(sources, h.Source)
	}
	if diff := cmp.Diff([]string{"file", "store", "file"}, sources); diff != "" {
		t.Errorf("reload sources mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveProperties_NoStore(t *testing.T) {
	d := newTestDevice(t, testConfig(), Deps{})
	if _, err := d.SaveProperties(context.Background(), processor.Properties{}); !errors.Is(err, ErrNoPropertyStore) {
		t.Errorf("SaveProperties() error = %v, want ErrNoPropertyStore", err)
	}
	if _, err := d.ClearProperties(context.Background()); !errors.Is(err, ErrNoPropertyStore) {
		t.Errorf("ClearProperties() error = %v, want ErrNoPropertyStore", err)
	}
}

// ─── Read cycles ────────────────────────────────────────────────────

func TestReadCycle_PublishesChanges(t *testing.T) {
	bus := newMockBus()
	hist := &mockHistory{}
	states := &memStateHistory{}
	live := &countingBroadcaster{}
	d := newTestDevice(t, testConfig(), Deps{Bus: bus, History: hist, StateHistory: states})
	d.SetBroadcaster(live)
	ctx := context.Background()

	topics := mqtt.Topics{}
	attrTopic := topics.DeviceAttribute(testDevice, "double")
	stateTopic := topics.DeviceState(testDevice)

	if got := len(bus.on(stateTopic)); got != 1 {
		t.Fatalf("state messages after reload = %d, want 1", got)
	}

	cycle, err := d.ReadCycle(ctx)
	if err != nil {
		t.Fatalf("ReadCycle() error = %v", err)
	}
	if cycle.State != "LOW" || !cycle.StateChanged {
		t.Errorf("cycle state = %q changed %v, want LOW changed", cycle.State, cycle.StateChanged)
	}
	msgs := bus.on(attrTopic)
	if len(msgs) != 1 || !msgs[0].retained {
		t.Fatalf("attribute messages = %+v, want one retained", msgs)
	}
	body := decodeJSON(t, msgs[0].payload)
	if body["value"] != 8.0 || body["quality"] != "VALID" {
		t.Errorf("attribute payload = %v", body)
	}

	// Unchanged reading is not republished but still recorded as history.
	if _, err := d.ReadCycle(ctx); err != nil {
		t.Fatalf("second ReadCycle() error = %v", err)
	}
	if got := len(bus.on(attrTopic)); got != 1 {
		t.Errorf("attribute messages after unchanged cycle = %d, want 1", got)
	}
	if got := len(bus.on(stateTopic)); got != 2 {
		t.Errorf("state messages after unchanged cycle = %d, want 2", got)
	}

	if err := d.SetInput("Raw", formula.Number(6)); err != nil {
		t.Fatalf("SetInput() error = %v", err)
	}
	cycle, err = d.ReadCycle(ctx)
	if err != nil {
		t.Fatalf("third ReadCycle() error = %v", err)
	}
	if cycle.State != "HIGH" {
		t.Errorf("state = %q, want HIGH", cycle.State)
	}
	if got := len(bus.on(attrTopic)); got != 2 {
		t.Errorf("attribute messages = %d, want 2", got)
	}
	state := decodeJSON(t, bus.on(stateTopic)[2].payload)
	if state["state"] != "HIGH" || state["device"] != testDevice || state["cycle_id"] != cycle.ID {
		t.Errorf("state payload = %v", state)
	}
	if diff := cmp.Diff([]string{"UNKNOWN", "LOW", "HIGH"}, bus.reported); diff != "" {
		t.Errorf("presence states mismatch (-want +got):\n%s", diff)
	}

	if len(hist.writes) != 3 {
		t.Errorf("history writes = %d, want 3", len(hist.writes))
	}
	if diff := cmp.Diff([]string{"UNKNOWN/reload", "LOW/cycle", "HIGH/cycle"}, states.states()); diff != "" {
		t.Errorf("state history mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"UNKNOWN/reload", "LOW/cycle", "HIGH/cycle"}, hist.states); diff != "" {
		t.Errorf("state points mismatch (-want +got):\n%s", diff)
	}
	if live.count(EventCycle) != 3 || live.count(EventInput) != 1 {
		t.Errorf("broadcast cycle=%d input=%d, want 3 and 1", live.count(EventCycle), live.count(EventInput))
	}

	recent, err := d.StateHistory(ctx, 1)
	if err != nil || len(recent) != 1 || recent[0].State != "HIGH" {
		t.Errorf("StateHistory(1) = %+v, %v", recent, err)
	}
}

func TestReadCycle_PublishUnchanged(t *testing.T) {
	bus := newMockBus()
	d := newTestDevice(t, testConfig(), Deps{Bus: bus, Processor: config.ProcessorConfig{PublishUnchanged: true}})

	for i := 0; i < 3; i++ {
		if _, err := d.ReadCycle(context.Background()); err != nil {
			t.Fatalf("ReadCycle() error = %v", err)
		}
	}
	if got := len(bus.on(mqtt.Topics{}.DeviceAttribute(testDevice, "double"))); got != 3 {
		t.Errorf("attribute messages = %d, want 3", got)
	}
}

func TestReadAttribute(t *testing.T) {
	bus := newMockBus()
	d := newTestDevice(t, testConfig(), Deps{Bus: bus})

	v, err := d.ReadAttribute(context.Background(), "double")
	if err != nil {
		t.Fatalf("ReadAttribute() error = %v", err)
	}
	if v.Value != 8.0 {
		t.Errorf("double = %v, want 8", v.Value)
	}
	if got := len(bus.on(mqtt.Topics{}.DeviceAttribute(testDevice, "double"))); got != 1 {
		t.Errorf("attribute messages = %d, want 1", got)
	}

	if _, err := d.ReadAttribute(context.Background(), "missing"); !processor.IsNotFound(err) {
		t.Errorf("ReadAttribute(missing) error = %v, want not found", err)
	}
}

// ─── Inputs and commands ────────────────────────────────────────────

func TestCommandsFromFormulas(t *testing.T) {
	cfg := config.DeviceConfig{
		Name: testDevice,
		DynamicAttributes: []string{
			"set=Cmd('SetInput', 'Gain', 3)",
			"gain=Attr('Gain')",
			"direct=SetInput('Offset', 0.5) + Attr('Offset')",
			"who=self.name",
			"st=Attr('State')",
		},
	}
	d := newTestDevice(t, cfg, Deps{})

	cycle, err := d.ReadCycle(context.Background())
	if err != nil {
		t.Fatalf("ReadCycle() error = %v", err)
	}
	got := make(map[string]any)
	for _, v := range cycle.Values {
		if v.Error != "" {
			t.Errorf("%s failed: %s", v.Name, v.Error)
		}
		got[v.Name] = v.Value
	}
	want := map[string]any{"set": 3.0, "gain": 3.0, "direct": 1.0, "who": testDevice, "st": "ON"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	if d.Inputs()["Gain"] != 3.0 {
		t.Errorf("Inputs()[Gain] = %v, want 3", d.Inputs()["Gain"])
	}
}

func TestInvokeCommand_Errors(t *testing.T) {
	d := newTestDevice(t, testConfig(), Deps{})
	ctx := context.Background()

	if _, err := d.InvokeCommand(ctx, "Reset", nil); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("InvokeCommand(Reset) error = %v, want ErrUnknownCommand", err)
	}
	if _, err := d.InvokeCommand(ctx, CommandSetInput, []formula.Value{formula.String("x")}); !errors.Is(err, formula.ErrType) {
		t.Errorf("SetInput with one arg error = %v, want ErrType", err)
	}
	if _, err := d.InvokeCommand(ctx, CommandSetInput, []formula.Value{formula.Number(1), formula.Number(1)}); !errors.Is(err, formula.ErrType) {
		t.Errorf("SetInput with numeric name error = %v, want ErrType", err)
	}
	if err := d.SetInput("m", formula.List([]formula.Value{formula.String("a")})); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("SetInput(list) error = %v, want ErrInvalidInput", err)
	}
	if _, err := d.ReadSelfAttribute(ctx, "Nope"); !errors.Is(err, ErrInputNotFound) {
		t.Errorf("ReadSelfAttribute(Nope) error = %v, want ErrInputNotFound", err)
	}
}

func TestEvaluate(t *testing.T) {
	d := newTestDevice(t, testConfig(), Deps{})

	v, err := d.Evaluate(context.Background(), "double + Attr('Raw')")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if f, ok := v.Float(); !ok || f != 12 {
		t.Errorf("Evaluate() = %v, want 12", v)
	}
}

// ─── Bus ────────────────────────────────────────────────────────────

func TestStart_Subscribes(t *testing.T) {
	bus := newMockBus()
	d := newTestDevice(t, testConfig(), Deps{Bus: bus})

	if err := d.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	topics := mqtt.Topics{}
	for _, topic := range []string{topics.AllDeviceInputs(testDevice), topics.AllDeviceRequests(testDevice)} {
		if _, ok := bus.handlers[topic]; !ok {
			t.Errorf("no subscription on %s", topic)
		}
	}

	if err := newTestDevice(t, testConfig(), Deps{}).Start(); err != nil {
		t.Errorf("Start() without bus error = %v", err)
	}
}

func TestStop_ReleasesTopics(t *testing.T) {
	bus := newMockBus()
	d := newTestDevice(t, testConfig(), Deps{Bus: bus})

	if err := d.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(bus.handlers) != 0 {
		t.Errorf("handlers after Stop = %v, want none", bus.handlers)
	}

	// A second Stop reports the topics that were not subscribed.
	if err := d.Stop(); err == nil {
		t.Error("second Stop() should report unknown topics")
	}
	if err := newTestDevice(t, testConfig(), Deps{}).Stop(); err != nil {
		t.Errorf("Stop() without bus error = %v", err)
	}
}

func TestHandleInput(t *testing.T) {
	d := newTestDevice(t, testConfig(), Deps{})
	topics := mqtt.Topics{}

	tests := []struct {
		name    string
		input   string
		payload string
		want    any
		wantErr error
	}{
		{"number", "Raw", "7.5", 7.5, nil},
		{"vector", "Spectrum", "[1, 2, 3]", []float64{1, 2, 3}, nil},
		{"bool", "Armed", "true", true, nil},
		{"quoted string", "Mode", `"auto"`, "auto", nil},
		{"bare string", "Label", "beam on", "beam on", nil},
		{"object", "Bad", `{"a": 1}`, nil, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.handleInput(topics.DeviceInput(testDevice, tt.input), []byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("handleInput() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("handleInput() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, d.Inputs()[tt.input]); diff != "" {
				t.Errorf("input mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if err := d.handleInput("attrproc/device/other/input/Raw", []byte("1")); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("foreign topic error = %v, want ErrInvalidInput", err)
	}
}

func TestHandleRequest(t *testing.T) {
	bus := newMockBus()
	d := newTestDevice(t, testConfig(), Deps{Bus: bus})
	topics := mqtt.Topics{}

	tests := []struct {
		name      string
		verb      string
		payload   string
		id        string
		wantOK    bool
		wantError string
	}{
		{"read attribute", mqtt.VerbRead, `{"id":"r1","attribute":"double"}`, "r1", true, ""},
		{"read cycle", mqtt.VerbRead, `{"id":"r2"}`, "r2", true, ""},
		{"reload", mqtt.VerbReload, `{"id":"r3"}`, "r3", true, ""},
		{"command", mqtt.VerbCommand, `{"id":"r4","command":"SetInput","args":["Gain",2.5]}`, "r4", true, ""},
		{"unknown command", mqtt.VerbCommand, `{"id":"r5","command":"Reset"}`, "r5", false, "unknown command"},
		{"missing attribute", mqtt.VerbRead, `{"id":"r6","attribute":"nope"}`, "r6", false, "not found"},
		{"unknown verb", "explode", `{"id":"r7"}`, "r7", false, "unknown verb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := d.handleRequest(topics.DeviceRequest(testDevice, tt.verb), []byte(tt.payload)); err != nil {
				t.Fatalf("handleRequest() error = %v", err)
			}
			msgs := bus.on(topics.DeviceResponse(testDevice, tt.id))
			if len(msgs) != 1 {
				t.Fatalf("responses = %d, want 1", len(msgs))
			}
			if msgs[0].retained {
				t.Error("response was retained")
			}
			resp := decodeJSON(t, msgs[0].payload)
			if resp["ok"] != tt.wantOK || resp["verb"] != tt.verb {
				t.Errorf("response = %v", resp)
			}
			if tt.wantError != "" {
				msg, _ := resp["error"].(string)
				if !strings.Contains(msg, tt.wantError) {
					t.Errorf("error = %q, want it to mention %q", msg, tt.wantError)
				}
			}
		})
	}

	if d.Inputs()["Gain"] != 2.5 {
		t.Errorf("Gain = %v, want 2.5", d.Inputs()["Gain"])
	}

	if err := d.handleRequest(topics.DeviceRequest(testDevice, mqtt.VerbRead), []byte("{")); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("malformed payload error = %v, want ErrInvalidRequest", err)
	}
	if err := d.handleRequest(topics.DeviceRequest(testDevice, mqtt.VerbRead), nil); err != nil {
		t.Errorf("empty payload error = %v", err)
	}
}

// ─── Scheduler ──────────────────────────────────────────────────────

func TestRun_Schedule(t *testing.T) {
	live := &countingBroadcaster{}
	d := newTestDevice(t, testConfig(), Deps{
		Processor: config.ProcessorConfig{Schedule: "* * * * * * *", ReadTimeout: 1},
		Clock:     time.Now,
	})
	d.SetBroadcaster(live)

	ctx, cancel := context.WithTimeout(context.Background(), 2200*time.Millisecond)
	defer cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if live.count(EventCycle) < 1 {
		t.Error("no scheduled cycle ran")
	}
}

func TestRun_NoSchedule(t *testing.T) {
	d := newTestDevice(t, testConfig(), Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
