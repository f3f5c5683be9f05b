package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/attribute-processor/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "attrproc-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

const testDevice = "lab/attr/proc"

// disconnectedClient is a Client that never dialled a broker.
func disconnectedClient() *Client {
	return &Client{cfg: testConfig(), device: testDevice, qos: 1}
}

// ─── Topics ─────────────────────────────────────────────────────────

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	const dev = "lab/attr/proc"

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"attribute", topics.DeviceAttribute(dev, "T1"), "attrproc/device/lab/attr/proc/attribute/T1"},
		{"state", topics.DeviceState(dev), "attrproc/device/lab/attr/proc/state"},
		{"input", topics.DeviceInput(dev, "Raw"), "attrproc/device/lab/attr/proc/input/Raw"},
		{"all inputs", topics.AllDeviceInputs(dev), "attrproc/device/lab/attr/proc/input/+"},
		{"request", topics.DeviceRequest(dev, VerbReload), "attrproc/device/lab/attr/proc/request/reload"},
		{"all requests", topics.AllDeviceRequests(dev), "attrproc/device/lab/attr/proc/request/+"},
		{"response", topics.DeviceResponse(dev, "r1"), "attrproc/device/lab/attr/proc/response/r1"},
		{"status", topics.DeviceStatus(dev), "attrproc/device/lab/attr/proc/status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopicParsers(t *testing.T) {
	topics := Topics{}
	const dev = "lab/attr/proc"

	tests := []struct {
		name   string
		parse  func(string, string) (string, bool)
		topic  string
		want   string
		wantOK bool
	}{
		{"input", topics.ParseInput, topics.DeviceInput(dev, "Raw"), "Raw", true},
		{"input of other device", topics.ParseInput, topics.DeviceInput("lab/other", "Raw"), "", false},
		{"nested input", topics.ParseInput, topics.DeviceInput(dev, "a/b"), "", false},
		{"empty input", topics.ParseInput, topics.DeviceInput(dev, ""), "", false},
		{"request", topics.ParseRequest, topics.DeviceRequest(dev, VerbRead), "read", true},
		{"request on input topic", topics.ParseRequest, topics.DeviceInput(dev, "read"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.parse(dev, tt.topic)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("parse(%q) = %q, %v, want %q, %v", tt.topic, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// ─── Presence ───────────────────────────────────────────────────────

func TestPresence(t *testing.T) {
	c := disconnectedClient()

	var will Presence
	if err := json.Unmarshal(c.presence(false, reasonConnectionLost), &will); err != nil {
		t.Fatalf("will is not JSON: %v", err)
	}
	if will.Device != testDevice || will.Online || will.State != "" || will.Reason != "connection_lost" {
		t.Errorf("will = %+v", will)
	}

	c.ReportState("ALARM", "ALARM selected by ALARM=T1 > 70")

	var online Presence
	if err := json.Unmarshal(c.presence(true, ""), &online); err != nil {
		t.Fatalf("presence is not JSON: %v", err)
	}
	want := Presence{Device: testDevice, Online: true, State: "ALARM", Status: "ALARM selected by ALARM=T1 > 70"}
	online.Timestamp = ""
	if online != want {
		t.Errorf("presence = %+v, want %+v", online, want)
	}
	if raw := string(c.presence(true, "")); strings.Contains(raw, "reason") {
		t.Errorf("online presence carries a reason: %s", raw)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "proc"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "attrproc-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "proc" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tls.VersionTLS12 {
		t.Error("TLS config not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("auto-reconnect and clean session should be enabled")
	}
}

// ─── Validation ─────────────────────────────────────────────────────

func TestPublishValidation(t *testing.T) {
	c := disconnectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		want    error
	}{
		{"empty topic", "", []byte("x"), ErrInvalidTopic},
		{"oversized", "a/b", make([]byte, maxPayloadSize+1), ErrPayloadTooLarge},
		{"disconnected", "a/b", []byte("x"), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishJSON(t *testing.T) {
	c := disconnectedClient()

	if err := c.PublishJSON("a/b", map[string]any{"x": func() {}}, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON(unencodable) error = %v, want ErrPublishFailed", err)
	}
	if err := c.PublishJSON("a/b", map[string]any{"x": 1}, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishJSON() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := disconnectedClient()
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(\"\") error = %v", err)
	}
	if err := c.Subscribe("a/b", nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v", err)
	}
	if err := c.Subscribe("a/b", handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) error = %v", err)
	}
	if len(c.routes) != 0 {
		t.Errorf("routes = %v, want failed subscriptions untracked", c.routes)
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
}

func TestUnsubscribeWhileDisconnected(t *testing.T) {
	c := disconnectedClient()
	handler := func(string, []byte) error { return nil }
	inputs, requests := Topics{}.AllDeviceInputs(testDevice), Topics{}.AllDeviceRequests(testDevice)
	c.routes = []route{{topic: inputs, handler: handler}, {topic: requests, handler: handler}}

	if err := c.Unsubscribe(inputs); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if len(c.routes) != 1 || c.routes[0].topic != requests {
		t.Errorf("routes = %v, want only the request route", c.routes)
	}
}

func TestCloseNeverConnected(t *testing.T) {
	if err := disconnectedClient().Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// ─── Handler wrapping ───────────────────────────────────────────────

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestWrapHandler(t *testing.T) {
	c := disconnectedClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	var gotTopic, gotPayload string
	ok := c.wrapHandler(func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, string(payload)
		return nil
	})
	ok(nil, fakeMessage{topic: "a/b", payload: []byte("42")})
	if gotTopic != "a/b" || gotPayload != "42" {
		t.Errorf("handler got %q %q", gotTopic, gotPayload)
	}

	c.wrapHandler(func(string, []byte) error { return errors.New("bad input") })(nil, fakeMessage{topic: "a/b"})
	c.wrapHandler(func(string, []byte) error { panic("boom") })(nil, fakeMessage{topic: "a/b"})

	// Without a logger failures are dropped silently.
	c.SetLogger(nil)
	c.wrapHandler(func(string, []byte) error { panic("boom") })(nil, fakeMessage{topic: "a/b"})

	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one handler error", logger.warns)
	}
	if len(logger.errs) != 1 {
		t.Errorf("errors = %v, want one recovered panic", logger.errs)
	}
}
