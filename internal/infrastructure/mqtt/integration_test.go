package mqtt

import (
	"net"
	"os"
	"strconv"
	"testing"
	"time"
)

// brokerAddress returns the broker from ATTRPROC_TEST_MQTT_BROKER
// (host:port) or skips the test when it is unset.
func brokerAddress(t *testing.T) (string, int) {
	t.Helper()
	addr := os.Getenv("ATTRPROC_TEST_MQTT_BROKER")
	if addr == "" {
		t.Skip("ATTRPROC_TEST_MQTT_BROKER not set")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("ATTRPROC_TEST_MQTT_BROKER = %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("bad port %q: %v", portStr, err)
	}
	return host, port
}

func TestIntegration_InputRoundtrip(t *testing.T) {
	host, port := brokerAddress(t)
	cfg := testConfig()
	cfg.Broker.Host, cfg.Broker.Port = host, port
	cfg.Broker.ClientID = "attrproc-it-" + strconv.FormatInt(time.Now().UnixNano(), 36)

	const dev = "it/attr/proc"
	client, err := Connect(cfg, dev)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	topics := Topics{}

	received := make(chan string, 1)
	err = client.Subscribe(topics.AllDeviceInputs(dev), func(topic string, payload []byte) error {
		name, ok := topics.ParseInput(dev, topic)
		if !ok {
			return nil
		}
		select {
		case received <- name + "=" + string(payload):
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := client.Publish(topics.DeviceInput(dev, "Raw"), []byte("8"), false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != "Raw=8" {
			t.Errorf("received %q, want Raw=8", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for input message")
	}

	if err := client.Unsubscribe(topics.AllDeviceInputs(dev)); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if len(client.routes) != 0 {
		t.Errorf("routes = %v, want none after Unsubscribe", client.routes)
	}
}
