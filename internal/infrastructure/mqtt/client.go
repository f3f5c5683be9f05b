package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/attribute-processor/internal/infrastructure/config"
)

// Client is the connection of one device to the processor bus.
//
// Besides publishing and routing requests it owns the device's presence
// on attrproc/device/{device}/status: the broker publishes the offline
// will when the connection drops, and the client republishes the device
// as online, with its last reported state, after every (re)connect.
//
// Thread Safety: all methods are safe for concurrent use. Routes are
// restored on reconnection.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	device string
	qos    byte

	mu        sync.RWMutex
	connected bool
	routes    []route
	state     string
	status    string

	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is the logging the client needs. *logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one message of a route. Handlers run on paho's
// goroutines; a returned error is logged and the message is dropped.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker for device.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - device: the device name carried on the presence topic and payload
//
// Returns:
//   - *Client: connected client
//   - error: ErrConnectionFailed when the broker does not answer in time
func Connect(cfg config.MQTTConfig, device string) (*Client, error) {
	c := &Client{cfg: cfg, device: device, qos: byte(cfg.QoS)}

	opts := buildClientOptions(cfg)
	will := c.presence(false, reasonConnectionLost)
	opts.SetWill(Topics{}.DeviceStatus(device), string(will), c.qos, true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.getLogger().Warn("MQTT reconnecting", "device", device)
	})

	c.client = pahomqtt.NewClient(opts)
	if err := wait(c.client.Connect(), ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The connect handler runs asynchronously; mark the client usable now
	// so Start can subscribe straight away.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return c, nil
}

// handleConnect restores the routes and announces the device.
func (c *Client) handleConnect() {
	c.mu.Lock()
	c.connected = true
	routes := append([]route(nil), c.routes...)
	callback := c.onConnect
	c.mu.Unlock()

	for _, r := range routes {
		if err := wait(c.client.Subscribe(r.topic, c.qos, c.wrapHandler(r.handler)), ErrSubscribeFailed); err != nil {
			c.getLogger().Error("restoring MQTT route failed", "topic", r.topic, "error", err)
		}
	}
	c.client.Publish(Topics{}.DeviceStatus(c.device), c.qos, true, c.presence(true, ""))

	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	c.connected = false
	callback := c.onDisconnect
	c.mu.Unlock()

	if callback != nil {
		callback(err)
	}
}

// Close announces a graceful shutdown with the last reported state and
// disconnects. Closing a client that never connected is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		token := c.client.Publish(Topics{}.DeviceStatus(c.device), c.qos, true, c.presence(false, reasonShutdown))
		token.WaitTimeout(operationTimeout)
	}
	c.client.Disconnect(disconnectQuiesce)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

// HealthCheck reports ErrNotConnected while the bus is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback run after every (re)connect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for handler failures and reconnects.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// wrapHandler adapts a MessageHandler to paho, logging errors and
// recovering panics so one bad message cannot stop the device.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.getLogger().Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.getLogger().Warn("MQTT message rejected", "topic", msg.Topic(), "error", err)
		}
	}
}

// wait blocks on token for at most operationTimeout and wraps failures
// in sentinel.
func wait(token pahomqtt.Token, sentinel error) error {
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, operationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
