package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/attribute-processor/internal/infrastructure/config"
)

const (
	// operationTimeout bounds connect, publish and subscribe round trips.
	operationTimeout = 10 * time.Second

	// disconnectQuiesce is the time in milliseconds left for pending work
	// on Close.
	disconnectQuiesce = 1000

	keepAlive = 60 * time.Second

	// maxPayloadSize caps one message. Waveform attributes are the largest
	// payloads the device publishes.
	maxPayloadSize = 1 << 20
)

// buildClientOptions maps the bus configuration onto paho options: broker
// URL (tcp or ssl), client ID and credentials, and reconnect backoff. The
// session is clean because retained values carry the device output.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(operationTimeout)
	opts.SetKeepAlive(keepAlive)
	return opts
}
