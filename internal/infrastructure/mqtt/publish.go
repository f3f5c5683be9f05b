package mqtt

import (
	"encoding/json"
	"fmt"
)

// Publish sends payload on topic at the configured QoS. Attribute values
// and state are retained so late subscribers see the current reading;
// request responses are not.
//
// Returns:
//   - error: ErrInvalidTopic, ErrPayloadTooLarge, ErrNotConnected or
//     ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes on %s, limit %d", ErrPayloadTooLarge, len(payload), topic, maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return wait(c.client.Publish(topic, c.qos, retained, payload), ErrPublishFailed)
}

// PublishJSON encodes v and publishes it.
//
//	err := client.PublishJSON(mqtt.Topics{}.DeviceState("lab/attr/proc"), payload, true)
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrPublishFailed, topic, err)
	}
	return c.Publish(topic, payload, retained)
}
