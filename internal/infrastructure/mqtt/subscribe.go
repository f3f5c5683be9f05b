package mqtt

import "fmt"

// route is a subscription the client restores after every reconnect.
type route struct {
	topic   string
	handler MessageHandler
}

// Subscribe routes messages on topic, which may use the + and #
// wildcards, to handler. Subscribing the same topic again replaces its
// handler.
//
//	err := client.Subscribe(mqtt.Topics{}.AllDeviceInputs("lab/a"), d.handleInput)
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: %s: nil handler", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := wait(c.client.Subscribe(topic, c.qos, c.wrapHandler(handler)), ErrSubscribeFailed); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.routes {
		if r.topic == topic {
			c.routes[i].handler = handler
			return nil
		}
	}
	c.routes = append(c.routes, route{topic: topic, handler: handler})
	return nil
}

// Unsubscribe drops the route for topic. While disconnected only the
// route is forgotten; the clean session discards the broker side.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	c.mu.Lock()
	for i, r := range c.routes {
		if r.topic == topic {
			c.routes = append(c.routes[:i], c.routes[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	if !c.IsConnected() {
		return nil
	}
	return wait(c.client.Unsubscribe(topic), ErrSubscribeFailed)
}
