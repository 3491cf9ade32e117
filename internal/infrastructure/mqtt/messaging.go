package mqtt

import (
	"encoding/json"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// Publish sends payload and waits for the broker. Retain only state.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.client.Publish(topic, qos, retained, payload), operationTimeout, ErrPublishFailed)
}

// PublishJSON publishes v as JSON at the configured QoS. Used for display
// state and events.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %T: %w", ErrPublishFailed, v, err)
	}
	return c.Publish(topic, payload, byte(c.cfg.QoS), retained)
}

// Subscribe routes messages on topic (wildcards allowed) to handler. The
// route is kept only if the broker accepts it.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.routes[topic] = route{qos: qos, handler: handler}
	c.mu.Unlock()

	err := await(c.client.Subscribe(topic, qos, c.dispatch(handler)), operationTimeout, ErrSubscribeFailed)
	if err != nil {
		c.mu.Lock()
		delete(c.routes, topic)
		c.mu.Unlock()
	}
	return err
}

// Unsubscribe drops the route for topic. Messages already queued by paho
// may still be delivered.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	delete(c.routes, topic)
	c.mu.Unlock()

	return await(c.client.Unsubscribe(topic), operationTimeout, ErrUnsubscribeFailed)
}

// HasSubscription reports whether exactly topic has a route.
func (c *Client) HasSubscription(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.routes[topic]
	return ok
}

func (c *Client) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.routes)
}

// dispatch adapts handler to paho. Oversized payloads are dropped before
// the handler sees them and a panicking handler is logged, not fatal.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		topic, payload := msg.Topic(), msg.Payload()
		defer func() {
			if p := recover(); p != nil {
				c.log().Error("mqtt handler panic", "topic", topic, "panic", p)
			}
		}()

		if len(payload) > MaxPayloadSize {
			c.log().Warn("mqtt payload dropped", "topic", topic, "size", len(payload))
			return
		}
		if err := handler(topic, payload); err != nil {
			c.log().Warn("mqtt message rejected", "topic", topic, "error", err)
		}
	}
}
