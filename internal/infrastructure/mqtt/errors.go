package mqtt

import "errors"

var (
	// ErrNotConnected is returned while the broker link is down.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	ErrConnectionFailed  = errors.New("mqtt: cannot reach broker")
	ErrPublishFailed     = errors.New("mqtt: publish rejected")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe rejected")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe rejected")

	ErrInvalidTopic    = errors.New("mqtt: empty topic")
	ErrInvalidQoS      = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrPayloadTooLarge = errors.New("mqtt: payload exceeds limit")
)
