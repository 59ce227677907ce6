package mqttbridge

import "errors"

var (
	// ErrInvalidMessage is returned for command payloads that cannot be decoded.
	ErrInvalidMessage = errors.New("mqttbridge: invalid message")

	// ErrInvalidTopic is returned for topics that do not name a device.
	ErrInvalidTopic = errors.New("mqttbridge: invalid command topic")

	// ErrOutboxFull is returned when a message is dropped because the outbox is full.
	ErrOutboxFull = errors.New("mqttbridge: outbox full")
)
