package queue

import "errors"

var (
	// ErrQueueFull is returned when the queue is at capacity. Nothing is added.
	ErrQueueFull = errors.New("queue: full")

	// ErrInvalidJob is returned for jobs without a device or command.
	ErrInvalidJob = errors.New("queue: invalid job")

	// ErrCountTooLarge is returned for a count above MaxCount.
	ErrCountTooLarge = errors.New("queue: count too large")
)
