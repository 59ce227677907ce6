package timer

import "errors"

var (
	// ErrTimerNotFound is returned when a timer ID does not exist.
	ErrTimerNotFound = errors.New("timer: not found")

	// ErrTimerExists is returned when creating a timer with an ID already in use.
	ErrTimerExists = errors.New("timer: already exists")

	// ErrInvalidTimer is returned when timer validation fails.
	ErrInvalidTimer = errors.New("timer: invalid")
)
