package protocol

import "errors"

var (
	// ErrUnknownCommand is returned when a command has no code or learned timings.
	ErrUnknownCommand = errors.New("protocol: unknown command")

	// ErrMalformedConfig is returned when a device record lacks something the
	// encoder needs, such as a Kenwood pin.
	ErrMalformedConfig = errors.New("protocol: malformed device config")

	// ErrSetupUnsupported is returned for protocols that are configured by
	// writing the device record rather than by learning.
	ErrSetupUnsupported = errors.New("protocol requires explicit setup, not learning")

	// ErrTooManyRepetitions is returned for a repetition override above
	// MaxRepetitions.
	ErrTooManyRepetitions = errors.New("protocol: too many repetitions")
)
