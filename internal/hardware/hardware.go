package hardware

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmptySignal is returned when asked to transmit no durations.
	ErrEmptySignal = errors.New("hardware: empty signal")

	// ErrCaptureEmpty is returned when a capture ends with too few edges to be a code.
	ErrCaptureEmpty = errors.New("hardware: capture empty")

	// ErrCaptureTimeout is returned when nothing was received within the capture window.
	ErrCaptureTimeout = errors.New("hardware: capture timed out")

	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("hardware: handle closed")
)

// Transmitter emits a modulated pulse train at a fixed carrier.
// Durations are microseconds, alternating mark and space, starting with a mark.
type Transmitter interface {
	Carrier() int
	Transmit(durations []uint32) error
	Close() error
}

// TransmitterFactory opens a transmitter bound to carrierHz.
type TransmitterFactory func(carrierHz int) (Transmitter, error)

// OutputLine is a single GPIO line requested as an output.
type OutputLine interface {
	SetValue(value int) error
	Close() error
}

// LineRequester hands out output lines by offset.
type LineRequester interface {
	RequestOutput(offset int, initial int) (OutputLine, error)
}

// Indicator is the status LED. Methods never fail; a missing LED is a no-op.
type Indicator interface {
	On()
	Off()
	Blink(times int, period time.Duration)
}

// Capturer records one raw IR code as mark/space microseconds.
type Capturer interface {
	Capture(ctx context.Context) ([]uint32, error)
}

// PinStep drives one line to Level and then holds for Hold before the next step.
type PinStep struct {
	Pin   int
	Level int
	Hold  time.Duration
}

// TotalDuration sums the holds of a step sequence.
func TotalDuration(steps []PinStep) time.Duration {
	var total time.Duration
	for _, s := range steps {
		total += s.Hold
	}
	return total
}
