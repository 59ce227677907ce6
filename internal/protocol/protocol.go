package protocol

import (
	"fmt"
	"slices"
	"time"

	"github.com/hifilink/hifilink/internal/device"
	"github.com/hifilink/hifilink/internal/hardware"
)

// Signal is what an encoder produces: either a PulseTrain or a PinSequence.
type Signal interface {
	// Duration is the on-air time of the whole signal.
	Duration() time.Duration
	isSignal()
}

// PulseTrain is a carrier-modulated mark/space sequence in µs, starting with a mark.
type PulseTrain struct {
	Carrier   int
	Durations []uint32
}

// Duration implements Signal.
func (p PulseTrain) Duration() time.Duration {
	var total time.Duration
	for _, d := range p.Durations {
		total += hardware.Micros(d)
	}
	return total
}

func (PulseTrain) isSignal() {}

// PinSequence is a list of direct GPIO level changes with busy-wait holds.
type PinSequence struct {
	Pins  []int
	Steps []hardware.PinStep
}

// Duration implements Signal.
func (p PinSequence) Duration() time.Duration {
	return hardware.TotalDuration(p.Steps)
}

func (PinSequence) isSignal() {}

// Bit is a protocol toggle bit, 0 or 1.
type Bit uint8

// Flip returns the other bit value.
func (b Bit) Flip() Bit { return b ^ 1 }

// MaxRepetitions bounds the frames emitted for one command.
const MaxRepetitions = device.MaxRepetitions

// Options carries per-request overrides.
type Options struct {
	// Repetitions overrides the protocol or device default. Values below one
	// are raised to one and values above MaxRepetitions are rejected by
	// Validate. Nil keeps the default.
	Repetitions *int
}

// WithRepetitions returns Options overriding the repetition count.
func WithRepetitions(n int) Options {
	return Options{Repetitions: &n}
}

// Validate rejects a repetition override above MaxRepetitions.
func (o Options) Validate() error {
	if o.Repetitions != nil && *o.Repetitions > MaxRepetitions {
		return fmt.Errorf("%w: %d exceeds %d", ErrTooManyRepetitions, *o.Repetitions, MaxRepetitions)
	}
	return nil
}

// Reps resolves the repetition count against def. The result never
// exceeds MaxRepetitions.
func (o Options) Reps(def int) int {
	if o.Repetitions == nil {
		return min(def, MaxRepetitions)
	}
	return min(max(1, *o.Repetitions), MaxRepetitions)
}

// Request is the input to an Encoder.
type Request struct {
	Device  *device.Device
	Command string
	Options Options
	Toggle  Bit
}

// Encoding is an encoder's output.
type Encoding struct {
	Signal      Signal
	Code        int
	Repetitions int
	UsesToggle  bool

	// Details are protocol-specific fields merged into the success response.
	Details map[string]any
}

// Encoder builds the signal for one protocol.
type Encoder interface {
	Protocol() device.Protocol

	// Carrier is the IR carrier in Hz for dev, or 0 for GPIO protocols.
	Carrier(dev *device.Device) int

	// Encode is pure; it never touches hardware or toggle state.
	Encode(req Request) (Encoding, error)
}

// Encoders is the closed set of encoders keyed by protocol.
type Encoders map[device.Protocol]Encoder

// DefaultEncoders returns every supported encoder. defaultFreq is the carrier
// used for learned IR devices without their own tx_freq.
func DefaultEncoders(defaultFreq int) Encoders {
	encoders := []Encoder{
		&LearnedIR{DefaultFreq: defaultFreq},
		&SAA3004{},
		&KenwoodXS8{},
	}
	m := make(Encoders, len(encoders))
	for _, e := range encoders {
		m[e.Protocol()] = e
	}
	return m
}

// For returns the encoder for p.
func (e Encoders) For(p device.Protocol) (Encoder, bool) {
	enc, ok := e[p]
	return enc, ok
}

// Protocols lists the registered protocols in a stable order.
func (e Encoders) Protocols() []device.Protocol {
	out := make([]device.Protocol, 0, len(e))
	for p := range e {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// SetupUnsupported is the error returned when learning is requested for an
// encoded protocol.
func SetupUnsupported(p device.Protocol) error {
	return fmt.Errorf("%w: %s is encoded; configure it by updating the device", ErrSetupUnsupported, p)
}
