package protocol

import (
	"fmt"

	"github.com/hifilink/hifilink/internal/device"
)

const (
	// LearnedDefaultRepetitions is how many times a learned code is sent when
	// the request does not say otherwise.
	LearnedDefaultRepetitions = 2

	// InterFrameGapUS separates repeated learned frames.
	InterFrameGapUS = 27830
)

// LearnedIR replays pulse trains captured from the original remote.
type LearnedIR struct {
	// DefaultFreq is the carrier for devices without ir.tx_freq.
	DefaultFreq int
}

// Protocol implements Encoder.
func (e *LearnedIR) Protocol() device.Protocol { return device.ProtocolIR }

// Carrier implements Encoder.
func (e *LearnedIR) Carrier(dev *device.Device) int {
	if dev != nil && dev.IR != nil && dev.IR.TxFreq > 0 {
		return dev.IR.TxFreq
	}
	return e.DefaultFreq
}

// Encode implements Encoder. The variant matching req.Toggle is repeated with
// an inter-frame gap between copies and none after the last.
func (e *LearnedIR) Encode(req Request) (Encoding, error) {
	var code device.LearnedCode
	if req.Device.IR != nil {
		code = req.Device.IR.Commands[req.Command]
	}
	timings, ok := code.Variant(int(req.Toggle))
	if !ok {
		return Encoding{}, fmt.Errorf("%w: no timings for command '%s', toggle %d",
			ErrUnknownCommand, req.Command, req.Toggle)
	}

	reps := req.Options.Reps(LearnedDefaultRepetitions)
	durations := make([]uint32, 0, reps*(len(timings)+1))
	for i := range reps {
		durations = append(durations, timings...)
		if i != reps-1 {
			durations = append(durations, InterFrameGapUS)
		}
	}

	freq := e.Carrier(req.Device)
	return Encoding{
		Signal:      PulseTrain{Carrier: freq, Durations: durations},
		Repetitions: reps,
		UsesToggle:  true,
		Details:     map[string]any{"freq": freq},
	}, nil
}
