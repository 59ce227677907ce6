package protocol

import (
	"fmt"

	"github.com/hifilink/hifilink/internal/device"
)

// SAA3004 timing, derived from the chip's 400 kHz oscillator (2.5 µs period).
const (
	SAA3004Carrier = 33333

	saaPulseUS = 160
	saaToUS    = 1152 * 5 / 2 // 2880
	saaGap0US  = 2*saaToUS - saaPulseUS
	saaGap1US  = 3*saaToUS - saaPulseUS

	// SAA3004WordUS is the fixed word period each frame is padded to.
	SAA3004WordUS = 55296 * 5 / 2 // 138240

	saaFrameBits = 11
)

// SAA3004 synthesises Philips SAA3004 pulse-distance frames.
//
// A frame is 11 bits sent MSB first: a reference 1, the toggle bit, a 3-bit
// sub-address and a 6-bit command. Each bit is a 160 µs pulse followed by a
// gap whose length encodes the value; a final pulse closes the frame and a
// space pads it to the word period.
type SAA3004 struct{}

// Protocol implements Encoder.
func (e *SAA3004) Protocol() device.Protocol { return device.ProtocolSAA3004 }

// Carrier implements Encoder.
func (e *SAA3004) Carrier(dev *device.Device) int {
	if dev != nil && dev.IR != nil && dev.IR.TxFreq > 0 {
		return dev.IR.TxFreq
	}
	return SAA3004Carrier
}

// Encode implements Encoder.
func (e *SAA3004) Encode(req Request) (Encoding, error) {
	cfg := req.Device.SAA3004
	code, err := ResolveCode(req.Command, cfg.CommandMap(), 6)
	if err != nil {
		return Encoding{}, fmt.Errorf("%w; provide a 6-bit binary, decimal or hex code, or a mapped name", err)
	}
	sub := cfg.SubAddr()

	word := 1<<10 | int(req.Toggle&1)<<9 | sub<<6 | code
	frame := saaFrame(word)

	reps := req.Options.Reps(cfg.DefaultReps())
	durations := make([]uint32, 0, reps*len(frame))
	for range reps {
		durations = append(durations, frame...)
	}

	freq := e.Carrier(req.Device)
	return Encoding{
		Signal:      PulseTrain{Carrier: freq, Durations: durations},
		Code:        code,
		Repetitions: reps,
		UsesToggle:  true,
		Details: map[string]any{
			"code":        code,
			"sub_address": sub,
			"freq":        freq,
			"bits":        fmt.Sprintf("%011b", word),
		},
	}, nil
}

// saaFrame encodes one 11-bit word padded to SAA3004WordUS.
func saaFrame(word int) []uint32 {
	frame := make([]uint32, 0, 2*saaFrameBits+2)
	var sum uint32
	for i := saaFrameBits - 1; i >= 0; i-- {
		gap := uint32(saaGap0US)
		if word>>i&1 == 1 {
			gap = saaGap1US
		}
		frame = append(frame, saaPulseUS, gap)
		sum += saaPulseUS + gap
	}
	frame = append(frame, saaPulseUS)
	sum += saaPulseUS
	return append(frame, SAA3004WordUS-sum)
}
