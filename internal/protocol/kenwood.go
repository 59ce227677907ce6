package protocol

import (
	"fmt"
	"time"

	"github.com/hifilink/hifilink/internal/device"
	"github.com/hifilink/hifilink/internal/hardware"
)

// Default Kenwood XS8 bus timings in µs.
const (
	KenwoodPreStartUS    = 5000
	KenwoodStartHighUS   = 7000
	KenwoodBit0LowUS     = 5000
	KenwoodBit1LowUS     = 9800
	KenwoodFrameHighUS   = 5000
	KenwoodPostCtrlLowUS = 3000

	kenwoodIdleUS = 2000
)

// KenwoodDefaultCommands is used when a device defines no commands of its own.
var KenwoodDefaultCommands = map[string]device.CodeLiteral{
	"play":       "121",
	"play_alt":   "70",
	"stop":       "68",
	"pause":      "76",
	"record":     "72",
	"next_track": "66",
	"prev_track": "74",
}

// KenwoodXS8 drives the two-wire Kenwood system-control bus. The data byte is
// sent inverted, MSB first, framed by the CTRL line.
type KenwoodXS8 struct{}

// Protocol implements Encoder.
func (e *KenwoodXS8) Protocol() device.Protocol { return device.ProtocolKenwoodXS8 }

// Carrier implements Encoder. The bus is unmodulated.
func (e *KenwoodXS8) Carrier(*device.Device) int { return 0 }

// Encode implements Encoder.
func (e *KenwoodXS8) Encode(req Request) (Encoding, error) {
	cfg := req.Device.KenwoodXS8
	if cfg == nil || cfg.CtrlPin == nil || cfg.SdatPin == nil {
		return Encoding{}, fmt.Errorf("%w: missing kenwood_xs8.ctrl_pin or kenwood_xs8.sdat_pin", ErrMalformedConfig)
	}

	mapping := cfg.Commands
	if len(mapping) == 0 {
		mapping = KenwoodDefaultCommands
	}
	code, err := ResolveCode(req.Command, mapping, 8)
	if err != nil {
		return Encoding{}, fmt.Errorf("%w for Kenwood XS8", err)
	}

	def := max(cfg.Repetitions, 1)
	reps := req.Options.Reps(def)
	ctrl, sdat := *cfg.CtrlPin, *cfg.SdatPin
	t := kenwoodTimings(cfg.Timing)

	frame := kenwoodFrame(ctrl, sdat, byte(^code), t)
	steps := make([]hardware.PinStep, 0, reps*len(frame))
	for range reps {
		steps = append(steps, frame...)
	}

	return Encoding{
		Signal:      PinSequence{Pins: []int{ctrl, sdat}, Steps: steps},
		Code:        code,
		Repetitions: reps,
		Details:     map[string]any{"code": code},
	}, nil
}

type kenwoodTiming struct {
	preStart, startHigh, bit0Low, bit1Low, frameHigh, postCtrlLow time.Duration
}

func kenwoodTimings(o *device.KenwoodTiming) kenwoodTiming {
	pick := func(override, def int) time.Duration {
		if override > 0 {
			return time.Duration(override) * time.Microsecond
		}
		return time.Duration(def) * time.Microsecond
	}
	if o == nil {
		o = &device.KenwoodTiming{}
	}
	return kenwoodTiming{
		preStart:    pick(o.PreStartUS, KenwoodPreStartUS),
		startHigh:   pick(o.StartHighUS, KenwoodStartHighUS),
		bit0Low:     pick(o.Bit0LowUS, KenwoodBit0LowUS),
		bit1Low:     pick(o.Bit1LowUS, KenwoodBit1LowUS),
		frameHigh:   pick(o.FrameHighUS, KenwoodFrameHighUS),
		postCtrlLow: pick(o.PostCtrlLowUS, KenwoodPostCtrlLowUS),
	}
}

// kenwoodFrame builds one transmission of the already inverted byte b.
func kenwoodFrame(ctrl, sdat int, b byte, t kenwoodTiming) []hardware.PinStep {
	steps := make([]hardware.PinStep, 0, 2+2*8+2)
	steps = append(steps,
		hardware.PinStep{Pin: ctrl, Level: 1, Hold: t.preStart},
		hardware.PinStep{Pin: sdat, Level: 1, Hold: t.startHigh},
	)
	for i := 7; i >= 0; i-- {
		low := t.bit0Low
		if b>>i&1 == 1 {
			low = t.bit1Low
		}
		steps = append(steps,
			hardware.PinStep{Pin: sdat, Level: 0, Hold: low},
			hardware.PinStep{Pin: sdat, Level: 1, Hold: t.frameHigh},
		)
	}
	return append(steps,
		hardware.PinStep{Pin: ctrl, Level: 0, Hold: t.postCtrlLow},
		hardware.PinStep{Pin: sdat, Level: 0, Hold: kenwoodIdleUS * time.Microsecond},
	)
}
