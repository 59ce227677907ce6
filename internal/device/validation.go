package device

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxNameLength bounds device names; they appear in URL paths and MQTT topics.
const MaxNameLength = 64

// ValidateName checks that name can be used as a registry key.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxNameLength)
	}
	if strings.ContainsAny(name, "/+#") {
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidName, name)
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains whitespace", ErrInvalidName, name)
		}
	}
	return nil
}

// MaxRepetitions bounds how many times one frame may be repeated in a
// single transmission.
const MaxRepetitions = 64

// TrimTrailingSpace drops a final space from a captured train so it ends on
// a pulse. The gap after the last pulse carries no information.
func TrimTrailingSpace(durations []uint32) []uint32 {
	if n := len(durations); n > 0 && n%2 == 0 {
		return durations[:n-1]
	}
	return durations
}

// normalizeLearned trims a trailing space from every learned variant.
func normalizeLearned(d *Device) {
	if d == nil || d.IR == nil {
		return
	}
	for _, code := range d.IR.Commands {
		for key, durations := range code {
			code[key] = TrimTrailingSpace(durations)
		}
	}
}

// ValidateDevice checks a device before it is persisted.
// Unknown protocols are allowed through; they are rejected at send time.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidDevice)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if d.Protocol == "" {
		return fmt.Errorf("%w: protocol is required", ErrInvalidDevice)
	}

	if ir := d.IR; ir != nil {
		if ir.TxFreq < 0 {
			return fmt.Errorf("%w: ir.tx_freq must not be negative", ErrInvalidDevice)
		}
		for cmd, code := range ir.Commands {
			for key, durations := range code {
				// Trains start and end with a pulse.
				if len(durations)%2 == 0 {
					return fmt.Errorf("%w: ir.commands.%s.%s has %d durations, want an odd count",
						ErrInvalidDevice, cmd, key, len(durations))
				}
			}
		}
	}
	if s := d.SAA3004; s != nil {
		if s.Repetitions < 0 {
			return fmt.Errorf("%w: saa3004.repetitions must not be negative", ErrInvalidDevice)
		}
		if s.Repetitions > MaxRepetitions {
			return fmt.Errorf("%w: saa3004.repetitions must not exceed %d", ErrInvalidDevice, MaxRepetitions)
		}
	}
	if k := d.KenwoodXS8; k != nil {
		if k.CtrlPin != nil && *k.CtrlPin < 0 {
			return fmt.Errorf("%w: kenwood_xs8.ctrl_pin must not be negative", ErrInvalidDevice)
		}
		if k.SdatPin != nil && *k.SdatPin < 0 {
			return fmt.Errorf("%w: kenwood_xs8.sdat_pin must not be negative", ErrInvalidDevice)
		}
		if k.Repetitions < 0 || k.Repetitions > MaxRepetitions {
			return fmt.Errorf("%w: kenwood_xs8.repetitions must be 0-%d", ErrInvalidDevice, MaxRepetitions)
		}
		if k.CtrlPin != nil && k.SdatPin != nil && *k.CtrlPin == *k.SdatPin {
			return fmt.Errorf("%w: kenwood_xs8 ctrl and sdat must be different pins", ErrInvalidDevice)
		}
	}
	return nil
}
