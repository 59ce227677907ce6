package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Protocol is the signalling scheme used to reach a device.
type Protocol string

// Supported protocols.
const (
	// ProtocolIR replays learned infrared pulse trains.
	ProtocolIR Protocol = "IR"

	// ProtocolSAA3004 synthesises Philips SAA3004 frames on the IR carrier.
	ProtocolSAA3004 Protocol = "SAA3004"

	// ProtocolKenwoodXS8 bit-bangs the Kenwood XS8 system-control bus over two GPIO lines.
	ProtocolKenwoodXS8 Protocol = "KENWOOD_XS8"
)

// AllProtocols returns the protocols this hub can drive.
func AllProtocols() []Protocol {
	return []Protocol{ProtocolIR, ProtocolSAA3004, ProtocolKenwoodXS8}
}

// ParseProtocol normalises a protocol tag. Matching is case-insensitive and an
// empty tag means IR. Unrecognised tags are returned upper-cased so the
// dispatcher can report them as unsupported.
func ParseProtocol(s string) Protocol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ProtocolIR
	}
	return Protocol(s)
}

// Known reports whether p is one of AllProtocols.
func (p Protocol) Known() bool {
	return slices.Contains(AllProtocols(), p)
}

// Device is a named piece of equipment and the configuration needed to signal it.
//
// Only the section matching Protocol is consulted when sending; the others are
// kept so a record survives a round trip unchanged.
type Device struct {
	Name     string   `json:"name"`
	Protocol Protocol `json:"protocol"`

	IR         *IRConfig      `json:"ir,omitempty"`
	SAA3004    *SAA3004Config `json:"saa3004,omitempty"`
	KenwoodXS8 *KenwoodConfig `json:"kenwood_xs8,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UnmarshalJSON applies the protocol normalisation rules on decode.
func (d *Device) UnmarshalJSON(data []byte) error {
	type plain Device
	var raw plain
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	raw.Protocol = ParseProtocol(string(raw.Protocol))
	*d = Device(raw)
	return nil
}

// DeepCopy creates a complete independent copy of the Device.
// All map and slice fields are cloned so the registry cache cannot be
// mutated through a returned value.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.IR = d.IR.deepCopy()
	cpy.SAA3004 = d.SAA3004.deepCopy()
	cpy.KenwoodXS8 = d.KenwoodXS8.deepCopy()
	return &cpy
}

// IRConfig holds learned infrared codes.
type IRConfig struct {
	// TxFreq is the carrier in Hz. Zero means the global default.
	TxFreq int `json:"tx_freq,omitempty"`

	// Commands maps a command name to its two learned toggle variants.
	Commands map[string]LearnedCode `json:"commands,omitempty"`
}

// UnmarshalJSON accepts the legacy "codes" key as an alias for "commands".
func (c *IRConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		TxFreq   int                    `json:"tx_freq"`
		Commands map[string]LearnedCode `json:"commands"`
		Codes    map[string]LearnedCode `json:"codes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.TxFreq = raw.TxFreq
	c.Commands = raw.Commands
	if len(raw.Codes) > 0 {
		if c.Commands == nil {
			c.Commands = make(map[string]LearnedCode, len(raw.Codes))
		}
		for name, code := range raw.Codes {
			if _, ok := c.Commands[name]; !ok {
				c.Commands[name] = code
			}
		}
	}
	return nil
}

func (c *IRConfig) deepCopy() *IRConfig {
	if c == nil {
		return nil
	}
	cpy := *c
	if c.Commands != nil {
		cpy.Commands = make(map[string]LearnedCode, len(c.Commands))
		for name, code := range c.Commands {
			cpy.Commands[name] = code.clone()
		}
	}
	return &cpy
}

// LearnedCode holds the pulse/space durations (µs) captured for each toggle
// variant, keyed "0" and "1".
type LearnedCode map[string][]uint32

// Variant returns the durations for toggle bit b.
func (c LearnedCode) Variant(b int) ([]uint32, bool) {
	d, ok := c[strconv.Itoa(b)]
	if !ok || len(d) == 0 {
		return nil, false
	}
	return d, true
}

func (c LearnedCode) clone() LearnedCode {
	if c == nil {
		return nil
	}
	cpy := make(LearnedCode, len(c))
	for k, v := range c {
		cpy[k] = slices.Clone(v)
	}
	return cpy
}

// Default SAA3004 parameters.
const (
	DefaultSubAddress  = 2
	DefaultRepetitions = 1
)

// SAA3004Config describes a device spoken to with synthesised SAA3004 frames.
type SAA3004Config struct {
	// SubAddress selects the receiving unit (3 bits). Nil means DefaultSubAddress.
	SubAddress *int `json:"sub_address,omitempty"`

	// Repetitions is the default frame count per send.
	Repetitions int `json:"repetitions,omitempty"`

	Commands map[string]CodeLiteral `json:"commands,omitempty"`
}

// UnmarshalJSON accepts "address" as an alias for "sub_address".
func (c *SAA3004Config) UnmarshalJSON(data []byte) error {
	var raw struct {
		SubAddress  *int                   `json:"sub_address"`
		Address     *int                   `json:"address"`
		Repetitions int                    `json:"repetitions"`
		Commands    map[string]CodeLiteral `json:"commands"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.SubAddress = raw.SubAddress
	if c.SubAddress == nil {
		c.SubAddress = raw.Address
	}
	c.Repetitions = raw.Repetitions
	c.Commands = raw.Commands
	return nil
}

// SubAddr returns the effective 3-bit sub-address.
func (c *SAA3004Config) SubAddr() int {
	if c == nil || c.SubAddress == nil {
		return DefaultSubAddress
	}
	return *c.SubAddress & 0x07
}

// DefaultReps returns the configured repetitions, at least one.
func (c *SAA3004Config) DefaultReps() int {
	if c == nil || c.Repetitions < 1 {
		return DefaultRepetitions
	}
	return c.Repetitions
}

// CommandMap returns the named codes, possibly nil.
func (c *SAA3004Config) CommandMap() map[string]CodeLiteral {
	if c == nil {
		return nil
	}
	return c.Commands
}

func (c *SAA3004Config) deepCopy() *SAA3004Config {
	if c == nil {
		return nil
	}
	cpy := *c
	if c.SubAddress != nil {
		v := *c.SubAddress
		cpy.SubAddress = &v
	}
	cpy.Commands = maps.Clone(c.Commands)
	return &cpy
}

// KenwoodConfig describes a device on the Kenwood XS8 control bus.
type KenwoodConfig struct {
	// CtrlPin and SdatPin are GPIO line offsets on the configured chip.
	CtrlPin *int `json:"ctrl_pin,omitempty"`
	SdatPin *int `json:"sdat_pin,omitempty"`

	Repetitions int `json:"repetitions,omitempty"`

	// Commands overrides the built-in command table when non-empty.
	Commands map[string]CodeLiteral `json:"commands,omitempty"`

	Timing *KenwoodTiming `json:"timing,omitempty"`
}

// KenwoodTiming overrides individual bus timings in µs. Zero fields keep the default.
type KenwoodTiming struct {
	PreStartUS    int `json:"pre_start_us,omitempty"`
	StartHighUS   int `json:"start_high_us,omitempty"`
	Bit0LowUS     int `json:"bit0_low_us,omitempty"`
	Bit1LowUS     int `json:"bit1_low_us,omitempty"`
	FrameHighUS   int `json:"frame_high_us,omitempty"`
	PostCtrlLowUS int `json:"post_ctrl_low_us,omitempty"`
}

func (c *KenwoodConfig) deepCopy() *KenwoodConfig {
	if c == nil {
		return nil
	}
	cpy := *c
	if c.CtrlPin != nil {
		v := *c.CtrlPin
		cpy.CtrlPin = &v
	}
	if c.SdatPin != nil {
		v := *c.SdatPin
		cpy.SdatPin = &v
	}
	if c.Timing != nil {
		t := *c.Timing
		cpy.Timing = &t
	}
	cpy.Commands = maps.Clone(c.Commands)
	return &cpy
}

// CodeLiteral is a command code as written in a device record: a JSON number
// (121) or a string ("121", "0x79", "0b1111001", "111001").
// Interpretation is left to the protocol encoder.
type CodeLiteral string

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (c *CodeLiteral) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = CodeLiteral(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("code must be a number or string: %w", err)
	}
	*c = CodeLiteral(n.String())
	return nil
}

// MarshalJSON writes canonical decimal literals as numbers and everything else
// as strings, so "010110" keeps its leading zero.
func (c CodeLiteral) MarshalJSON() ([]byte, error) {
	s := string(c)
	if n, err := strconv.Atoi(s); err == nil && strconv.Itoa(n) == s {
		return []byte(s), nil
	}
	return json.Marshal(s)
}
