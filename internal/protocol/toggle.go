package protocol

import (
	"sync"

	"github.com/hifilink/hifilink/internal/device"
)

// sharedIRKey holds the single learned-IR bit when sharing is enabled.
// It cannot collide with a device name because names reject '/'.
const sharedIRKey = "ir/shared"

// ToggleState tracks the next toggle bit per device.
//
// The dispatcher reads and flips bits only while holding the transmit
// arbiter, so read-encode-flip is atomic with respect to other sends. The
// internal mutex only makes diagnostic reads safe.
type ToggleState struct {
	mu       sync.Mutex
	sharedIR bool
	bits     map[string]Bit
}

// NewToggleState creates an empty state. With sharedIR set, all learned-IR
// devices share one bit, matching receivers paired against older firmware.
func NewToggleState(sharedIR bool) *ToggleState {
	return &ToggleState{sharedIR: sharedIR, bits: make(map[string]Bit)}
}

func (t *ToggleState) key(p device.Protocol, name string) string {
	if t.sharedIR && p == device.ProtocolIR {
		return sharedIRKey
	}
	return name
}

// Get returns the bit the next send to name will use.
func (t *ToggleState) Get(p device.Protocol, name string) Bit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bits[t.key(p, name)]
}

// Flip advances the bit for name and returns the new value.
func (t *ToggleState) Flip(p device.Protocol, name string) Bit {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := t.key(p, name)
	t.bits[k] = t.bits[k].Flip()
	return t.bits[k]
}

// Snapshot copies the current bits, keyed by device name.
func (t *ToggleState) Snapshot() map[string]Bit {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Bit, len(t.bits))
	for k, v := range t.bits {
		out[k] = v
	}
	return out
}
