package protocol

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hifilink/hifilink/internal/device"
	"github.com/hifilink/hifilink/internal/hardware"
)

func intPtr(v int) *int { return &v }

func irDevice() *device.Device {
	return &device.Device{
		Name:     "amp",
		Protocol: device.ProtocolIR,
		IR: &device.IRConfig{Commands: map[string]device.LearnedCode{
			"power": {"0": {900, 450, 600}, "1": {900, 900, 600}},
		}},
	}
}

func deckDevice() *device.Device {
	return &device.Device{
		Name:     "deck",
		Protocol: device.ProtocolKenwoodXS8,
		KenwoodXS8: &device.KenwoodConfig{
			CtrlPin: intPtr(14),
			SdatPin: intPtr(15),
		},
	}
}

func sum(d []uint32) uint32 {
	var s uint32
	for _, v := range d {
		s += v
	}
	return s
}

func TestResolveCode(t *testing.T) {
	mapping := map[string]device.CodeLiteral{
		"play":   "121",
		"stop":   "0x44",
		"pause":  "0b1001100",
		"eject":  "010110",
		"broken": "loud",
	}

	tests := []struct {
		command string
		bits    int
		want    int
		wantErr bool
	}{
		{"0x79", 8, 121, false},
		{"0X79", 8, 121, false},
		{"121", 8, 121, false},
		{"0b1111001", 8, 121, false},
		{"0B1111001", 8, 121, false},
		{"play", 8, 121, false},
		{"stop", 8, 68, false},
		{"pause", 8, 76, false},
		{"010110", 6, 22, false},
		{"010110", 8, 10110 & 0xFF, false},
		{"eject", 6, 22, false},
		{"0x1FF", 8, 0xFF, false},
		{"127", 6, 63, false},
		{" 42 ", 8, 42, false},
		{"missing", 8, 0, true},
		{"broken", 8, 0, true},
		{"0xZZ", 8, 0, true},
		{"", 8, 0, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.command, tt.bits), func(t *testing.T) {
			got, err := ResolveCode(tt.command, mapping, tt.bits)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownCommand)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveCode_EquivalentForms(t *testing.T) {
	forms := []string{"0x79", "121", "play"}
	mapping := map[string]device.CodeLiteral{"play": "121"}
	for _, f := range forms {
		got, err := ResolveCode(f, mapping, 8)
		require.NoError(t, err, f)
		assert.Equal(t, 121, got, f)
	}

	// A JSON number in the device map resolves the same way.
	var lit device.CodeLiteral
	require.NoError(t, lit.UnmarshalJSON([]byte("121")))
	got, err := ResolveCode("play", map[string]device.CodeLiteral{"play": lit}, 8)
	require.NoError(t, err)
	assert.Equal(t, 121, got)
}

func TestOptions_Reps(t *testing.T) {
	assert.Equal(t, 2, Options{}.Reps(2))
	assert.Equal(t, 5, WithRepetitions(5).Reps(2))
	assert.Equal(t, 1, WithRepetitions(0).Reps(2))
	assert.Equal(t, 1, WithRepetitions(-3).Reps(2))
	assert.Equal(t, MaxRepetitions, WithRepetitions(1<<40).Reps(2))
	assert.Equal(t, MaxRepetitions, Options{}.Reps(MaxRepetitions*10))
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, Options{}.Validate())
	assert.NoError(t, WithRepetitions(MaxRepetitions).Validate())
	assert.NoError(t, WithRepetitions(-1).Validate())
	assert.ErrorIs(t, WithRepetitions(MaxRepetitions+1).Validate(), ErrTooManyRepetitions)
}

func TestLearnedIR(t *testing.T) {
	enc := &LearnedIR{DefaultFreq: 36000}

	t.Run("default repetitions and gap", func(t *testing.T) {
		got, err := enc.Encode(Request{Device: irDevice(), Command: "power"})
		require.NoError(t, err)

		train, ok := got.Signal.(PulseTrain)
		require.True(t, ok)
		assert.Equal(t, 36000, train.Carrier)
		assert.Equal(t, []uint32{900, 450, 600, InterFrameGapUS, 900, 450, 600}, train.Durations)
		assert.Equal(t, 2, got.Repetitions)
		assert.True(t, got.UsesToggle)
	})

	t.Run("toggle variant and override", func(t *testing.T) {
		got, err := enc.Encode(Request{Device: irDevice(), Command: "power", Toggle: 1, Options: WithRepetitions(3)})
		require.NoError(t, err)

		train := got.Signal.(PulseTrain)
		assert.Len(t, train.Durations, 3*3+2)
		assert.Equal(t, uint32(900), train.Durations[1])
		// No trailing gap after the last copy.
		assert.Equal(t, uint32(600), train.Durations[len(train.Durations)-1])
	})

	t.Run("single repetition has no gap", func(t *testing.T) {
		got, err := enc.Encode(Request{Device: irDevice(), Command: "power", Options: WithRepetitions(0)})
		require.NoError(t, err)
		assert.Equal(t, []uint32{900, 450, 600}, got.Signal.(PulseTrain).Durations)
	})

	t.Run("device carrier", func(t *testing.T) {
		dev := irDevice()
		dev.IR.TxFreq = 38000
		assert.Equal(t, 38000, enc.Carrier(dev))
		assert.Equal(t, 36000, enc.Carrier(&device.Device{Name: "x"}))
	})

	t.Run("unknown command or variant", func(t *testing.T) {
		_, err := enc.Encode(Request{Device: irDevice(), Command: "mute"})
		assert.ErrorIs(t, err, ErrUnknownCommand)

		dev := irDevice()
		delete(dev.IR.Commands["power"], "1")
		_, err = enc.Encode(Request{Device: dev, Command: "power", Toggle: 1})
		assert.ErrorIs(t, err, ErrUnknownCommand)

		_, err = enc.Encode(Request{Device: &device.Device{Name: "bare"}, Command: "power"})
		assert.ErrorIs(t, err, ErrUnknownCommand)
	})
}

func TestSAA3004(t *testing.T) {
	enc := &SAA3004{}
	cd := &device.Device{
		Name:     "cd",
		Protocol: device.ProtocolSAA3004,
		SAA3004: &device.SAA3004Config{Commands: map[string]device.CodeLiteral{
			"play": "010110",
		}},
	}

	t.Run("single frame fills the word period", func(t *testing.T) {
		got, err := enc.Encode(Request{Device: cd, Command: "play"})
		require.NoError(t, err)

		train := got.Signal.(PulseTrain)
		require.Len(t, train.Durations, 24)
		assert.Equal(t, uint32(SAA3004WordUS), sum(train.Durations))
		assert.Equal(t, SAA3004Carrier, train.Carrier)
		assert.Equal(t, 22, got.Code)
		assert.Equal(t, 1, got.Repetitions)
		assert.Equal(t, 2, got.Details["sub_address"])
		assert.Equal(t, "10010010110", got.Details["bits"])
	})

	t.Run("bit timings", func(t *testing.T) {
		got, err := enc.Encode(Request{Device: cd, Command: "0", Toggle: 1})
		require.NoError(t, err)

		d := got.Signal.(PulseTrain).Durations
		// ref=1, toggle=1, sub=010, code=000000
		want := []uint32{
			160, 8480, 160, 8480,
			160, 5600, 160, 8480, 160, 5600,
			160, 5600, 160, 5600, 160, 5600, 160, 5600, 160, 5600, 160, 5600,
			160,
		}
		assert.Equal(t, want, d[:len(d)-1])
		assert.Equal(t, uint32(SAA3004WordUS)-sum(want), d[len(d)-1])
	})

	t.Run("repetitions concatenate frames", func(t *testing.T) {
		dev := cd.DeepCopy()
		dev.SAA3004.Repetitions = 2
		got, err := enc.Encode(Request{Device: dev, Command: "play"})
		require.NoError(t, err)
		assert.Equal(t, 2*uint32(SAA3004WordUS), sum(got.Signal.(PulseTrain).Durations))

		got, err = enc.Encode(Request{Device: dev, Command: "play", Options: WithRepetitions(4)})
		require.NoError(t, err)
		assert.Equal(t, 4, got.Repetitions)
	})

	t.Run("huge repetition override is clamped", func(t *testing.T) {
		got, err := enc.Encode(Request{Device: cd, Command: "play", Options: WithRepetitions(1 << 40)})
		require.NoError(t, err)
		assert.Equal(t, MaxRepetitions, got.Repetitions)
		assert.Len(t, got.Signal.(PulseTrain).Durations, MaxRepetitions*24)
	})

	t.Run("sub address and carrier overrides", func(t *testing.T) {
		dev := cd.DeepCopy()
		dev.SAA3004.SubAddress = intPtr(5)
		dev.IR = &device.IRConfig{TxFreq: 38000}
		got, err := enc.Encode(Request{Device: dev, Command: "0x3F"})
		require.NoError(t, err)
		assert.Equal(t, "10101111111", got.Details["bits"])
		assert.Equal(t, 38000, got.Details["freq"])
	})

	t.Run("unknown command", func(t *testing.T) {
		_, err := enc.Encode(Request{Device: cd, Command: "eject"})
		assert.ErrorIs(t, err, ErrUnknownCommand)
	})

	t.Run("missing section uses defaults", func(t *testing.T) {
		got, err := enc.Encode(Request{Device: &device.Device{Name: "bare", Protocol: device.ProtocolSAA3004}, Command: "7"})
		require.NoError(t, err)
		assert.Equal(t, 7, got.Code)
	})
}

func TestKenwoodXS8(t *testing.T) {
	enc := &KenwoodXS8{}

	t.Run("play uses default map and inverted byte", func(t *testing.T) {
		got, err := enc.Encode(Request{Device: deckDevice(), Command: "play"})
		require.NoError(t, err)
		assert.Equal(t, 121, got.Code)
		assert.False(t, got.UsesToggle)
		assert.Equal(t, 0, enc.Carrier(deckDevice()))

		seq, ok := got.Signal.(PinSequence)
		require.True(t, ok)
		assert.Equal(t, []int{14, 15}, seq.Pins)
		require.Len(t, seq.Steps, 2+16+2)

		assert.Equal(t, hardware.PinStep{Pin: 14, Level: 1, Hold: 5 * time.Millisecond}, seq.Steps[0])
		assert.Equal(t, hardware.PinStep{Pin: 15, Level: 1, Hold: 7 * time.Millisecond}, seq.Steps[1])

		// ^121 & 0xFF = 0x86 = 10000110
		inverted := byte(^121 & 0xFF)
		require.Equal(t, byte(0x86), inverted)
		for i := range 8 {
			low := seq.Steps[2+2*i]
			high := seq.Steps[3+2*i]
			bit := inverted >> (7 - i) & 1
			want := 5000 * time.Microsecond
			if bit == 1 {
				want = 9800 * time.Microsecond
			}
			assert.Equal(t, hardware.PinStep{Pin: 15, Level: 0, Hold: want}, low, "bit %d low", i)
			assert.Equal(t, hardware.PinStep{Pin: 15, Level: 1, Hold: 5 * time.Millisecond}, high, "bit %d high", i)
		}

		assert.Equal(t, hardware.PinStep{Pin: 14, Level: 0, Hold: 3 * time.Millisecond}, seq.Steps[18])
		assert.Equal(t, hardware.PinStep{Pin: 15, Level: 0, Hold: 2 * time.Millisecond}, seq.Steps[19])
	})

	t.Run("device map replaces defaults", func(t *testing.T) {
		dev := deckDevice()
		dev.KenwoodXS8.Commands = map[string]device.CodeLiteral{"play": "70"}
		got, err := enc.Encode(Request{Device: dev, Command: "play"})
		require.NoError(t, err)
		assert.Equal(t, 70, got.Code)

		_, err = enc.Encode(Request{Device: dev, Command: "stop"})
		assert.ErrorIs(t, err, ErrUnknownCommand)
	})

	t.Run("timing overrides and repetitions", func(t *testing.T) {
		dev := deckDevice()
		dev.KenwoodXS8.Timing = &device.KenwoodTiming{PreStartUS: 1000}
		got, err := enc.Encode(Request{Device: dev, Command: "0x00", Options: WithRepetitions(2)})
		require.NoError(t, err)

		seq := got.Signal.(PinSequence)
		assert.Len(t, seq.Steps, 40)
		assert.Equal(t, time.Millisecond, seq.Steps[0].Hold)
		assert.Equal(t, time.Millisecond, seq.Steps[20].Hold)
		// 0x00 inverts to all ones.
		assert.Equal(t, 9800*time.Microsecond, seq.Steps[2].Hold)
	})

	t.Run("huge repetition override is clamped", func(t *testing.T) {
		got, err := enc.Encode(Request{Device: deckDevice(), Command: "play", Options: WithRepetitions(1 << 40)})
		require.NoError(t, err)
		assert.Equal(t, MaxRepetitions, got.Repetitions)
		assert.Len(t, got.Signal.(PinSequence).Steps, MaxRepetitions*20)
	})

	t.Run("missing pins", func(t *testing.T) {
		dev := deckDevice()
		dev.KenwoodXS8.SdatPin = nil
		_, err := enc.Encode(Request{Device: dev, Command: "play"})
		assert.ErrorIs(t, err, ErrMalformedConfig)

		_, err = enc.Encode(Request{Device: &device.Device{Name: "x"}, Command: "play"})
		assert.ErrorIs(t, err, ErrMalformedConfig)
	})
}

func TestDefaultEncoders(t *testing.T) {
	encs := DefaultEncoders(36000)
	assert.Equal(t, []device.Protocol{device.ProtocolIR, device.ProtocolKenwoodXS8, device.ProtocolSAA3004}, encs.Protocols())

	ir, ok := encs.For(device.ProtocolIR)
	require.True(t, ok)
	assert.Equal(t, 36000, ir.Carrier(&device.Device{}))

	_, ok = encs.For("RC5")
	assert.False(t, ok)

	assert.ErrorIs(t, SetupUnsupported(device.ProtocolSAA3004), ErrSetupUnsupported)
}

func TestToggleState(t *testing.T) {
	t.Run("per device", func(t *testing.T) {
		ts := NewToggleState(false)
		assert.Equal(t, Bit(0), ts.Get(device.ProtocolIR, "amp"))
		assert.Equal(t, Bit(1), ts.Flip(device.ProtocolIR, "amp"))
		assert.Equal(t, Bit(0), ts.Get(device.ProtocolIR, "tuner"))
		assert.Equal(t, Bit(0), ts.Flip(device.ProtocolIR, "amp"))
	})

	t.Run("shared IR bit", func(t *testing.T) {
		ts := NewToggleState(true)
		ts.Flip(device.ProtocolIR, "amp")
		assert.Equal(t, Bit(1), ts.Get(device.ProtocolIR, "tuner"))
		// SAA3004 stays per device.
		assert.Equal(t, Bit(0), ts.Get(device.ProtocolSAA3004, "cd"))
	})

	t.Run("concurrent flips", func(t *testing.T) {
		ts := NewToggleState(false)
		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ts.Flip(device.ProtocolSAA3004, "cd")
			}()
		}
		wg.Wait()
		assert.Equal(t, Bit(0), ts.Snapshot()["cd"])
	})
}

func TestSignalDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Microsecond, PulseTrain{Durations: []uint32{1000, 500}}.Duration())
	seq := PinSequence{Steps: []hardware.PinStep{{Hold: time.Millisecond}, {Hold: 2 * time.Millisecond}}}
	assert.Equal(t, 3*time.Millisecond, seq.Duration())
}
