package device

import (
	"encoding/json"
	"testing"
)

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		in   string
		want Protocol
	}{
		{"", ProtocolIR},
		{"ir", ProtocolIR},
		{" saa3004 ", ProtocolSAA3004},
		{"Kenwood_XS8", ProtocolKenwoodXS8},
		{"rc5", Protocol("RC5")},
	}
	for _, tt := range tests {
		if got := ParseProtocol(tt.in); got != tt.want {
			t.Errorf("ParseProtocol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if Protocol("RC5").Known() {
		t.Error("RC5 should not be a known protocol")
	}
	if !ProtocolKenwoodXS8.Known() {
		t.Error("KENWOOD_XS8 should be a known protocol")
	}
}

func TestDevice_UnmarshalJSON(t *testing.T) {
	t.Run("defaults protocol to IR", func(t *testing.T) {
		var d Device
		if err := json.Unmarshal([]byte(`{"name":"amp"}`), &d); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if d.Protocol != ProtocolIR {
			t.Errorf("Protocol = %q, want IR", d.Protocol)
		}
	})

	t.Run("preserves unknown protocol", func(t *testing.T) {
		var d Device
		if err := json.Unmarshal([]byte(`{"name":"x","protocol":"nec"}`), &d); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if d.Protocol != "NEC" {
			t.Errorf("Protocol = %q, want NEC", d.Protocol)
		}
	})

	t.Run("legacy IR codes key", func(t *testing.T) {
		var d Device
		doc := `{"name":"amp","ir":{"tx_freq":38000,"codes":{"power":{"0":[900,450],"1":[900,900]}}}}`
		if err := json.Unmarshal([]byte(doc), &d); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		code, ok := d.IR.Commands["power"]
		if !ok {
			t.Fatal("legacy codes not mapped to commands")
		}
		v, ok := code.Variant(1)
		if !ok || len(v) != 2 || v[1] != 900 {
			t.Errorf("Variant(1) = %v, %v", v, ok)
		}
		if _, ok := code.Variant(2); ok {
			t.Error("Variant(2) should not exist")
		}
	})

	t.Run("commands win over legacy codes", func(t *testing.T) {
		var d Device
		doc := `{"ir":{"commands":{"power":{"0":[1]}},"codes":{"power":{"0":[2]},"mute":{"0":[3]}}}}`
		if err := json.Unmarshal([]byte(doc), &d); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if got := d.IR.Commands["power"]["0"][0]; got != 1 {
			t.Errorf("power = %d, want 1", got)
		}
		if _, ok := d.IR.Commands["mute"]; !ok {
			t.Error("mute from legacy codes missing")
		}
	})

	t.Run("SAA3004 address alias", func(t *testing.T) {
		var d Device
		doc := `{"name":"cd","protocol":"SAA3004","saa3004":{"address":5,"commands":{"play":"010110","stop":54}}}`
		if err := json.Unmarshal([]byte(doc), &d); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if got := d.SAA3004.SubAddr(); got != 5 {
			t.Errorf("SubAddr() = %d, want 5", got)
		}
		if got := d.SAA3004.Commands["play"]; got != "010110" {
			t.Errorf("play = %q, want 010110", got)
		}
		if got := d.SAA3004.Commands["stop"]; got != "54" {
			t.Errorf("stop = %q, want 54", got)
		}
	})
}

func TestSAA3004Config_Defaults(t *testing.T) {
	var nilCfg *SAA3004Config
	if got := nilCfg.SubAddr(); got != DefaultSubAddress {
		t.Errorf("nil SubAddr() = %d, want %d", got, DefaultSubAddress)
	}
	if got := nilCfg.DefaultReps(); got != 1 {
		t.Errorf("nil DefaultReps() = %d, want 1", got)
	}

	cfg := &SAA3004Config{SubAddress: intPtr(13), Repetitions: 3}
	if got := cfg.SubAddr(); got != 5 {
		t.Errorf("SubAddr() = %d, want 13 & 7 = 5", got)
	}
	if got := cfg.DefaultReps(); got != 3 {
		t.Errorf("DefaultReps() = %d, want 3", got)
	}
}

func TestCodeLiteral_JSON(t *testing.T) {
	tests := []struct {
		lit  CodeLiteral
		want string
	}{
		{"121", `121`},
		{"010110", `"010110"`},
		{"0x79", `"0x79"`},
		{"play", `"play"`},
	}
	for _, tt := range tests {
		got, err := json.Marshal(tt.lit)
		if err != nil {
			t.Fatalf("Marshal(%q) error = %v", tt.lit, err)
		}
		if string(got) != tt.want {
			t.Errorf("Marshal(%q) = %s, want %s", tt.lit, got, tt.want)
		}
	}

	var c CodeLiteral
	if err := json.Unmarshal([]byte(`true`), &c); err == nil {
		t.Error("Unmarshal(true) expected error")
	}
}

func TestDevice_DeepCopy(t *testing.T) {
	orig := &Device{
		Name:     "amp",
		Protocol: ProtocolIR,
		IR: &IRConfig{Commands: map[string]LearnedCode{
			"power": {"0": {100, 200}},
		}},
		KenwoodXS8: &KenwoodConfig{CtrlPin: intPtr(1), Timing: &KenwoodTiming{PreStartUS: 10}},
	}

	cpy := orig.DeepCopy()
	cpy.IR.Commands["power"]["0"][0] = 999
	cpy.IR.Commands["mute"] = LearnedCode{}
	*cpy.KenwoodXS8.CtrlPin = 7
	cpy.KenwoodXS8.Timing.PreStartUS = 20

	if orig.IR.Commands["power"]["0"][0] != 100 {
		t.Error("durations shared with copy")
	}
	if _, ok := orig.IR.Commands["mute"]; ok {
		t.Error("command map shared with copy")
	}
	if *orig.KenwoodXS8.CtrlPin != 1 || orig.KenwoodXS8.Timing.PreStartUS != 10 {
		t.Error("kenwood config shared with copy")
	}

	var nilDev *Device
	if nilDev.DeepCopy() != nil {
		t.Error("DeepCopy(nil) should be nil")
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"amp", "living-room_tv", "deck.2"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) error = %v", name, err)
		}
	}

	invalid := []string{"", "a/b", "a+b", "a#", "two words", string(make([]byte, MaxNameLength+1))}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) expected error", name)
		}
	}
}

func TestValidateDevice(t *testing.T) {
	tests := []struct {
		name    string
		dev     *Device
		wantErr bool
	}{
		{"valid", testKenwoodDevice("deck"), false},
		{"nil", nil, true},
		{"missing protocol", &Device{Name: "x"}, true},
		{"negative freq", &Device{Name: "x", Protocol: ProtocolIR, IR: &IRConfig{TxFreq: -1}}, true},
		{"same pins", &Device{Name: "x", Protocol: ProtocolKenwoodXS8,
			KenwoodXS8: &KenwoodConfig{CtrlPin: intPtr(3), SdatPin: intPtr(3)}}, true},
		{"unknown protocol allowed", &Device{Name: "x", Protocol: "RC5"}, false},
		{"odd learned variant", &Device{Name: "x", Protocol: ProtocolIR, IR: &IRConfig{
			Commands: map[string]LearnedCode{"power": {"0": {900, 450, 560}}}}}, false},
		{"learned variant ends on a space", &Device{Name: "x", Protocol: ProtocolIR, IR: &IRConfig{
			Commands: map[string]LearnedCode{"power": {"0": {900, 450, 560, 560}}}}}, true},
		{"empty learned variant", &Device{Name: "x", Protocol: ProtocolIR, IR: &IRConfig{
			Commands: map[string]LearnedCode{"power": {"1": {}}}}}, true},
		{"repetitions at limit", &Device{Name: "x", Protocol: ProtocolSAA3004,
			SAA3004: &SAA3004Config{Repetitions: MaxRepetitions}}, false},
		{"repetitions over limit", &Device{Name: "x", Protocol: ProtocolSAA3004,
			SAA3004: &SAA3004Config{Repetitions: MaxRepetitions + 1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDevice(tt.dev)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDevice() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTrimTrailingSpace(t *testing.T) {
	tests := []struct {
		in   []uint32
		want int
	}{
		{nil, 0},
		{[]uint32{9000}, 1},
		{[]uint32{9000, 4500}, 1},
		{[]uint32{9000, 4500, 560}, 3},
		{[]uint32{9000, 4500, 560, 100000}, 3},
	}
	for _, tt := range tests {
		if got := TrimTrailingSpace(tt.in); len(got) != tt.want {
			t.Errorf("TrimTrailingSpace(%v) = %v, want length %d", tt.in, got, tt.want)
		}
	}
}

func TestParseDevicesFile(t *testing.T) {
	t.Run("firmware object form", func(t *testing.T) {
		data := []byte(`{
			"tuner": {"protocol": "ir", "ir": {"codes": {"power": {"0": [1, 2]}}}},
			"cd": {"protocol": "SAA3004", "saa3004": {"address": 4}}
		}`)
		devices, err := ParseDevicesFile(data)
		if err != nil {
			t.Fatalf("ParseDevicesFile() error = %v", err)
		}
		if len(devices) != 2 || devices[0].Name != "cd" || devices[1].Name != "tuner" {
			t.Fatalf("devices = %+v", devices)
		}
		if devices[0].SAA3004.SubAddr() != 4 {
			t.Errorf("cd sub address = %d, want 4", devices[0].SAA3004.SubAddr())
		}
		if _, ok := devices[1].IR.Commands["power"]; !ok {
			t.Error("tuner power code missing")
		}
	})

	t.Run("array form", func(t *testing.T) {
		devices, err := ParseDevicesFile([]byte(`[{"name":"amp"}]`))
		if err != nil {
			t.Fatalf("ParseDevicesFile() error = %v", err)
		}
		if len(devices) != 1 || devices[0].Protocol != ProtocolIR {
			t.Errorf("devices = %+v", devices)
		}
	})

	t.Run("rejects scalars", func(t *testing.T) {
		if _, err := ParseDevicesFile([]byte(`42`)); err == nil {
			t.Error("expected error")
		}
	})
}
