package hardware

import (
	"encoding/binary"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSplitTrailingSpace(t *testing.T) {
	tests := []struct {
		name     string
		in       []uint32
		wantBody []uint32
		wantTail uint32
	}{
		{"empty", nil, nil, 0},
		{"ends with pulse", []uint32{160, 5600, 160}, []uint32{160, 5600, 160}, 0},
		{"ends with space", []uint32{160, 5600, 160, 9000}, []uint32{160, 5600, 160}, 9000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, tail := splitTrailingSpace(tt.in)
			if !reflect.DeepEqual(body, tt.wantBody) || tail != tt.wantTail {
				t.Errorf("splitTrailingSpace() = %v, %d; want %v, %d", body, tail, tt.wantBody, tt.wantTail)
			}
		})
	}
}

func TestEncodePulses(t *testing.T) {
	buf := encodePulses([]uint32{160, 5600, 0x00FFFFFF})
	if len(buf) != 12 {
		t.Fatalf("len = %d, want 12", len(buf))
	}
	for i, want := range []uint32{160, 5600, 0x00FFFFFF} {
		if got := binary.NativeEndian.Uint32(buf[4*i:]); got != want {
			t.Errorf("word %d = %d, want %d", i, got, want)
		}
	}
}

func TestOpenLIRCTransmitter_MissingDevice(t *testing.T) {
	_, err := OpenLIRCTransmitter(filepath.Join(t.TempDir(), "lirc9"), 38000)
	if err == nil {
		t.Fatal("OpenLIRCTransmitter() expected error for missing device")
	}

	factory := LIRCFactory(filepath.Join(t.TempDir(), "lirc9"))
	if _, err := factory(36000); err == nil {
		t.Fatal("factory expected error for missing device")
	}
}

func TestLIRCTransmitter_Closed(t *testing.T) {
	tx := &LIRCTransmitter{path: "/dev/null", carrier: 38000, fd: -1}

	if err := tx.Transmit([]uint32{560}); !errors.Is(err, ErrClosed) {
		t.Errorf("Transmit() on closed = %v, want ErrClosed", err)
	}
	if err := tx.Transmit(nil); !errors.Is(err, ErrEmptySignal) {
		t.Errorf("Transmit(nil) = %v, want ErrEmptySignal", err)
	}
	if err := tx.Close(); err != nil {
		t.Errorf("Close() twice = %v", err)
	}
	if tx.Carrier() != 38000 {
		t.Errorf("Carrier() = %d", tx.Carrier())
	}
}
