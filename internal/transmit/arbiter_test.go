package transmit

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hifilink/hifilink/internal/hardware"
	"github.com/hifilink/hifilink/internal/hardware/hwtest"
)

func TestWithTransmitter_ReusesHandleForSameCarrier(t *testing.T) {
	f := &hwtest.Factory{}
	a := NewArbiter(f.New, nil)
	defer a.Close()

	for i := 0; i < 3; i++ {
		err := a.WithTransmitter(38000, func(tx hardware.Transmitter) error {
			return tx.Transmit([]uint32{560, 560, 560})
		})
		if err != nil {
			t.Fatalf("WithTransmitter() error = %v", err)
		}
	}

	if got := f.Opened(); !reflect.DeepEqual(got, []int{38000}) {
		t.Errorf("opened = %v, want one 38000 handle", got)
	}
	if len(f.Transmissions()) != 3 {
		t.Errorf("transmissions = %d, want 3", len(f.Transmissions()))
	}
}

func TestWithTransmitter_RebindsOnCarrierChange(t *testing.T) {
	f := &hwtest.Factory{}
	a := NewArbiter(f.New, nil)

	for _, freq := range []int{36000, 33333, 33333, 36000} {
		err := a.WithTransmitter(freq, func(tx hardware.Transmitter) error {
			if tx.Carrier() != freq {
				t.Errorf("handle carrier = %d, want %d", tx.Carrier(), freq)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("WithTransmitter(%d) error = %v", freq, err)
		}
	}

	if got := f.Opened(); !reflect.DeepEqual(got, []int{36000, 33333, 36000}) {
		t.Errorf("opened = %v", got)
	}
	if f.Closed() != 2 {
		t.Errorf("closed = %d, want 2", f.Closed())
	}
	if a.Carrier() != 36000 {
		t.Errorf("Carrier() = %d, want 36000", a.Carrier())
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if f.Closed() != 3 || a.Carrier() != 0 {
		t.Errorf("after Close: closed = %d, carrier = %d", f.Closed(), a.Carrier())
	}
}

func TestWithTransmitter_IndicatorAlwaysOff(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		factory *hwtest.Factory
		fn      func(hardware.Transmitter) error
		wantErr error
	}{
		{"success", &hwtest.Factory{}, func(hardware.Transmitter) error { return nil }, nil},
		{"fn error", &hwtest.Factory{}, func(hardware.Transmitter) error { return boom }, boom},
		{"factory error", &hwtest.Factory{OpenErr: boom}, func(hardware.Transmitter) error { return nil }, ErrDriverUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ind := &hwtest.Indicator{}
			a := NewArbiter(tt.factory.New, ind)

			err := a.WithTransmitter(36000, tt.fn)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("WithTransmitter() error = %v, want %v", err, tt.wantErr)
			}
			if got := ind.Events(); !reflect.DeepEqual(got, []string{"on", "off"}) {
				t.Errorf("indicator = %v, want [on off]", got)
			}
		})
	}
}

func TestWithTransmitter_PanicReleasesLock(t *testing.T) {
	ind := &hwtest.Indicator{}
	a := NewArbiter((&hwtest.Factory{}).New, ind)

	func() {
		defer func() { _ = recover() }()
		_ = a.WithTransmitter(36000, func(hardware.Transmitter) error { panic("driver fault") })
	}()

	if ind.Lit() {
		t.Error("indicator left on after panic")
	}
	done := make(chan struct{})
	go func() {
		_ = a.Exclusive(func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock still held after panic")
	}
}

func TestNoInterleaving(t *testing.T) {
	f := &hwtest.Factory{Delay: time.Millisecond}
	a := NewArbiter(f.New, &hwtest.Indicator{})

	var exclusiveInFlight atomic.Int32
	var overlaps atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		freq := 36000
		if i%2 == 0 {
			freq = 33333
		}
		go func() {
			defer wg.Done()
			_ = a.WithTransmitter(freq, func(tx hardware.Transmitter) error {
				if exclusiveInFlight.Load() > 0 {
					overlaps.Add(1)
				}
				return tx.Transmit([]uint32{560, 560, 560})
			})
		}()
		go func() {
			defer wg.Done()
			_ = a.Exclusive(func() error {
				exclusiveInFlight.Add(1)
				defer exclusiveInFlight.Add(-1)
				time.Sleep(500 * time.Microsecond)
				return nil
			})
		}()
	}
	wg.Wait()

	if f.Overlaps() != 0 || overlaps.Load() != 0 {
		t.Errorf("overlapping emissions: transmit=%d exclusive=%d", f.Overlaps(), overlaps.Load())
	}
	if len(f.Transmissions()) != 16 {
		t.Errorf("transmissions = %d, want 16", len(f.Transmissions()))
	}
}

func TestNilFactory(t *testing.T) {
	a := NewArbiter(nil, nil)
	err := a.WithTransmitter(36000, func(hardware.Transmitter) error { return nil })
	if !errors.Is(err, ErrDriverUnavailable) {
		t.Errorf("WithTransmitter() error = %v, want ErrDriverUnavailable", err)
	}
}

func TestWithIndicator_PromptNotInterruptedBySend(t *testing.T) {
	ind := &hwtest.Indicator{}
	a := NewArbiter((&hwtest.Factory{}).New, ind)

	prompting := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- a.WithIndicator(func(i hardware.Indicator) error {
			i.On()
			close(prompting)
			<-release
			return nil
		})
	}()
	<-prompting

	sent := make(chan struct{})
	go func() {
		_ = a.WithTransmitter(36000, func(tx hardware.Transmitter) error { return tx.Transmit([]uint32{560}) })
		close(sent)
	}()

	select {
	case <-sent:
		t.Fatal("send ran while the prompt held the indicator")
	case <-time.After(20 * time.Millisecond):
	}
	if !ind.Lit() {
		t.Error("prompt LED switched off by a waiting send")
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("WithIndicator() error = %v", err)
	}
	<-sent

	want := []string{"on", "off", "on", "off"}
	if got := ind.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("indicator = %v, want %v", got, want)
	}
}
