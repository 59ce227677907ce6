// Package hwtest provides recording fakes for the hardware interfaces.
package hwtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hifilink/hifilink/internal/hardware"
)

// Transmission is one recorded Transmit call.
type Transmission struct {
	Carrier   int
	Durations []uint32
}

// Factory builds fake transmitters and records everything they send.
// It counts overlapping Transmit calls so tests can prove serialisation.
type Factory struct {
	// Delay is held inside each Transmit to widen any race window.
	Delay time.Duration

	// OpenErr, when set, is returned by New.
	OpenErr error

	// TransmitErr, when set, is returned by Transmit.
	TransmitErr error

	mu            sync.Mutex
	opened        []int
	closed        int
	transmissions []Transmission

	inFlight atomic.Int32
	overlaps atomic.Int32
}

// New satisfies hardware.TransmitterFactory.
func (f *Factory) New(carrierHz int) (hardware.Transmitter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	f.opened = append(f.opened, carrierHz)
	return &Transmitter{factory: f, carrier: carrierHz}, nil
}

// Opened returns the carrier of every transmitter opened so far.
func (f *Factory) Opened() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.opened...)
}

// Closed returns how many transmitters were closed.
func (f *Factory) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Transmissions returns a copy of everything transmitted.
func (f *Factory) Transmissions() []Transmission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Transmission(nil), f.transmissions...)
}

// Overlaps returns how many times two transmissions were in flight at once.
func (f *Factory) Overlaps() int {
	return int(f.overlaps.Load())
}

// Transmitter is a fake hardware.Transmitter created by Factory.
type Transmitter struct {
	factory *Factory
	carrier int
	closed  bool
}

func (t *Transmitter) Carrier() int { return t.carrier }

func (t *Transmitter) Transmit(durations []uint32) error {
	f := t.factory
	if f.inFlight.Add(1) > 1 {
		f.overlaps.Add(1)
	}
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	closed := t.closed
	f.mu.Unlock()
	if closed {
		return hardware.ErrClosed
	}
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	if f.TransmitErr != nil {
		return f.TransmitErr
	}
	if len(durations) == 0 {
		return hardware.ErrEmptySignal
	}

	f.mu.Lock()
	f.transmissions = append(f.transmissions, Transmission{
		Carrier:   t.carrier,
		Durations: append([]uint32(nil), durations...),
	})
	f.mu.Unlock()
	return nil
}

func (t *Transmitter) Close() error {
	t.factory.mu.Lock()
	defer t.factory.mu.Unlock()
	if !t.closed {
		t.closed = true
		t.factory.closed++
	}
	return nil
}

// LineEvent is one SetValue on a fake line.
type LineEvent struct {
	Offset int
	Value  int
}

// Lines is a fake hardware.LineRequester that records every level change.
type Lines struct {
	// RequestErr, when set, is returned by RequestOutput.
	RequestErr error

	mu       sync.Mutex
	events   []LineEvent
	open     map[int]bool
	requests int
}

// RequestOutput satisfies hardware.LineRequester.
func (l *Lines) RequestOutput(offset int, initial int) (hardware.OutputLine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.RequestErr != nil {
		return nil, l.RequestErr
	}
	if l.open == nil {
		l.open = make(map[int]bool)
	}
	if l.open[offset] {
		return nil, fmt.Errorf("line %d busy", offset)
	}
	l.open[offset] = true
	l.requests++
	l.events = append(l.events, LineEvent{Offset: offset, Value: initial})
	return &line{owner: l, offset: offset}, nil
}

// Events returns every recorded level, including the initial value of each request.
func (l *Lines) Events() []LineEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LineEvent(nil), l.events...)
}

// OpenCount returns how many lines are currently requested.
func (l *Lines) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, open := range l.open {
		if open {
			n++
		}
	}
	return n
}

type line struct {
	owner  *Lines
	offset int
}

func (ln *line) SetValue(value int) error {
	ln.owner.mu.Lock()
	defer ln.owner.mu.Unlock()
	if !ln.owner.open[ln.offset] {
		return hardware.ErrClosed
	}
	ln.owner.events = append(ln.owner.events, LineEvent{Offset: ln.offset, Value: value})
	return nil
}

func (ln *line) Close() error {
	ln.owner.mu.Lock()
	defer ln.owner.mu.Unlock()
	ln.owner.open[ln.offset] = false
	return nil
}

// Indicator records status LED calls as "on", "off" and "blink:N".
type Indicator struct {
	mu     sync.Mutex
	events []string
	lit    bool
}

func (i *Indicator) On()  { i.record("on", true) }
func (i *Indicator) Off() { i.record("off", false) }

func (i *Indicator) Blink(times int, _ time.Duration) {
	i.record(fmt.Sprintf("blink:%d", times), false)
}

func (i *Indicator) record(ev string, lit bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.events = append(i.events, ev)
	i.lit = lit
}

// Events returns the recorded calls in order.
func (i *Indicator) Events() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.events...)
}

// Lit reports whether the last call left the LED on.
func (i *Indicator) Lit() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lit
}

// ErrNoCapture is returned by Capturer once its queued results run out.
var ErrNoCapture = errors.New("hwtest: no capture queued")

// CaptureResult is one queued Capturer outcome.
type CaptureResult struct {
	Durations []uint32
	Err       error
}

// Capturer returns queued results in order.
type Capturer struct {
	// BeforeCapture, when set, runs at the start of every call with the
	// 1-based call number. It stands in for the time a user takes to press
	// the remote.
	BeforeCapture func(call int)

	mu      sync.Mutex
	results []CaptureResult
	calls   int
}

// NewCapturer queues results.
func NewCapturer(results ...CaptureResult) *Capturer {
	return &Capturer{results: results}
}

func (c *Capturer) Capture(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.calls++
	call := c.calls
	c.mu.Unlock()

	if c.BeforeCapture != nil {
		c.BeforeCapture(call)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.results) == 0 {
		return nil, ErrNoCapture
	}
	r := c.results[0]
	c.results = c.results[1:]
	return r.Durations, r.Err
}

// Calls returns how many captures were attempted.
func (c *Capturer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
