package hardware

import (
	"sync"
	"time"
)

// LED is a status indicator on a GPIO line.
type LED struct {
	mu        sync.Mutex
	line      OutputLine
	activeLow bool
}

// NewLED requests pin from req and starts with the LED off.
func NewLED(req LineRequester, pin int, activeLow bool) (*LED, error) {
	l := &LED{activeLow: activeLow}
	line, err := req.RequestOutput(pin, l.level(false))
	if err != nil {
		return nil, err
	}
	l.line = line
	return l, nil
}

func (l *LED) level(on bool) int {
	if on != l.activeLow {
		return 1
	}
	return 0
}

func (l *LED) set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return
	}
	_ = l.line.SetValue(l.level(on)) //nolint:errcheck // indicator is best effort
}

// On lights the LED.
func (l *LED) On() { l.set(true) }

// Off darkens the LED.
func (l *LED) Off() { l.set(false) }

// Blink flashes the LED times times, period on then period off.
func (l *LED) Blink(times int, period time.Duration) {
	for i := 0; i < times; i++ {
		l.On()
		time.Sleep(period)
		l.Off()
		time.Sleep(period)
	}
}

// Close turns the LED off and releases the line.
func (l *LED) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return nil
	}
	_ = l.line.SetValue(l.level(false)) //nolint:errcheck // releasing anyway
	err := l.line.Close()
	l.line = nil
	return err
}

// NopIndicator is used when no status LED is configured.
type NopIndicator struct{}

func (NopIndicator) On()                      {}
func (NopIndicator) Off()                     {}
func (NopIndicator) Blink(int, time.Duration) {}
