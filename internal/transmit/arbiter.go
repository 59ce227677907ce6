// Package transmit serialises access to the shared signal hardware.
//
// Every emission, carrier or GPIO, runs inside the Arbiter's critical
// section with the status indicator lit. At most one transmitter handle
// exists; it is rebound when a send needs a different carrier.
package transmit

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hifilink/hifilink/internal/hardware"
)

// ErrDriverUnavailable is returned when no transmitter could be opened.
var ErrDriverUnavailable = errors.New("transmit: driver unavailable")

// Logger is the logging surface the Arbiter needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Arbiter owns the transmitter handle and the indicator.
//
// Thread Safety:
//   - WithTransmitter, Exclusive and WithIndicator never run concurrently
//     with each other.
type Arbiter struct {
	mu        sync.Mutex
	factory   hardware.TransmitterFactory
	indicator hardware.Indicator
	handle    hardware.Transmitter
	logger    Logger
}

// NewArbiter creates an Arbiter. A nil indicator means no status LED.
func NewArbiter(factory hardware.TransmitterFactory, indicator hardware.Indicator) *Arbiter {
	if indicator == nil {
		indicator = hardware.NopIndicator{}
	}
	return &Arbiter{
		factory:   factory,
		indicator: indicator,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for handle changes.
func (a *Arbiter) SetLogger(logger Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logger = logger
}

// WithTransmitter runs fn with a transmitter bound to freq while holding the
// lock with the indicator on. The indicator goes off and the lock is released
// however fn returns.
func (a *Arbiter) WithTransmitter(freq int, fn func(hardware.Transmitter) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.indicator.On()
	defer a.indicator.Off()

	tx, err := a.ensureHandle(freq)
	if err != nil {
		return err
	}
	return fn(tx)
}

// Exclusive runs fn under the same lock and indicator without a carrier handle.
func (a *Arbiter) Exclusive(fn func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.indicator.On()
	defer a.indicator.Off()

	return fn()
}

// WithIndicator runs fn under the lock and hands it the indicator to drive
// itself. Used for user prompts, which must not be cut short by a send
// switching the LED off. The indicator is off when WithIndicator returns.
func (a *Arbiter) WithIndicator(fn func(hardware.Indicator) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	defer a.indicator.Off()
	return fn(a.indicator)
}

// ensureHandle must be called with mu held.
func (a *Arbiter) ensureHandle(freq int) (hardware.Transmitter, error) {
	if a.handle != nil && a.handle.Carrier() == freq {
		return a.handle, nil
	}

	if a.handle != nil {
		a.logger.Debug("rebinding transmitter", "from_hz", a.handle.Carrier(), "to_hz", freq)
		if err := a.handle.Close(); err != nil {
			a.logger.Warn("closing transmitter", "error", err)
		}
		a.handle = nil
	}

	if a.factory == nil {
		return nil, fmt.Errorf("%w: no transmitter configured", ErrDriverUnavailable)
	}
	tx, err := a.factory(freq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDriverUnavailable, err)
	}
	a.handle = tx
	return tx, nil
}

// Carrier returns the frequency of the open handle, or 0 if none is open.
func (a *Arbiter) Carrier() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handle == nil {
		return 0
	}
	return a.handle.Carrier()
}

// Close releases the transmitter handle.
func (a *Arbiter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handle == nil {
		return nil
	}
	err := a.handle.Close()
	a.handle = nil
	return err
}
