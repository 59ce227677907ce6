package hardware

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/warthog618/go-gpiocdev"
)

const gpioConsumer = "hifilink"

// GPIOChip requests lines from a GPIO character device such as gpiochip0.
type GPIOChip struct {
	Name string
}

// RequestOutput requests offset as an output driven to initial.
func (c GPIOChip) RequestOutput(offset int, initial int) (OutputLine, error) {
	line, err := gpiocdev.RequestLine(c.Name, offset,
		gpiocdev.AsOutput(initial),
		gpiocdev.WithConsumer(gpioConsumer),
	)
	if err != nil {
		return nil, fmt.Errorf("requesting %s line %d: %w", c.Name, offset, err)
	}
	return line, nil
}

// BitBanger plays PinStep sequences on GPIO lines with busy-wait holds.
type BitBanger struct {
	lines LineRequester
}

// NewBitBanger creates a BitBanger requesting lines from req.
func NewBitBanger(req LineRequester) *BitBanger {
	return &BitBanger{lines: req}
}

// Play requests every pin as an output driven low, runs steps on a locked OS
// thread and releases the lines. The lines are released even if a step fails.
func (b *BitBanger) Play(pins []int, steps []PinStep) (err error) {
	held := make(map[int]OutputLine, len(pins))
	defer func() {
		for _, line := range held {
			err = errors.Join(err, line.Close())
		}
	}()

	for _, pin := range pins {
		if _, ok := held[pin]; ok {
			continue
		}
		line, reqErr := b.lines.RequestOutput(pin, 0)
		if reqErr != nil {
			return reqErr
		}
		held[pin] = line
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for i, step := range steps {
		line, ok := held[step.Pin]
		if !ok {
			return fmt.Errorf("step %d: pin %d was not requested", i, step.Pin)
		}
		if err := line.SetValue(step.Level); err != nil {
			return fmt.Errorf("step %d: setting pin %d: %w", i, step.Pin, err)
		}
		BusyWait(step.Hold)
	}
	return nil
}
