package hardware

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// mode2 sample layout: the high byte is the kind, the low 24 bits the value in µs.
const (
	mode2KindMask  = 0xFF000000
	mode2ValueMask = 0x00FFFFFF

	mode2Space   = 0x00000000
	mode2Pulse   = 0x01000000
	mode2Timeout = 0x03000000

	capturePollInterval = 100 * time.Millisecond
)

// LIRCCapturer reads one IR code from a LIRC receive device in mode2.
type LIRCCapturer struct {
	// Path is the receive device, e.g. /dev/lirc1.
	Path string

	// Timeout bounds the wait for a code. Zero means until ctx is done.
	Timeout time.Duration

	// GapUS is the silence in microseconds that ends a code.
	GapUS uint32

	// MinEdges is the minimum number of durations for a valid capture.
	MinEdges int
}

// Capture blocks until a full code has been received, the timeout passes or ctx is done.
func (c *LIRCCapturer) Capture(ctx context.Context) ([]uint32, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	fd, err := unix.Open(c.Path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", c.Path, err)
	}
	defer unix.Close(fd) //nolint:errcheck // read-only handle

	if err := unix.IoctlSetPointerInt(fd, lircSetRecMode, lircModeMode2); err != nil {
		return nil, fmt.Errorf("setting mode2 on %s: %w", c.Path, err)
	}
	// Not every receiver supports a timeout; the gap check covers those.
	_ = unix.IoctlSetPointerInt(fd, lircSetRecTimeout, int(c.GapUS)) //nolint:errcheck // optional

	col := newMode2Collector(c.GapUS)
	buf := make([]byte, 4*256)
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}

	for !col.done {
		if err := ctx.Err(); err != nil {
			return c.finish(col, err)
		}

		n, err := unix.Poll(fds, int(capturePollInterval/time.Millisecond))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, fmt.Errorf("polling %s: %w", c.Path, err)
		}
		if n == 0 {
			continue
		}

		read, err := unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", c.Path, err)
		}
		for i := 0; i+4 <= read && !col.done; i += 4 {
			col.add(binary.NativeEndian.Uint32(buf[i:]))
		}
	}

	return c.finish(col, nil)
}

// finish validates what was collected. A timeout with a usable partial code still succeeds.
func (c *LIRCCapturer) finish(col *mode2Collector, ctxErr error) ([]uint32, error) {
	code := col.code()
	if len(code) == 0 && ctxErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureTimeout, ctxErr)
	}
	minEdges := c.MinEdges
	if minEdges < 1 {
		minEdges = 1
	}
	if len(code) < minEdges {
		return nil, fmt.Errorf("%w: %d edges, need %d", ErrCaptureEmpty, len(code), minEdges)
	}
	return code, nil
}

// mode2Collector folds mode2 samples into an alternating mark/space list
// that starts and ends with a mark.
type mode2Collector struct {
	gap  uint32
	out  []uint32
	done bool
}

func newMode2Collector(gapUS uint32) *mode2Collector {
	return &mode2Collector{gap: gapUS}
}

func (c *mode2Collector) add(sample uint32) {
	if c.done {
		return
	}
	value := sample & mode2ValueMask

	switch sample & mode2KindMask {
	case mode2Pulse:
		if len(c.out)%2 == 1 {
			c.out[len(c.out)-1] += value
			return
		}
		c.out = append(c.out, value)

	case mode2Space:
		if len(c.out) == 0 {
			return
		}
		if c.gap > 0 && value >= c.gap {
			c.done = true
			return
		}
		if len(c.out)%2 == 0 {
			c.out[len(c.out)-1] += value
			return
		}
		c.out = append(c.out, value)

	case mode2Timeout:
		if len(c.out) > 0 {
			c.done = true
		}
	}
}

// code returns the collected durations without a trailing space.
func (c *mode2Collector) code() []uint32 {
	if n := len(c.out); n > 0 && n%2 == 0 {
		return c.out[:n-1]
	}
	return c.out
}
