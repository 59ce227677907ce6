package hardware

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

// LIRC ioctl requests and modes from <linux/lirc.h>.
const (
	lircSetSendMode    = 0x40046911
	lircSetRecMode     = 0x40046912
	lircSetSendCarrier = 0x40046913
	lircSetRecTimeout  = 0x40046918

	lircModePulse = 0x00000002
	lircModeMode2 = 0x00000004
)

// LIRCTransmitter sends pulse trains through a LIRC character device in pulse mode.
type LIRCTransmitter struct {
	path    string
	carrier int

	mu sync.Mutex
	fd int
}

// OpenLIRCTransmitter opens path and configures it for carrierHz.
func OpenLIRCTransmitter(path string, carrierHz int) (*LIRCTransmitter, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	if err := unix.IoctlSetPointerInt(fd, lircSetSendMode, lircModePulse); err != nil {
		unix.Close(fd) //nolint:errcheck // error path
		return nil, fmt.Errorf("setting pulse mode on %s: %w", path, err)
	}
	if err := unix.IoctlSetPointerInt(fd, lircSetSendCarrier, carrierHz); err != nil {
		unix.Close(fd) //nolint:errcheck // error path
		return nil, fmt.Errorf("setting carrier %d Hz on %s: %w", carrierHz, path, err)
	}

	return &LIRCTransmitter{path: path, carrier: carrierHz, fd: fd}, nil
}

// LIRCFactory returns a TransmitterFactory opening path for each carrier.
func LIRCFactory(path string) TransmitterFactory {
	return func(carrierHz int) (Transmitter, error) {
		return OpenLIRCTransmitter(path, carrierHz)
	}
}

// Carrier returns the frequency the device was configured with.
func (t *LIRCTransmitter) Carrier() int {
	return t.carrier
}

// Transmit writes durations to the device. The kernel only accepts a train
// ending in a pulse, so a trailing space is waited out here instead.
func (t *LIRCTransmitter) Transmit(durations []uint32) error {
	body, tail := splitTrailingSpace(durations)
	if len(body) == 0 {
		return ErrEmptySignal
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fd < 0 {
		return ErrClosed
	}

	buf := encodePulses(body)
	for len(buf) > 0 {
		n, err := unix.Write(t.fd, buf)
		if err != nil {
			return fmt.Errorf("writing to %s: %w", t.path, err)
		}
		buf = buf[n:]
	}

	if tail > 0 {
		runtime.LockOSThread()
		BusyWait(Micros(tail))
		runtime.UnlockOSThread()
	}
	return nil
}

// Close releases the file descriptor.
func (t *LIRCTransmitter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fd < 0 {
		return nil
	}
	err := unix.Close(t.fd)
	t.fd = -1
	return err
}

// splitTrailingSpace returns the train without a final space, plus that space.
// An even-length train ends with a space.
func splitTrailingSpace(durations []uint32) ([]uint32, uint32) {
	if len(durations) == 0 || len(durations)%2 == 1 {
		return durations, 0
	}
	last := len(durations) - 1
	return durations[:last], durations[last]
}

func encodePulses(durations []uint32) []byte {
	buf := make([]byte, 4*len(durations))
	for i, d := range durations {
		binary.NativeEndian.PutUint32(buf[4*i:], d)
	}
	return buf
}
