package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hifilink/hifilink/internal/device"
	"github.com/hifilink/hifilink/internal/hardware"
	"github.com/hifilink/hifilink/internal/protocol"
	"github.com/hifilink/hifilink/internal/transmit"
)

// Logger is the logging surface the Dispatcher needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the part of device.Registry the dispatcher uses.
type Registry interface {
	GetDevice(ctx context.Context, name string) (*device.Device, error)
	UpdateDevice(ctx context.Context, name string, fn func(current *device.Device) (*device.Device, error)) (*device.Device, error)
}

// PinPlayer plays GPIO step sequences; hardware.BitBanger in production.
type PinPlayer interface {
	Play(pins []int, steps []hardware.PinStep) error
}

// Learn sequence timings.
const (
	primeStep      = 200 * time.Millisecond
	betweenCapture = time.Second
	doneBlinks     = 3
	doneBlinkRate  = 50 * time.Millisecond
)

// Deps are the collaborators of a Dispatcher. Capturer, Indicator and GPIO
// may be nil when the hardware is absent. Indicator is only used when no
// Arbiter is given; otherwise the Arbiter's indicator prompts during Setup.
type Deps struct {
	Registry  Registry
	Encoders  protocol.Encoders
	Arbiter   *transmit.Arbiter
	GPIO      PinPlayer
	Capturer  hardware.Capturer
	Indicator hardware.Indicator
	Toggles   *protocol.ToggleState

	// DefaultFreq is the carrier given to IR devices created by learning.
	DefaultFreq int
}

// Dispatcher routes send and setup requests to the right protocol encoder
// and the shared transmit hardware.
//
// Thread Safety:
//   - Send and Setup may be called from any goroutine.
//   - Transmissions are serialised by the Arbiter; toggle bits are read and
//     flipped only inside its critical section.
//   - Setup calls are serialised and hold the Arbiter while prompting.
type Dispatcher struct {
	registry    Registry
	encoders    protocol.Encoders
	arbiter     *transmit.Arbiter
	gpio        PinPlayer
	capturer    hardware.Capturer
	toggles     *protocol.ToggleState
	defaultFreq int

	recMu     sync.RWMutex
	recorders []Recorder

	learning chan struct{} // holds a token while Setup runs

	logger Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// New creates a Dispatcher.
func New(deps Deps) *Dispatcher {
	d := &Dispatcher{
		registry:    deps.Registry,
		encoders:    deps.Encoders,
		arbiter:     deps.Arbiter,
		gpio:        deps.GPIO,
		capturer:    deps.Capturer,
		toggles:     deps.Toggles,
		defaultFreq: deps.DefaultFreq,
		learning:    make(chan struct{}, 1),
		logger:      noopLogger{},
		sleep:       sleepCtx,
		now:         time.Now,
	}
	if d.encoders == nil {
		d.encoders = protocol.DefaultEncoders(deps.DefaultFreq)
	}
	if d.toggles == nil {
		d.toggles = protocol.NewToggleState(false)
	}
	if d.arbiter == nil {
		d.arbiter = transmit.NewArbiter(nil, deps.Indicator)
	}
	return d
}

// SetLogger sets the logger.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// AddRecorder registers an observer for transmission events.
func (d *Dispatcher) AddRecorder(r Recorder) {
	d.recMu.Lock()
	defer d.recMu.Unlock()
	d.recorders = append(d.recorders, r)
}

// Protocols lists the protocols this dispatcher can drive.
func (d *Dispatcher) Protocols() []device.Protocol {
	return d.encoders.Protocols()
}

// Toggles exposes the toggle state for diagnostics.
func (d *Dispatcher) Toggles() *protocol.ToggleState {
	return d.toggles
}

// Resolve looks a device up by name.
func (d *Dispatcher) Resolve(ctx context.Context, name string) (*device.Device, error) {
	dev, err := d.registry.GetDevice(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", name, err)
	}
	return dev, nil
}

// Send transmits command to the named device once encoded by its protocol.
func (d *Dispatcher) Send(ctx context.Context, name, command string, opts protocol.Options) Result {
	start := d.now()
	res, ev := d.send(ctx, name, command, opts)

	ev.Device = name
	ev.Command = command
	ev.Source = SourceFrom(ctx)
	ev.Status = res.Status
	ev.At = start
	if res.Err != nil {
		ev.Error = res.Err.Error()
		d.logger.Warn("send failed", "device", name, "command", command, "status", res.Status, "error", res.Err)
	} else {
		d.logger.Debug("sent", "device", name, "command", command, "protocol", ev.Protocol, "repetitions", ev.Repetitions)
	}
	d.record(ev)
	return res
}

func (d *Dispatcher) send(ctx context.Context, name, command string, opts protocol.Options) (Result, TransmissionEvent) {
	var ev TransmissionEvent

	if command == "" {
		return failure(fmt.Errorf("%w: command is required", ErrInvalidRequest), "Missing command"), ev
	}
	if err := opts.Validate(); err != nil {
		return failure(fmt.Errorf("%w: %w", ErrInvalidRequest, err), "Invalid 'repetitions' value"), ev
	}

	dev, err := d.Resolve(ctx, name)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return failure(err, fmt.Sprintf("Unknown device '%s'", name)), ev
		}
		return failureErr(err), ev
	}
	ev.Protocol = string(dev.Protocol)

	enc, ok := d.encoders.For(dev.Protocol)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrProtocolUnsupported, dev.Protocol)
		return failure(err, fmt.Sprintf("Unsupported protocol: %s", dev.Protocol)), ev
	}

	// A dry run surfaces unknown commands and config errors before the
	// hardware is touched. The real encode happens under the lock with the
	// current toggle bit.
	req := protocol.Request{Device: dev, Command: command, Options: opts}
	if _, err := enc.Encode(req); err != nil {
		return failureErr(err), ev
	}

	if err := ctx.Err(); err != nil {
		return failureErr(err), ev
	}

	var encoding protocol.Encoding
	if freq := enc.Carrier(dev); freq > 0 {
		encoding, err = d.sendCarrier(enc, req, freq)
	} else {
		encoding, err = d.sendPins(enc, req)
	}
	if err != nil {
		return failureErr(err), ev
	}

	ev.Code = encoding.Code
	ev.Repetitions = encoding.Repetitions
	ev.Duration = encoding.Signal.Duration()

	body := map[string]any{
		"status":      "success",
		"device":      name,
		"protocol":    string(dev.Protocol),
		"command":     command,
		"repetitions": encoding.Repetitions,
	}
	for k, v := range encoding.Details {
		body[k] = v
	}
	return Result{Status: StatusFor(nil), Body: body}, ev
}

// sendCarrier encodes and transmits inside the arbiter so the toggle bit
// read, the emission and the flip form one step.
func (d *Dispatcher) sendCarrier(enc protocol.Encoder, req protocol.Request, freq int) (protocol.Encoding, error) {
	dev := req.Device
	var out protocol.Encoding

	err := d.arbiter.WithTransmitter(freq, func(tx hardware.Transmitter) error {
		req.Toggle = d.toggles.Get(dev.Protocol, dev.Name)
		encoding, err := enc.Encode(req)
		if err != nil {
			return err
		}
		train, ok := encoding.Signal.(protocol.PulseTrain)
		if !ok {
			return fmt.Errorf("%w: %s did not produce a pulse train", ErrProtocolUnsupported, dev.Protocol)
		}
		if err := tx.Transmit(train.Durations); err != nil {
			return fmt.Errorf("transmitting %s: %w", dev.Name, err)
		}
		if encoding.UsesToggle {
			if encoding.Details == nil {
				encoding.Details = make(map[string]any)
			}
			encoding.Details["toggle_next"] = int(d.toggles.Flip(dev.Protocol, dev.Name))
		}
		out = encoding
		return nil
	})
	return out, err
}

// sendPins encodes outside the lock (GPIO protocols carry no toggle) and
// bit-bangs the sequence exclusively.
func (d *Dispatcher) sendPins(enc protocol.Encoder, req protocol.Request) (protocol.Encoding, error) {
	encoding, err := enc.Encode(req)
	if err != nil {
		return protocol.Encoding{}, err
	}
	seq, ok := encoding.Signal.(protocol.PinSequence)
	if !ok {
		return protocol.Encoding{}, fmt.Errorf("%w: %s did not produce a pin sequence", ErrProtocolUnsupported, req.Device.Protocol)
	}
	if d.gpio == nil {
		return protocol.Encoding{}, fmt.Errorf("%w: no GPIO chip configured", transmit.ErrDriverUnavailable)
	}

	err = d.arbiter.Exclusive(func() error {
		if err := d.gpio.Play(seq.Pins, seq.Steps); err != nil {
			return fmt.Errorf("bit-banging %s: %w", req.Device.Name, err)
		}
		return nil
	})
	return encoding, err
}

// Setup learns command for the named device. Only learned IR supports it;
// a device that does not exist yet is created as IR once both captures succeed.
// One Setup runs at a time and sends wait while the user is being prompted.
func (d *Dispatcher) Setup(ctx context.Context, name, command string) Result {
	if command == "" {
		return failure(fmt.Errorf("%w: command is required", ErrInvalidRequest), "Missing command")
	}
	if err := device.ValidateName(name); err != nil {
		return failureErr(err)
	}

	select {
	case d.learning <- struct{}{}:
		defer func() { <-d.learning }()
	case <-ctx.Done():
		return failureErr(ctx.Err())
	}

	proto := device.ProtocolIR
	dev, err := d.registry.GetDevice(ctx, name)
	switch {
	case err == nil:
		proto = dev.Protocol
	case errors.Is(err, device.ErrDeviceNotFound):
	default:
		return failureErr(err)
	}

	if _, ok := d.encoders.For(proto); !ok {
		err := fmt.Errorf("%w: %s", ErrProtocolUnsupported, proto)
		return failure(err, fmt.Sprintf("Unsupported protocol: %s", proto))
	}
	if proto != device.ProtocolIR {
		return failureErr(protocol.SetupUnsupported(proto))
	}

	var first, second []uint32
	err = d.arbiter.WithIndicator(func(ind hardware.Indicator) error {
		var err error
		first, second, err = d.learn(ctx, ind, name, command)
		return err
	})
	if err != nil {
		d.logger.Warn("learning failed", "device", name, "command", command, "error", err)
		return failureErr(err)
	}
	first, second = device.TrimTrailingSpace(first), device.TrimTrailingSpace(second)

	// The record is re-read here; it may have been edited while the user
	// was pressing buttons.
	_, err = d.registry.UpdateDevice(ctx, name, func(current *device.Device) (*device.Device, error) {
		if current == nil {
			current = &device.Device{Name: name, Protocol: device.ProtocolIR}
		}
		if current.Protocol != device.ProtocolIR {
			return nil, fmt.Errorf("%w: %s became %s while learning", device.ErrProtocolImmutable, name, current.Protocol)
		}
		if current.IR == nil {
			current.IR = &device.IRConfig{}
		}
		if current.IR.TxFreq == 0 {
			current.IR.TxFreq = d.defaultFreq
		}
		if current.IR.Commands == nil {
			current.IR.Commands = make(map[string]device.LearnedCode)
		}
		current.IR.Commands[command] = device.LearnedCode{"0": first, "1": second}
		return current, nil
	})
	if err != nil {
		d.logger.Warn("discarding learned code", "device", name, "command", command, "error", err)
		return failureErr(fmt.Errorf("saving learned code: %w", err))
	}

	_ = d.arbiter.WithIndicator(func(ind hardware.Indicator) error { //nolint:errcheck // never fails
		ind.Blink(doneBlinks, doneBlinkRate)
		return nil
	})
	d.logger.Info("command learned", "device", name, "command", command,
		"len0", len(first), "len1", len(second))

	return Result{Status: StatusFor(nil), Body: map[string]any{
		"status":  "success",
		"device":  name,
		"command": command,
		"lengths": map[string]int{"0": len(first), "1": len(second)},
	}}
}

// learn captures both toggle variants while ind prompts the user. The caller
// holds the arbiter, so nothing is transmitted while learning.
func (d *Dispatcher) learn(ctx context.Context, ind hardware.Indicator, name, command string) (first, second []uint32, err error) {
	if d.capturer == nil {
		return nil, nil, fmt.Errorf("%w: no IR receiver configured", ErrCaptureFailed)
	}

	ind.Off()
	if err := d.sleep(ctx, primeStep); err != nil {
		return nil, nil, err
	}
	ind.On()
	if err := d.sleep(ctx, primeStep); err != nil {
		return nil, nil, err
	}
	ind.Off()

	d.logger.Info("learning first toggle", "device", name, "command", command)
	if first, err = d.capture(ctx, ind); err != nil {
		return nil, nil, err
	}

	if err := d.sleep(ctx, betweenCapture); err != nil {
		return nil, nil, err
	}

	d.logger.Info("learning second toggle", "device", name, "command", command)
	if second, err = d.capture(ctx, ind); err != nil {
		return nil, nil, err
	}
	return first, second, nil
}

func (d *Dispatcher) capture(ctx context.Context, ind hardware.Indicator) ([]uint32, error) {
	ind.On()
	defer ind.Off()

	durations, err := d.capturer.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	if len(durations) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, hardware.ErrCaptureEmpty)
	}
	return durations, nil
}

func (d *Dispatcher) record(ev TransmissionEvent) {
	d.recMu.RLock()
	defer d.recMu.RUnlock()
	for _, r := range d.recorders {
		r.RecordTransmission(ev)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
