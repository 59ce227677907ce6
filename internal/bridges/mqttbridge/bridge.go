package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hifilink/hifilink/internal/dispatch"
	"github.com/hifilink/hifilink/internal/infrastructure/mqtt"
	"github.com/hifilink/hifilink/internal/queue"
)

// outboxSize bounds messages waiting to be published.
const outboxSize = 256

// Logger is the logging interface used by the bridge.
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

// MQTTClient is the part of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Enqueuer accepts jobs. *queue.Queue implements it.
type Enqueuer interface {
	EnqueueBatch(jobs []queue.Job) (added, depth int, err error)
	Depth() int
	Capacity() int
}

// Options holds the collaborators of a Bridge.
type Options struct {
	MQTT   MQTTClient
	Topics mqtt.Topics
	Queue  Enqueuer
	QoS    byte
	Logger Logger
}

type outMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// pendingCommand tracks the jobs of one command until all are done.
type pendingCommand struct {
	msg       CommandMessage
	device    string
	remaining int
	sent      int
	failed    int
	firstErr  *AckError

	// queuedSent and finished order the queued ack before the final one.
	queuedSent bool
	finished   bool
}

// Bridge turns MQTT command messages into queued jobs and reports their
// outcome, every transmission and service health back over MQTT.
//
// It implements queue.JobObserver and dispatch.Recorder.
type Bridge struct {
	mqtt   MQTTClient
	topics mqtt.Topics
	queue  Enqueuer
	qos    byte
	logger Logger

	pendingMu sync.Mutex
	pending   map[uuid.UUID]*pendingCommand

	outbox   chan outMsg
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a bridge. Call Start to subscribe.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	topics := opts.Topics
	if topics.Prefix == "" {
		topics = mqtt.NewTopics("")
	}
	return &Bridge{
		mqtt:    opts.MQTT,
		topics:  topics,
		queue:   opts.Queue,
		qos:     opts.QoS,
		logger:  logger,
		pending: make(map[uuid.UUID]*pendingCommand),
		outbox:  make(chan outMsg, outboxSize),
		done:    make(chan struct{}),
	}, nil
}

// Start starts the publisher goroutine and subscribes to command topics.
func (b *Bridge) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.publishLoop(ctx)

	topic := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(topic, b.qos, b.HandleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", topic)
	return nil
}

// Stop unsubscribes and flushes queued messages. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if err := b.mqtt.Unsubscribe(b.topics.AllCommands()); err != nil {
			b.logger.Debug("unsubscribe failed", "error", err)
		}
		close(b.done)
		b.wg.Wait()
		b.logger.Info("mqtt bridge stopped")
	})
}

// HandleCommand is the subscription handler for command topics.
func (b *Bridge) HandleCommand(topic string, payload []byte) error {
	name, ok := b.topics.DeviceFromTopic(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.ack(AckMessage{
			Device: name,
			Status: AckFailed,
			Error:  &AckError{Code: ErrCodeInvalidParameters, Message: "invalid JSON payload"},
		})
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Device != "" {
		name = msg.Device
	}
	msg.Command = strings.TrimSpace(msg.Command)

	b.logger.Info("received command",
		"command_id", msg.ID,
		"device", name,
		"command", msg.Command,
		"source", msg.Source,
	)

	if err := msg.Validate(); err != nil {
		b.logger.Warn("command rejected", "command_id", msg.ID, "device", name, "error", err)
		b.ack(AckMessage{
			CommandID: msg.ID,
			Device:    name,
			Command:   msg.Command,
			Status:    AckFailed,
			Error:     &AckError{Code: ErrCodeInvalidParameters, Message: err.Error()},
		})
		return nil
	}

	jobs := queue.Expand(name, msg.Command, msg.Count, b.queue.Free(), msg.Options(), queue.SourceMQTT)
	if len(jobs) == 0 {
		b.ack(AckMessage{
			CommandID: msg.ID,
			Device:    name,
			Status:    AckFailed,
			Error:     &AckError{Code: ErrCodeInvalidCommand, Message: "Missing 'command'"},
		})
		return nil
	}

	pc := &pendingCommand{msg: msg, device: name, remaining: len(jobs)}
	b.pendingMu.Lock()
	for _, j := range jobs {
		b.pending[j.ID] = pc
	}
	b.pendingMu.Unlock()

	added, depth, err := b.queue.EnqueueBatch(jobs)
	if err != nil {
		b.forget(jobs)
		code := ErrCodeInvalidCommand
		text := err.Error()
		if errors.Is(err, queue.ErrQueueFull) {
			code = ErrCodeQueueFull
			text = fmt.Sprintf("Queue full (%d/%d)", b.queue.Depth(), b.queue.Capacity())
		}
		b.logger.Warn("command rejected", "command_id", msg.ID, "device", name, "error", err)
		b.ack(AckMessage{
			CommandID: msg.ID,
			Device:    name,
			Command:   msg.Command,
			Status:    AckFailed,
			Error:     &AckError{Code: code, Message: text},
		})
		return nil
	}

	if added < len(jobs) {
		b.logger.Warn("command partially queued", "command_id", msg.ID, "device", name,
			"enqueued", added, "dropped", len(jobs)-added)
		b.forget(jobs[added:])
	}

	b.ack(AckMessage{
		CommandID: msg.ID,
		Device:    name,
		Command:   msg.Command,
		Status:    AckQueued,
		Enqueued:  added,
		Pending:   depth,
	})

	b.pendingMu.Lock()
	pc.queuedSent = true
	finished := pc.finished
	b.pendingMu.Unlock()
	if finished {
		b.ackFinal(pc)
	}
	return nil
}

// forget drops jobs that never reached the queue from their command's count.
func (b *Bridge) forget(jobs []queue.Job) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	for _, j := range jobs {
		pc, ok := b.pending[j.ID]
		if !ok {
			continue
		}
		delete(b.pending, j.ID)
		pc.remaining--
		if pc.remaining == 0 && pc.sent+pc.failed > 0 {
			pc.finished = true
		}
	}
}

// JobDone implements queue.JobObserver. Jobs not submitted over MQTT are ignored.
func (b *Bridge) JobDone(job queue.Job, res dispatch.Result) {
	b.pendingMu.Lock()
	pc, ok := b.pending[job.ID]
	if !ok {
		b.pendingMu.Unlock()
		return
	}
	delete(b.pending, job.ID)
	pc.remaining--
	if res.OK() {
		pc.sent++
	} else {
		pc.failed++
		if pc.firstErr == nil {
			msg, _ := res.Body["error"].(string) //nolint:errcheck // empty message is acceptable
			pc.firstErr = &AckError{Code: errorCodeFor(res), Message: msg, Status: res.Status}
		}
	}
	publish := false
	if pc.remaining == 0 {
		pc.finished = true
		publish = pc.queuedSent
	}
	b.pendingMu.Unlock()

	if publish {
		b.ackFinal(pc)
	}
}

func (b *Bridge) ackFinal(pc *pendingCommand) {
	ack := AckMessage{
		CommandID: pc.msg.ID,
		Device:    pc.device,
		Command:   pc.msg.Command,
		Status:    AckAccepted,
		Sent:      pc.sent,
		Failed:    pc.failed,
	}
	if pc.failed > 0 {
		ack.Status = AckFailed
		ack.Error = pc.firstErr
	}
	b.ack(ack)
}

// RecordTransmission implements dispatch.Recorder.
func (b *Bridge) RecordTransmission(ev dispatch.TransmissionEvent) {
	if ev.Device == "" {
		return
	}
	b.enqueueJSON(b.topics.State(ev.Device), NewStateMessage(ev), false)
}

// PendingCommands returns how many MQTT jobs are awaiting completion.
func (b *Bridge) PendingCommands() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return len(b.pending)
}

func (b *Bridge) ack(msg AckMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	b.enqueueJSON(b.topics.Ack(msg.Device), msg, false)
}

func (b *Bridge) enqueueJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("failed to marshal message", "topic", topic, "error", err)
		return
	}
	select {
	case b.outbox <- outMsg{topic: topic, payload: payload, qos: b.qos, retained: retained}:
	default:
		b.logger.Warn("dropping message", "topic", topic, "error", ErrOutboxFull)
	}
}

// publishLoop drains the outbox. On stop it publishes what is already queued.
func (b *Bridge) publishLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case m := <-b.outbox:
			b.publish(m)
		case <-ctx.Done():
			b.drain()
			return
		case <-b.done:
			b.drain()
			return
		}
	}
}

func (b *Bridge) drain() {
	for {
		select {
		case m := <-b.outbox:
			b.publish(m)
		default:
			return
		}
	}
}

func (b *Bridge) publish(m outMsg) {
	if err := b.mqtt.Publish(m.topic, m.payload, m.qos, m.retained); err != nil {
		b.logger.Warn("publish failed", "topic", m.topic, "error", err)
	}
}
