package mqttbridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hifilink/hifilink/internal/infrastructure/mqtt"
	"github.com/hifilink/hifilink/internal/queue"
)

// DefaultHealthInterval is used when no interval is configured.
const DefaultHealthInterval = 30 * time.Second

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// QueueStats reports queue occupancy. *queue.Queue implements it.
type QueueStats interface {
	Depth() int
	Capacity() int
}

// WorkerStats reports worker counters. *queue.Worker implements it.
type WorkerStats interface {
	Stats() queue.Stats
}

// DeviceCounter reports the number of configured devices.
// *device.Registry implements it.
type DeviceCounter interface {
	GetDeviceCount() int
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Service  string
	Version  string
	Topic    string
	Interval time.Duration

	Publisher HealthPublisher
	Queue     QueueStats
	Worker    WorkerStats
	Devices   DeviceCounter
}

// HealthReporter publishes a retained health message at a fixed interval.
type HealthReporter struct {
	service   string
	version   string
	topic     string
	startTime time.Time
	interval  time.Duration

	publisher HealthPublisher
	queue     QueueStats
	worker    WorkerStats
	devices   DeviceCounter

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a new health reporter. Call Start to begin.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	service := cfg.Service
	if service == "" {
		service = "hifilink"
	}
	topic := cfg.Topic
	if topic == "" {
		topic = mqtt.NewTopics("").Health()
	}

	return &HealthReporter{
		service:   service,
		version:   cfg.Version,
		topic:     topic,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		queue:     cfg.Queue,
		worker:    cfg.Worker,
		devices:   cfg.Devices,
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// Start begins periodic health reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	if err := h.publishStatus(HealthStarting, "service starting"); err != nil {
		h.logError("failed to publish starting status", err)
	}
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// Snapshot builds the current health message without publishing it.
func (h *HealthReporter) Snapshot() HealthMessage {
	status, reason := h.determineStatus()
	return h.build(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.worker != nil && !h.worker.Stats().Running {
		return HealthDegraded, "queue worker not running"
	}
	if h.queue != nil && h.queue.Capacity() > 0 && h.queue.Depth() >= h.queue.Capacity() {
		return HealthDegraded, "queue full"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) build(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Service:       h.service,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
	}
	if h.devices != nil {
		msg.Devices = h.devices.GetDeviceCount()
	}
	if h.queue != nil {
		msg.Queue = &QueueHealth{Depth: h.queue.Depth(), Capacity: h.queue.Capacity()}
	}
	if h.worker != nil {
		stats := h.worker.Stats()
		msg.Worker = &stats
	}
	return msg
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(h.build(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()
	logger.Error(msg, "error", err)
}
