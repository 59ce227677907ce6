package mqttbridge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hifilink/hifilink/internal/device"
	"github.com/hifilink/hifilink/internal/dispatch"
	"github.com/hifilink/hifilink/internal/protocol"
	"github.com/hifilink/hifilink/internal/queue"
)

// CommandMessage is published by producers to request a transmission.
// Topic: hifilink/command/{device}
type CommandMessage struct {
	// ID correlates the command with its acknowledgements. One is generated
	// when absent.
	ID string `json:"id"`

	// Device overrides the topic's device segment when set.
	Device string `json:"device,omitempty"`

	// Command is one command name or a comma-separated list.
	Command string `json:"command"`

	// Repetitions overrides the device's frame repetition count.
	Repetitions *int `json:"repetitions,omitempty"`

	// Count sends each command this many times.
	Count int `json:"count,omitempty"`

	// Source names the producer, for logs only.
	Source string `json:"source,omitempty"`
}

// Options converts the message's overrides for the dispatcher.
func (m CommandMessage) Options() protocol.Options {
	if m.Repetitions == nil {
		return protocol.Options{}
	}
	return protocol.WithRepetitions(*m.Repetitions)
}

// Validate checks count and repetitions against their limits.
func (m CommandMessage) Validate() error {
	if err := queue.ValidateCount(m.Count); err != nil {
		return err
	}
	return m.Options().Validate()
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckQueued indicates the command's jobs are waiting in the queue.
	AckQueued AckStatus = "queued"

	// AckAccepted indicates every job of the command was transmitted.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command was rejected or a job failed.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: hifilink/ack/{device}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device"`
	Command   string    `json:"command,omitempty"`
	Status    AckStatus `json:"status"`

	// Enqueued and Pending are set on queued acks.
	Enqueued int `json:"enqueued,omitempty"`
	Pending  int `json:"pending,omitempty"`

	// Sent and Failed count jobs on final acks.
	Sent   int `json:"sent,omitempty"`
	Failed int `json:"failed,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the error code (e.g., "QUEUE_FULL", "INVALID_COMMAND").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Status is the HTTP-style status of the failed send, when there was one.
	Status int `json:"status,omitempty"`
}

// Error codes for command failures.
const (
	ErrCodeQueueFull         = "QUEUE_FULL"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeSetupUnsupported  = "SETUP_UNSUPPORTED"
	ErrCodeProtocolError     = "PROTOCOL_ERROR"
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// errorCodeFor classifies a failed dispatcher result.
func errorCodeFor(res dispatch.Result) string {
	switch {
	case errors.Is(res.Err, device.ErrDeviceNotFound):
		return ErrCodeNotConfigured
	case errors.Is(res.Err, protocol.ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(res.Err, context.Canceled), errors.Is(res.Err, context.DeadlineExceeded):
		return ErrCodeBridgeError
	}
	switch res.Status {
	case http.StatusNotFound:
		return ErrCodeInvalidCommand
	case http.StatusBadRequest, http.StatusConflict:
		return ErrCodeInvalidParameters
	case http.StatusMethodNotAllowed:
		return ErrCodeSetupUnsupported
	case http.StatusNotImplemented:
		return ErrCodeProtocolError
	default:
		return ErrCodeDeviceUnreachable
	}
}

// StateMessage reports one transmission.
// Topic: hifilink/state/{device}
// QoS: configured, Retained: No
type StateMessage struct {
	Device      string    `json:"device"`
	Timestamp   time.Time `json:"timestamp"`
	Protocol    string    `json:"protocol,omitempty"`
	Command     string    `json:"command"`
	Source      string    `json:"source,omitempty"`
	Success     bool      `json:"success"`
	Status      int       `json:"status"`
	Code        int       `json:"code,omitempty"`
	Repetitions int       `json:"repetitions,omitempty"`
	DurationMS  float64   `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
}

// NewStateMessage converts a transmission event.
func NewStateMessage(ev dispatch.TransmissionEvent) StateMessage {
	ts := ev.At.UTC()
	if ev.At.IsZero() {
		ts = time.Now().UTC()
	}
	return StateMessage{
		Device:      ev.Device,
		Timestamp:   ts,
		Protocol:    ev.Protocol,
		Command:     ev.Command,
		Source:      ev.Source,
		Success:     ev.Success(),
		Status:      ev.Status,
		Code:        ev.Code,
		Repetitions: ev.Repetitions,
		DurationMS:  float64(ev.Duration) / float64(time.Millisecond),
		Error:       ev.Error,
	}
}

// HealthStatus represents the operational status of the service.
type HealthStatus string

const (
	// HealthHealthy indicates the broker is connected and the worker running.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the service is running with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the service is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the service is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports service health.
// Topic: hifilink/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Service       string       `json:"service"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Reason        string       `json:"reason,omitempty"`
	Devices       int          `json:"devices"`
	Queue         *QueueHealth `json:"queue,omitempty"`
	Worker        *queue.Stats `json:"worker,omitempty"`
}

// QueueHealth is the queue section of a health message.
type QueueHealth struct {
	Depth    int `json:"depth"`
	Capacity int `json:"capacity"`
}
