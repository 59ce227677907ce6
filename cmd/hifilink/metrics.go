package main

import (
	"github.com/hifilink/hifilink/internal/dispatch"
	"github.com/hifilink/hifilink/internal/infrastructure/influxdb"
	"github.com/hifilink/hifilink/internal/queue"
)

// metricsWriter is the part of *influxdb.Client the recorder writes through.
type metricsWriter interface {
	WriteTransmission(t influxdb.Transmission)
	WriteQueueDepth(depth, capacity int)
}

// queueGauge reports queue occupancy.
type queueGauge interface {
	Depth() int
	Capacity() int
}

// metricsRecorder writes every transmission to InfluxDB and samples queue
// depth after each job the worker finishes.
type metricsRecorder struct {
	writer metricsWriter
	queue  queueGauge
}

// RecordTransmission implements dispatch.Recorder.
func (m metricsRecorder) RecordTransmission(ev dispatch.TransmissionEvent) {
	m.writer.WriteTransmission(influxdb.Transmission{
		Device:      ev.Device,
		Protocol:    ev.Protocol,
		Command:     ev.Command,
		Source:      ev.Source,
		Status:      ev.Status,
		Repetitions: ev.Repetitions,
		Duration:    ev.Duration,
		At:          ev.At,
	})
}

// JobDone implements queue.JobObserver.
func (m metricsRecorder) JobDone(queue.Job, dispatch.Result) {
	if m.queue == nil {
		return
	}
	m.writer.WriteQueueDepth(m.queue.Depth(), m.queue.Capacity())
}
