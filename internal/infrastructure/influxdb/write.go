package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by hifilink.
const (
	MeasurementTransmission = "transmission"
	MeasurementQueue        = "queue"
)

// Transmission describes one completed send for the metrics sink.
type Transmission struct {
	Device      string
	Protocol    string
	Command     string
	Source      string
	Status      int
	Repetitions int
	Duration    time.Duration
	At          time.Time
}

// WriteTransmission records a send. The write is non-blocking.
//
// Example:
//
//	client.WriteTransmission(influxdb.Transmission{
//	    Device: "deck", Protocol: "KENWOOD_XS8", Command: "play", Status: 200,
//	})
func (c *Client) WriteTransmission(t Transmission) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(transmissionPoint(t))
	c.points.Add(1)
}

// WriteQueueDepth records queue occupancy, sampled after each finished job.
func (c *Client) WriteQueueDepth(depth, capacity int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(queuePoint(depth, capacity, time.Now()))
	c.points.Add(1)
}

// transmissionPoint tags by the low-cardinality dimensions and keeps the
// command name as a field.
func transmissionPoint(t Transmission) *write.Point {
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	source := t.Source
	if source == "" {
		source = "direct"
	}
	return write.NewPoint(
		MeasurementTransmission,
		map[string]string{
			"device":   t.Device,
			"protocol": t.Protocol,
			"source":   source,
			"success":  boolTag(t.Status < 400),
		},
		map[string]interface{}{
			"command":     t.Command,
			"status":      t.Status,
			"repetitions": t.Repetitions,
			"duration_ms": float64(t.Duration) / float64(time.Millisecond),
		},
		at,
	)
}

func queuePoint(depth, capacity int, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementQueue,
		nil,
		map[string]interface{}{
			"depth":    depth,
			"capacity": capacity,
		},
		at,
	)
}

func boolTag(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
