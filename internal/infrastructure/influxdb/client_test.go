package influxdb

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/hifilink/hifilink/internal/infrastructure/config"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "hifilink-dev-token",
		Org:           "hifilink",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION=1 to run against InfluxDB at 127.0.0.1:8086")
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestBatchSettings(t *testing.T) {
	tests := []struct {
		name      string
		batch     int
		flush     int
		wantBatch uint
		wantFlush uint
	}{
		{"configured", 50, 2, 50, 2},
		{"zero uses defaults", 0, 0, defaultBatchSize, defaultFlushInterval},
		{"negative uses defaults", -5, -1, defaultBatchSize, defaultFlushInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.BatchSize = tt.batch
			cfg.FlushInterval = tt.flush

			batch, flush := batchSettings(cfg)
			if batch != tt.wantBatch || flush != tt.wantFlush {
				t.Errorf("batchSettings() = %d, %d; want %d, %d", batch, flush, tt.wantBatch, tt.wantFlush)
			}
		})
	}
}

func TestTransmissionPoint(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	p := transmissionPoint(Transmission{
		Device:      "deck",
		Protocol:    "KENWOOD_XS8",
		Command:     "play",
		Source:      "mqtt",
		Status:      200,
		Repetitions: 1,
		Duration:    1500 * time.Microsecond,
		At:          at,
	})

	if p.Name() != MeasurementTransmission {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	wantTags := map[string]string{"device": "deck", "protocol": "KENWOOD_XS8", "source": "mqtt", "success": "true"}
	for k, v := range wantTags {
		if tags[k] != v {
			t.Errorf("tag %s = %q, want %q", k, tags[k], v)
		}
	}

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["command"] != "play" {
		t.Errorf("field command = %v", fields["command"])
	}
	if fields["duration_ms"] != 1.5 {
		t.Errorf("field duration_ms = %v, want 1.5", fields["duration_ms"])
	}
}

func TestTransmissionPoint_Failure(t *testing.T) {
	p := transmissionPoint(Transmission{Device: "amp", Protocol: "IR", Command: "nope", Status: 404})

	for _, tag := range p.TagList() {
		switch tag.Key {
		case "success":
			if tag.Value != "false" {
				t.Errorf("success tag = %q, want false", tag.Value)
			}
		case "source":
			if tag.Value != "direct" {
				t.Errorf("source tag = %q, want direct", tag.Value)
			}
		}
	}
	if p.Time().IsZero() {
		t.Error("zero At should default to now")
	}
}

func TestUnconnectedClientIsNoop(t *testing.T) {
	c := &Client{}

	// Neither call may touch the nil write API.
	c.WriteTransmission(Transmission{Device: "amp"})
	c.WriteQueueDepth(1, 64)
	c.Flush()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("HealthCheck() error = %v, want ErrClosed", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if c.PointsWritten() != 0 {
		t.Errorf("PointsWritten() = %d, want 0", c.PointsWritten())
	}
}

type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func TestDrainWriteErrors(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{bucket: "hifi"}
	c.SetLogger(logger)

	errs := make(chan error, 2)
	errs <- errors.New("401 unauthorized")
	errs <- errors.New("connection refused")
	close(errs)
	c.drainWriteErrors(errs)

	if c.WriteFailures() != 2 {
		t.Errorf("WriteFailures() = %d, want 2", c.WriteFailures())
	}
	if len(logger.msgs) != 2 || logger.msgs[0] != "metrics batch dropped" {
		t.Errorf("logged = %v", logger.msgs)
	}
}

func TestConnectAndWrite(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := Connect(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteTransmission(Transmission{Device: "deck", Protocol: "KENWOOD_XS8", Command: "play", Status: 200})
	client.WriteQueueDepth(3, 64)
	client.Flush()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if client.PointsWritten() != 2 {
		t.Errorf("PointsWritten() = %d, want 2", client.PointsWritten())
	}
	if client.WriteFailures() != 0 {
		t.Errorf("WriteFailures() = %d, want 0", client.WriteFailures())
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrClosed", err)
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	skipIfNoInfluxDB(t)

	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"
	if _, err := Connect(context.Background(), cfg); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Connect() error = %v, want ErrUnreachable", err)
	}
}
