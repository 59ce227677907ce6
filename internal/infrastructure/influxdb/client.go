package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/hifilink/hifilink/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	// A send produces one point, so the defaults flush a busy evening of
	// button presses every few seconds without holding many in memory.
	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Logger is the logging surface the client needs.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Client is the metrics sink for transmissions and queue depth.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Writes never block; points are batched by the underlying WriteAPI and
//     a failed batch is counted and logged, not retried.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string

	mu     sync.RWMutex
	open   bool
	logger Logger

	points   atomic.Uint64
	failures atomic.Uint64
}

// Connect pings the server and starts the batched write API for the
// configured bucket. It returns ErrDisabled when metrics are switched off.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize, flushSeconds := batchSettings(cfg)
	opts := influxdb2.DefaultOptions().
		SetBatchSize(batchSize).
		SetFlushInterval(flushSeconds * uint(time.Second/time.Millisecond))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	switch {
	case err != nil:
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, cfg.URL, err)
	case !healthy:
		client.Close()
		return nil, fmt.Errorf("%w: %s reports unhealthy", ErrUnreachable, cfg.URL)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
		open:     true,
		logger:   noopLogger{},
	}
	go c.drainWriteErrors(c.writeAPI.Errors())
	return c, nil
}

// batchSettings applies defaults to non-positive batch values.
func batchSettings(cfg config.InfluxDBConfig) (batchSize, flushSeconds uint) {
	batchSize = defaultBatchSize
	if cfg.BatchSize > 0 {
		batchSize = uint(cfg.BatchSize)
	}
	flushSeconds = defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flushSeconds = uint(cfg.FlushInterval)
	}
	return batchSize, flushSeconds
}

// SetLogger sets the logger for dropped batches.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// drainWriteErrors runs until the write API closes its error channel.
func (c *Client) drainWriteErrors(errs <-chan error) {
	for err := range errs {
		n := c.failures.Add(1)
		c.mu.RLock()
		logger := c.logger
		c.mu.RUnlock()
		if logger != nil {
			logger.Warn("metrics batch dropped", "bucket", c.bucket, "failures", n, "error", err)
		}
	}
}

// WriteFailures is the number of batches the server rejected or that could
// not be delivered.
func (c *Client) WriteFailures() uint64 {
	return c.failures.Load()
}

// PointsWritten is the number of points handed to the write API.
func (c *Client) PointsWritten() uint64 {
	return c.points.Load()
}

// IsConnected reports whether the client is open for writes.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrClosed
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if !healthy {
		return fmt.Errorf("%w: server reports unhealthy", ErrUnreachable)
	}
	return nil
}

// Flush blocks until buffered points are written. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending points and closes the client. Later writes are
// dropped silently.
func (c *Client) Close() error {
	c.mu.Lock()
	wasOpen := c.open
	c.open = false
	c.mu.Unlock()

	if !wasOpen || c.client == nil {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
