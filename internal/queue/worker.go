package queue

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hifilink/hifilink/internal/dispatch"
	"github.com/hifilink/hifilink/internal/protocol"
)

// Logger is the logging interface used by the worker.
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

// Sender performs one transmission. *dispatch.Dispatcher implements it.
type Sender interface {
	Send(ctx context.Context, name, command string, opts protocol.Options) dispatch.Result
}

// JobObserver is told the outcome of every job the worker consumes.
// JobDone runs on the worker goroutine and must not block.
type JobObserver interface {
	JobDone(job Job, res dispatch.Result)
}

// JobObserverFunc adapts a function to JobObserver.
type JobObserverFunc func(job Job, res dispatch.Result)

// JobDone implements JobObserver.
func (f JobObserverFunc) JobDone(job Job, res dispatch.Result) { f(job, res) }

// Stats is a snapshot of worker counters.
type Stats struct {
	Running       bool      `json:"running"`
	Processed     uint64    `json:"processed"`
	Failed        uint64    `json:"failed"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorAt   time.Time `json:"last_error_at,omitzero"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitzero"`
}

// DefaultHeartbeat is how often an idle worker records that it is alive.
const DefaultHeartbeat = 20 * time.Millisecond

// Worker is the single consumer of a Queue.
type Worker struct {
	queue     *Queue
	sender    Sender
	heartbeat time.Duration
	logger    Logger

	mu        sync.RWMutex
	observers []JobObserver
	stats     Stats
}

// NewWorker creates a worker draining q through sender.
func NewWorker(q *Queue, sender Sender) *Worker {
	return &Worker{
		queue:     q,
		sender:    sender,
		heartbeat: DefaultHeartbeat,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the worker.
func (w *Worker) SetLogger(logger Logger) {
	w.logger = logger
}

// SetHeartbeat sets the idle heartbeat period. Non-positive values are ignored.
func (w *Worker) SetHeartbeat(d time.Duration) {
	if d > 0 {
		w.heartbeat = d
	}
}

// AddObserver registers o. Call before Run.
func (w *Worker) AddObserver(o JobObserver) {
	w.mu.Lock()
	w.observers = append(w.observers, o)
	w.mu.Unlock()
}

// Stats returns a copy of the current counters.
func (w *Worker) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// Run consumes jobs until ctx is cancelled. Jobs still queued at that point
// are left in the queue.
func (w *Worker) Run(ctx context.Context) error {
	w.setRunning(true)
	defer w.setRunning(false)

	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()

	w.logger.Info("queue worker started", "capacity", w.queue.Capacity())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("queue worker stopped", "pending", w.queue.Depth())
			return ctx.Err()
		case job := <-w.queue.Jobs():
			w.process(ctx, job)
		case now := <-ticker.C:
			w.mu.Lock()
			w.stats.LastHeartbeat = now.UTC()
			w.mu.Unlock()
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	res := w.send(dispatch.WithSource(ctx, job.Source), job)

	w.mu.Lock()
	w.stats.Processed++
	if !res.OK() {
		w.stats.Failed++
		w.stats.LastError = errorText(res)
		w.stats.LastErrorAt = time.Now().UTC()
	}
	observers := w.observers
	w.mu.Unlock()

	if !res.OK() {
		w.logger.Warn("queued send failed",
			"job_id", job.ID.String(),
			"device", job.Device,
			"command", job.Command,
			"status", res.Status,
			"error", errorText(res),
		)
	} else {
		w.logger.Debug("queued send done",
			"job_id", job.ID.String(),
			"device", job.Device,
			"command", job.Command,
			"wait", time.Since(job.EnqueuedAt).String(),
		)
	}

	for _, o := range observers {
		o.JobDone(job, res)
	}
}

// send calls the sender and turns a panic into a 500 result so one bad job
// cannot stop the worker.
func (w *Worker) send(ctx context.Context, job Job) (res dispatch.Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic during send: %v", r)
			w.logger.Error("recovered panic in queue worker",
				"job_id", job.ID.String(),
				"device", job.Device,
				"panic", r,
			)
			res = dispatch.Result{
				Status: http.StatusInternalServerError,
				Body:   map[string]any{"error": err.Error()},
				Err:    err,
			}
		}
	}()
	return w.sender.Send(ctx, job.Device, job.Command, job.Options)
}

func (w *Worker) setRunning(running bool) {
	w.mu.Lock()
	w.stats.Running = running
	w.mu.Unlock()
}

func errorText(res dispatch.Result) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	if msg, ok := res.Body["error"].(string); ok {
		return msg
	}
	return http.StatusText(res.Status)
}
