package audit

import (
	"context"
	"time"

	"github.com/hifilink/hifilink/internal/dispatch"
)

// writerBuffer bounds entries waiting to be written. Entries beyond it are dropped.
const writerBuffer = 256

// pruneInterval is how often Run applies the retention window.
const pruneInterval = time.Hour

// Logger is the logging interface used by the Writer.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Writer writes entries on its own goroutine. It implements dispatch.Recorder.
//
// A nil *Writer is valid and discards everything, so callers need no checks
// when auditing is disabled.
type Writer struct {
	repo      Repository
	entries   chan *Entry
	retention time.Duration
	logger    Logger
}

// NewWriter creates a Writer on repo. Call Run to start writing.
func NewWriter(repo Repository) *Writer {
	return &Writer{
		repo:    repo,
		entries: make(chan *Entry, writerBuffer),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger. Call before Run.
func (w *Writer) SetLogger(logger Logger) {
	w.logger = logger
}

// SetRetention enables hourly pruning of entries older than d. Zero keeps everything.
func (w *Writer) SetRetention(d time.Duration) {
	w.retention = d
}

// Repository returns the underlying store for queries.
func (w *Writer) Repository() Repository {
	if w == nil {
		return nil
	}
	return w.repo
}

// Log queues e for writing. It never blocks.
func (w *Writer) Log(e Entry) {
	if w == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	select {
	case w.entries <- &e:
	default:
		w.logger.Warn("audit buffer full, dropping entry", "action", e.Action, "device", e.Device)
	}
}

// RecordTransmission implements dispatch.Recorder.
func (w *Writer) RecordTransmission(ev dispatch.TransmissionEvent) {
	e := Entry{
		Action:    ActionSend,
		Device:    ev.Device,
		Command:   ev.Command,
		Source:    ev.Source,
		Status:    ev.Status,
		Error:     ev.Error,
		CreatedAt: ev.At,
	}
	if ev.Success() {
		e.Details = map[string]any{
			"protocol":    ev.Protocol,
			"repetitions": ev.Repetitions,
			"duration_ms": ev.Duration.Milliseconds(),
		}
		if ev.Code != 0 {
			e.Details["code"] = ev.Code
		}
	}
	w.Log(e)
}

// Run writes entries until ctx is cancelled, then flushes what is buffered.
func (w *Writer) Run(ctx context.Context) error {
	var prune <-chan time.Time
	if w.retention > 0 {
		w.prune(ctx)
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		prune = ticker.C
	}

	for {
		select {
		case e := <-w.entries:
			w.write(context.Background(), e)
		case <-prune:
			w.prune(ctx)
		case <-ctx.Done():
			w.flush()
			return ctx.Err()
		}
	}
}

func (w *Writer) flush() {
	for {
		select {
		case e := <-w.entries:
			w.write(context.Background(), e)
		default:
			return
		}
	}
}

func (w *Writer) write(ctx context.Context, e *Entry) {
	if err := w.repo.Create(ctx, e); err != nil {
		w.logger.Error("audit write failed", "action", e.Action, "device", e.Device, "error", err)
	}
}

func (w *Writer) prune(ctx context.Context) {
	n, err := w.repo.Prune(ctx, time.Now().Add(-w.retention))
	if err != nil {
		w.logger.Error("audit prune failed", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("audit log pruned", "deleted", n)
	}
}
