package dispatch

import (
	"context"
	"time"
)

// Result is the outcome of a dispatcher operation: an HTTP-style status, the
// response body and, on failure, the underlying error.
type Result struct {
	Status int
	Body   map[string]any
	Err    error
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool {
	return r.Err == nil && r.Status < 400
}

func failure(err error, message string) Result {
	return Result{
		Status: StatusFor(err),
		Body:   map[string]any{"error": message},
		Err:    err,
	}
}

func failureErr(err error) Result {
	return failure(err, err.Error())
}

// TransmissionEvent describes one Send, successful or not.
type TransmissionEvent struct {
	Device      string        `json:"device"`
	Protocol    string        `json:"protocol,omitempty"`
	Command     string        `json:"command"`
	Source      string        `json:"source,omitempty"`
	Status      int           `json:"status"`
	Code        int           `json:"code,omitempty"`
	Repetitions int           `json:"repetitions,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
	Error       string        `json:"error,omitempty"`
	At          time.Time     `json:"at"`
}

// Success reports whether the transmission went out.
func (e TransmissionEvent) Success() bool {
	return e.Status < 400
}

// Recorder observes transmissions. RecordTransmission is called synchronously
// after every Send and must not block.
type Recorder interface {
	RecordTransmission(ev TransmissionEvent)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ev TransmissionEvent)

// RecordTransmission implements Recorder.
func (f RecorderFunc) RecordTransmission(ev TransmissionEvent) { f(ev) }

type sourceKey struct{}

// WithSource tags ctx with the producer of a request (api, ws, mqtt, timer, cli).
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the source set by WithSource, or "direct".
func SourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return "direct"
}
