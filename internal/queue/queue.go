package queue

import (
	"errors"
	"net/http"
	"time"
)

// DefaultCapacity is the queue size when none is configured.
const DefaultCapacity = 64

// Queue is a bounded FIFO of jobs. Any number of goroutines may enqueue;
// exactly one Worker should consume.
type Queue struct {
	jobs chan Job
}

// New creates a queue holding at most capacity jobs. A capacity below one
// uses DefaultCapacity.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Queue{jobs: make(chan Job, capacity)}
}

// Enqueue adds job without blocking and returns the depth after the add.
// At capacity it returns ErrQueueFull and the queue is unchanged.
func (q *Queue) Enqueue(job Job) (int, error) {
	if err := job.Validate(); err != nil {
		return q.Depth(), err
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	select {
	case q.jobs <- job:
		return q.Depth(), nil
	default:
		return q.Depth(), ErrQueueFull
	}
}

// EnqueueBatch adds jobs in order until the queue fills. It returns how many
// were added and the resulting depth, and ErrQueueFull only when none fit.
func (q *Queue) EnqueueBatch(jobs []Job) (int, int, error) {
	added := 0
	for _, job := range jobs {
		if _, err := q.Enqueue(job); err != nil {
			if added == 0 {
				return 0, q.Depth(), err
			}
			break
		}
		added++
	}
	return added, q.Depth(), nil
}

// Depth is the number of jobs waiting.
func (q *Queue) Depth() int {
	return len(q.jobs)
}

// Capacity is the maximum number of waiting jobs.
func (q *Queue) Capacity() int {
	return cap(q.jobs)
}

// Free is the number of jobs that can be added before the queue is full.
// Never less than one, so a full queue still yields a job to reject.
func (q *Queue) Free() int {
	return max(q.Capacity()-q.Depth(), 1)
}

// Jobs exposes the receive side for the worker.
func (q *Queue) Jobs() <-chan Job {
	return q.jobs
}

// QueuedBody is the 202 response for accepted jobs. command is omitted when
// the request named several commands.
func QueuedBody(device, command string, added, depth int) map[string]any {
	body := map[string]any{
		"status":   "queued",
		"device":   device,
		"enqueued": added,
		"pending":  depth,
	}
	if command != "" {
		body["command"] = command
	}
	return body
}

// FullBody is the 429 response when nothing fit.
func (q *Queue) FullBody() map[string]any {
	return map[string]any{
		"error":  "Queue full",
		"queued": q.Depth(),
		"max":    q.Capacity(),
	}
}

// Submit enqueues jobs and builds the HTTP-style status and body shared by
// the request layers.
func (q *Queue) Submit(device, command string, jobs []Job) (int, map[string]any) {
	added, depth, err := q.EnqueueBatch(jobs)
	if err != nil {
		if errors.Is(err, ErrQueueFull) {
			return http.StatusTooManyRequests, q.FullBody()
		}
		return http.StatusBadRequest, map[string]any{"error": err.Error()}
	}
	return http.StatusAccepted, QueuedBody(device, command, added, depth)
}
