package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hifilink/hifilink/internal/protocol"
)

// Job sources.
const (
	SourceAPI   = "api"
	SourceWS    = "ws"
	SourceMQTT  = "mqtt"
	SourceTimer = "timer"
	SourceCLI   = "cli"
)

// Job is one queued command. ID is only for log and ack correlation; the
// queue itself is strictly FIFO.
type Job struct {
	ID         uuid.UUID        `json:"id"`
	Device     string           `json:"device"`
	Command    string           `json:"command"`
	Options    protocol.Options `json:"-"`
	Source     string           `json:"source"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
}

// NewJob builds a job with a fresh ID.
func NewJob(device, command string, opts protocol.Options, source string) Job {
	return Job{
		ID:      uuid.New(),
		Device:  device,
		Command: command,
		Options: opts,
		Source:  source,
	}
}

// Validate checks the fields a worker needs.
func (j Job) Validate() error {
	if j.Device == "" {
		return fmt.Errorf("%w: device is required", ErrInvalidJob)
	}
	if j.Command == "" {
		return fmt.Errorf("%w: command is required", ErrInvalidJob)
	}
	return nil
}

// MaxCount bounds how many times one request may send each command.
const MaxCount = 64

// ValidateCount rejects a count above MaxCount. Counts below one mean one.
func ValidateCount(count int) error {
	if count > MaxCount {
		return fmt.Errorf("%w: %d exceeds %d", ErrCountTooLarge, count, MaxCount)
	}
	return nil
}

// Expand turns a comma-separated command list into jobs, each command
// repeated count times before the next. Empty entries are skipped and count
// is clamped to [1, MaxCount]. A positive limit caps the number of jobs
// returned; queued callers pass the free space so nothing is built that
// could not be enqueued.
func Expand(device, commands string, count, limit int, opts protocol.Options, source string) []Job {
	count = min(max(count, 1), MaxCount)
	names := splitCommands(commands)
	n := len(names) * count
	if limit > 0 {
		n = min(n, limit)
	}
	jobs := make([]Job, 0, n)
	for _, c := range names {
		for range count {
			if len(jobs) == n {
				return jobs
			}
			jobs = append(jobs, NewJob(device, c, opts, source))
		}
	}
	return jobs
}

func splitCommands(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsMulti reports whether commands names more than one command.
func IsMulti(commands string) bool {
	return len(splitCommands(commands)) > 1
}
