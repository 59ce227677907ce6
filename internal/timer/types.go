package timer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hifilink/hifilink/internal/protocol"
)

// Type is how a timer behaves after it fires.
type Type string

const (
	// TypeOnce timers are deleted after firing.
	TypeOnce Type = "once"

	// TypeInterval timers re-arm IntervalSeconds after their trigger time.
	TypeInterval Type = "interval"
)

// Validation limits.
const (
	maxLabelLength = 100
	maxActions     = 50
	maxDelayMS     = 300000
)

// DefaultDelay is the pause between actions when an action sets no delay_ms.
const DefaultDelay = time.Second

// Action is one command sent when a timer fires.
type Action struct {
	Device      string `json:"device"`
	Command     string `json:"command"`
	Repetitions *int   `json:"repetitions,omitempty"`

	// DelayMS is the pause after this action before the next one.
	DelayMS *int `json:"delay_ms,omitempty"`
}

// UnmarshalJSON accepts "action" as an alias for "command".
func (a *Action) UnmarshalJSON(data []byte) error {
	type plain Action
	var aux struct {
		plain
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*a = Action(aux.plain)
	if a.Command == "" {
		a.Command = aux.Action
	}
	return nil
}

// Options converts the action's overrides for the dispatcher.
func (a Action) Options() protocol.Options {
	if a.Repetitions == nil {
		return protocol.Options{}
	}
	return protocol.WithRepetitions(*a.Repetitions)
}

// Delay returns the pause after this action, or def when unset.
func (a Action) Delay(def time.Duration) time.Duration {
	if a.DelayMS == nil {
		return def
	}
	return time.Duration(max(0, *a.DelayMS)) * time.Millisecond
}

// Timer is a scheduled sequence of actions.
type Timer struct {
	ID              string    `json:"id"`
	Type            Type      `json:"type"`
	Label           string    `json:"label"`
	TriggerAt       time.Time `json:"trigger_at"`
	IntervalSeconds int       `json:"interval_seconds,omitempty"`
	Actions         []Action  `json:"actions"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Interval is the re-arm period of an interval timer.
func (t *Timer) Interval() time.Duration {
	return time.Duration(t.IntervalSeconds) * time.Second
}

// Due reports whether t should fire at now.
func (t *Timer) Due(now time.Time) bool {
	return t.Enabled && !t.TriggerAt.After(now)
}

// NextTrigger returns the first trigger time after now for an interval
// timer. Missed periods are skipped rather than replayed.
func (t *Timer) NextTrigger(now time.Time) time.Time {
	interval := t.Interval()
	if interval <= 0 {
		return now
	}
	next := t.TriggerAt.Add(interval)
	if !next.After(now) {
		missed := now.Sub(t.TriggerAt) / interval
		next = t.TriggerAt.Add((missed + 1) * interval)
	}
	return next
}

// CreateRequest is the input for a new timer. TriggerAt wins over
// DelayMinutes; with neither the timer is due immediately.
type CreateRequest struct {
	Type            Type       `json:"type"`
	Label           string     `json:"label"`
	TriggerAt       *time.Time `json:"trigger_at,omitempty"`
	DelayMinutes    int        `json:"delay_minutes,omitempty"`
	IntervalSeconds int        `json:"interval_seconds,omitempty"`
	Actions         []Action   `json:"actions"`
	Enabled         *bool      `json:"enabled,omitempty"`
}

// Build creates a validated Timer with a fresh ID.
func (r CreateRequest) Build(now time.Time) (*Timer, error) {
	now = now.UTC().Truncate(time.Second)
	t := &Timer{
		ID:              uuid.New().String(),
		Type:            r.Type,
		Label:           strings.TrimSpace(r.Label),
		TriggerAt:       now.Add(time.Duration(max(0, r.DelayMinutes)) * time.Minute),
		IntervalSeconds: r.IntervalSeconds,
		Actions:         r.Actions,
		Enabled:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if t.Type == "" {
		t.Type = TypeOnce
	}
	if r.TriggerAt != nil {
		t.TriggerAt = r.TriggerAt.UTC().Truncate(time.Second)
	}
	if r.Enabled != nil {
		t.Enabled = *r.Enabled
	}
	if err := Validate(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks a timer before it is stored.
func Validate(t *Timer) error {
	if t == nil {
		return ErrInvalidTimer
	}
	switch t.Type {
	case TypeOnce:
	case TypeInterval:
		if t.IntervalSeconds < 1 {
			return fmt.Errorf("%w: interval timers need interval_seconds >= 1", ErrInvalidTimer)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTimer, t.Type)
	}
	if len(t.Label) > maxLabelLength {
		return fmt.Errorf("%w: label exceeds %d characters", ErrInvalidTimer, maxLabelLength)
	}
	if t.TriggerAt.IsZero() {
		return fmt.Errorf("%w: trigger_at is required", ErrInvalidTimer)
	}
	if len(t.Actions) == 0 {
		return fmt.Errorf("%w: at least one action is required", ErrInvalidTimer)
	}
	if len(t.Actions) > maxActions {
		return fmt.Errorf("%w: exceeds maximum of %d actions", ErrInvalidTimer, maxActions)
	}
	for i, a := range t.Actions {
		if a.Device == "" || a.Command == "" {
			return fmt.Errorf("%w: action %d needs device and command", ErrInvalidTimer, i)
		}
		if a.DelayMS != nil && (*a.DelayMS < 0 || *a.DelayMS > maxDelayMS) {
			return fmt.Errorf("%w: action %d delay_ms must be 0-%d", ErrInvalidTimer, i, maxDelayMS)
		}
		if err := a.Options().Validate(); err != nil {
			return fmt.Errorf("%w: action %d: %w", ErrInvalidTimer, i, err)
		}
	}
	return nil
}
