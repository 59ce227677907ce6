package timer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hifilink/hifilink/internal/dispatch"
	"github.com/hifilink/hifilink/internal/protocol"
	"github.com/hifilink/hifilink/internal/queue"
)

// Logger is the logging interface used by the scheduler.
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

// DefaultTick is how often Run looks for due timers.
const DefaultTick = time.Second

// ActionResult is the outcome of one action of a fired timer.
type ActionResult struct {
	Device  string         `json:"device"`
	Command string         `json:"command"`
	Status  int            `json:"status"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Firing is the outcome of one timer firing.
type Firing struct {
	TimerID string         `json:"timer_id"`
	Label   string         `json:"label"`
	FiredAt time.Time      `json:"fired_at"`
	Results []ActionResult `json:"results"`
}

// Scheduler fires due timers.
//
// Thread Safety: Fire and Run may be called concurrently; firings of the same
// timer are not deduplicated.
type Scheduler struct {
	repo         Repository
	sender       Sender
	tick         time.Duration
	defaultDelay time.Duration
	logger       Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	// tickMu keeps two ticks from firing the same due timer.
	tickMu sync.Mutex
}

// NewScheduler creates a scheduler reading repo and sending through sender.
func NewScheduler(repo Repository, sender Sender) *Scheduler {
	return &Scheduler{
		repo:         repo,
		sender:       sender,
		tick:         DefaultTick,
		defaultDelay: DefaultDelay,
		logger:       noopLogger{},
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// SetTick sets the polling period. Non-positive values are ignored.
func (s *Scheduler) SetTick(d time.Duration) {
	if d > 0 {
		s.tick = d
	}
}

// SetDefaultDelay sets the pause between actions without their own delay_ms.
func (s *Scheduler) SetDefaultDelay(d time.Duration) {
	if d >= 0 {
		s.defaultDelay = d
	}
}

// Run polls for due timers until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info("timer scheduler started", "tick", s.tick.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("timer scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("timer tick failed", "error", err)
			}
		}
	}
}

// Tick fires every timer due now and returns how many fired. A one-shot
// timer is deleted before its actions run so a crash mid-sequence cannot
// replay it; an interval timer is moved to its next trigger time.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := s.now().UTC()
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}

	fired := 0
	for i := range due {
		t := &due[i]
		if err := s.rearm(ctx, t, now); err != nil {
			s.logger.Error("failed to re-arm timer", "timer_id", t.ID, "error", err)
			continue
		}
		s.fire(ctx, t)
		fired++
	}
	return fired, nil
}

// Fire runs a stored timer's actions immediately without changing its
// schedule.
func (s *Scheduler) Fire(ctx context.Context, id string) (*Firing, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.fire(ctx, t), nil
}

// FireActions runs an unsaved action list immediately.
func (s *Scheduler) FireActions(ctx context.Context, label string, actions []Action) *Firing {
	return s.fire(ctx, &Timer{Label: label, Actions: actions})
}

func (s *Scheduler) rearm(ctx context.Context, t *Timer, now time.Time) error {
	if t.Type == TypeInterval {
		t.TriggerAt = t.NextTrigger(now)
		return s.repo.Update(ctx, t)
	}
	err := s.repo.Delete(ctx, t.ID)
	if errors.Is(err, ErrTimerNotFound) {
		return nil
	}
	return err
}

func (s *Scheduler) fire(ctx context.Context, t *Timer) *Firing {
	label := t.Label
	if label == "" {
		label = "(unnamed)"
	}
	s.logger.Info("timer fired", "timer_id", t.ID, "label", label, "actions", len(t.Actions))

	firing := &Firing{
		TimerID: t.ID,
		Label:   t.Label,
		FiredAt: s.now().UTC(),
		Results: make([]ActionResult, 0, len(t.Actions)),
	}
	ctx = dispatch.WithSource(ctx, queue.SourceTimer)

	for i, a := range t.Actions {
		if a.Device != "" && a.Command != "" {
			res := s.sender.Send(ctx, a.Device, a.Command, a.Options())
			if !res.OK() {
				s.logger.Warn("timer action failed",
					"timer_id", t.ID,
					"device", a.Device,
					"command", a.Command,
					"status", res.Status,
				)
			}
			firing.Results = append(firing.Results, ActionResult{
				Device:  a.Device,
				Command: a.Command,
				Status:  res.Status,
				Payload: res.Body,
			})
		}

		if i < len(t.Actions)-1 {
			if err := s.sleep(ctx, a.Delay(s.defaultDelay)); err != nil {
				s.logger.Warn("timer sequence interrupted", "timer_id", t.ID, "error", err)
				break
			}
		}
	}
	return firing
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
