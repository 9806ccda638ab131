package lookup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/runger/singleselect/internal/item"
)

// DefaultDelay is the quiet period after the last Schedule call before the
// lookup fires. Keystrokes inside the window collapse into one request.
const DefaultDelay = 50 * time.Millisecond

// Timer is the cancellable handle returned by an AfterFunc.
type Timer interface {
	Stop() bool
}

// AfterFunc starts a timer that calls f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Result is a successful lookup that is still current when it completes.
type Result struct {
	Trigger  string
	Sequence uint64
	Items    []item.Item
}

// Hooks connect a Scheduler to the state it serves. Hooks are invoked
// without the scheduler lock held, so they may call back into IsCurrent.
type Hooks struct {
	// Current returns the service and input text at fire time. A nil
	// service skips the call and runs Refresh instead.
	Current func() (Service, string)

	// Refresh rebuilds options from the static or empty source.
	Refresh func(trigger string)

	// OnResult receives a successful, current lookup result.
	OnResult func(Result)
}

// Scheduler debounces lookup requests. At most one timer is pending and only
// the request carrying the latest sequence token may deliver results.
type Scheduler struct {
	mu       sync.Mutex
	hooks    Hooks
	delay    time.Duration
	timeout  time.Duration
	after    AfterFunc
	logger   *slog.Logger
	newID    func() string
	timer    Timer
	timerGen uint64 // Only the timer carrying the latest generation may fire
	seq      uint64 // Sequence token of the latest issued request
	cancel   context.CancelFunc
	stopped  bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithDelay sets the debounce delay.
func WithDelay(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithTimeout bounds each Service call. Zero means no timeout.
func WithTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.timeout = d
	}
}

// WithAfterFunc replaces time.AfterFunc, for tests.
func WithAfterFunc(f AfterFunc) SchedulerOption {
	return func(s *Scheduler) {
		if f != nil {
			s.after = f
		}
	}
}

// WithLogger sets the logger used to report lookup failures.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScheduler creates a Scheduler driving hooks.
func NewScheduler(hooks Hooks, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		hooks:  hooks,
		delay:  DefaultDelay,
		after:  stdAfterFunc,
		logger: slog.Default(),
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Schedule cancels any pending timer and starts a new one. When it fires the
// current input text and service are read, not the ones at schedule time.
func (s *Scheduler) Schedule(trigger string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	if s.stopped {
		return
	}
	s.timerGen++
	gen := s.timerGen
	s.timer = s.after(s.delay, func() {
		s.fire(trigger, gen)
	})
}

// Cancel drops the pending timer, if any. An in-flight request is left
// running; its result is still delivered if no newer request is issued.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
}

// Stop cancels the pending timer and any in-flight request. Later Schedule
// calls are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.stopTimerLocked()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// IsCurrent reports whether seq is the latest issued sequence token.
func (s *Scheduler) IsCurrent(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && seq == s.seq
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// A timer that already fired but has not yet taken the lock must not run.
	s.timerGen++
}

func (s *Scheduler) fire(trigger string, gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.timerGen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	var (
		svc  Service
		text string
	)
	if s.hooks.Current != nil {
		svc, text = s.hooks.Current()
	}
	if svc == nil {
		if s.hooks.Refresh != nil {
			s.hooks.Refresh(trigger)
		}
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	// A newer request supersedes the in-flight one.
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	s.cancel = cancel
	s.mu.Unlock()

	req := Request{
		InputText:     text,
		Sequence:      seq,
		CorrelationID: s.newID(),
		Trigger:       trigger,
	}
	env, err := svc.Lookup(ctx, req)

	s.mu.Lock()
	current := !s.stopped && seq == s.seq
	if current {
		s.cancel = nil
	}
	s.mu.Unlock()
	cancel()

	if !current {
		s.logger.Debug("discarding stale lookup response",
			"sequence", seq,
			"correlation_id", req.CorrelationID,
			"error", err,
		)
		return
	}
	if err != nil {
		s.logger.Error("selection service failed",
			"trigger", trigger,
			"sequence", seq,
			"correlation_id", req.CorrelationID,
			"error", err,
		)
		return
	}
	if s.hooks.OnResult != nil {
		s.hooks.OnResult(Result{Trigger: trigger, Sequence: seq, Items: env.Items()})
	}
}
