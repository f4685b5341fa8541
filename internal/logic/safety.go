package logic

import (
	"time"

	"github.com/sweeney/stove-controller/internal/clock"
)

// SafetySignal debounces one monitored input. A loss becomes a trip only if
// it persists for the hold-off; a recovery inside the hold-off cancels it.
type SafetySignal struct {
	name      string
	holdoff   time.Duration
	sched     clock.Scheduler
	trip      func()
	confirmed bool // last confirmed value: true = present
	since     time.Time
	pending   timerSlot
}

// NewSafetySignal creates a signal that calls trip once per confirmed loss.
func NewSafetySignal(name string, holdoff time.Duration, sched clock.Scheduler, trip func()) *SafetySignal {
	return &SafetySignal{
		name:      name,
		holdoff:   holdoff,
		sched:     sched,
		trip:      trip,
		confirmed: true,
	}
}

// Name returns the signal name.
func (s *SafetySignal) Name() string {
	return s.name
}

// SetHoldoff changes the hold-off used by the next countdown.
func (s *SafetySignal) SetHoldoff(d time.Duration) {
	s.holdoff = d
}

// Observe feeds a new input value. It returns true when the call changed the
// unstable status.
func (s *SafetySignal) Observe(present bool) bool {
	if present {
		s.confirmed = true
		if !s.pending.active() {
			return false
		}
		s.pending.stop()
		s.since = time.Time{}
		return true
	}
	if s.pending.active() {
		return false
	}
	s.since = s.sched.Now()
	s.pending.arm(s.sched, s.holdoff, func() {
		s.since = time.Time{}
		s.confirmed = false
		s.trip()
	})
	return true
}

// Reset cancels any pending countdown without firing it.
func (s *SafetySignal) Reset() {
	s.pending.stop()
	s.since = time.Time{}
	s.confirmed = true
}

// Unstable reports whether a loss is being debounced.
func (s *SafetySignal) Unstable() bool {
	return s.pending.active()
}

// PendingSince returns when the current countdown started, or the zero time.
func (s *SafetySignal) PendingSince() time.Time {
	return s.since
}

// Confirmed returns the last confirmed value.
func (s *SafetySignal) Confirmed() bool {
	return s.confirmed
}
