// Package clock defines the timer contract used by the controller core and a
// manual implementation for deterministic tests.
package clock

import (
	"sort"
	"time"
)

// Timer is a cancellable handle to a scheduled callback.
// Stop is idempotent and safe to call after the callback has fired.
type Timer interface {
	Stop()
}

// Scheduler schedules delayed callbacks.
// Implementations must deliver every callback on the caller's logical thread.
type Scheduler interface {
	// After runs fn once after d.
	After(d time.Duration, fn func()) Timer

	// Every runs fn repeatedly with period d until stopped.
	Every(d time.Duration, fn func()) Timer

	// Now returns the current time.
	Now() time.Time
}

// Manual is a Scheduler driven explicitly by Advance. Not safe for concurrent use.
type Manual struct {
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	m        *Manual
	deadline time.Time
	period   time.Duration
	seq      uint64
	fn       func()
	stopped  bool
}

func (t *manualTimer) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	t.m.remove(t)
}

// NewManual creates a manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	return m.now
}

// After schedules fn at Now()+d.
func (m *Manual) After(d time.Duration, fn func()) Timer {
	return m.add(d, 0, fn)
}

// Every schedules fn at every multiple of d from Now().
// A non-positive period is treated as one nanosecond.
func (m *Manual) Every(d time.Duration, fn func()) Timer {
	if d <= 0 {
		d = time.Nanosecond
	}
	return m.add(d, d, fn)
}

func (m *Manual) add(d, period time.Duration, fn func()) *manualTimer {
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{
		m:        m,
		deadline: m.now.Add(d),
		period:   period,
		seq:      m.seq,
		fn:       fn,
	}
	m.timers = append(m.timers, t)
	return t
}

func (m *Manual) remove(t *manualTimer) {
	for i, other := range m.timers {
		if other == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

// Advance moves virtual time forward by d, firing every callback that comes
// due in deadline order (ties in scheduling order). Callbacks may schedule
// further timers; those fire too if they fall within the window.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		t := m.next()
		if t == nil || t.deadline.After(target) {
			break
		}
		m.now = t.deadline
		if t.period > 0 {
			m.seq++
			t.seq = m.seq
			t.deadline = t.deadline.Add(t.period)
		} else {
			t.stopped = true
			m.remove(t)
		}
		t.fn()
	}
	m.now = target
}

// Run drains every due callback without moving time.
func (m *Manual) Run() {
	m.Advance(0)
}

// Pending returns the number of live timers.
func (m *Manual) Pending() int {
	return len(m.timers)
}

func (m *Manual) next() *manualTimer {
	if len(m.timers) == 0 {
		return nil
	}
	sort.SliceStable(m.timers, func(i, j int) bool {
		a, b := m.timers[i], m.timers[j]
		if !a.deadline.Equal(b.deadline) {
			return a.deadline.Before(b.deadline)
		}
		return a.seq < b.seq
	})
	return m.timers[0]
}
