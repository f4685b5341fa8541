package logic

import (
	"time"

	"github.com/sweeney/stove-controller/internal/clock"
)

// timerSlot holds at most one live timer. Stopping an empty slot is a no-op.
type timerSlot struct {
	t clock.Timer
}

func (s *timerSlot) stop() {
	if s.t != nil {
		s.t.Stop()
		s.t = nil
	}
}

func (s *timerSlot) active() bool {
	return s.t != nil
}

// arm replaces whatever the slot holds with a timer firing fn after d.
// The slot empties itself when the timer fires.
func (s *timerSlot) arm(sched clock.Scheduler, d time.Duration, fn func()) {
	s.stop()
	var t clock.Timer
	t = sched.After(d, func() {
		if s.t != t {
			return
		}
		s.t = nil
		fn()
	})
	s.t = t
}
