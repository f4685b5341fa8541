// Package loop provides the single goroutine on which the controller runs.
//
// Hardware edges, MQTT messages, HTTP commands and timer expiries all arrive
// on their own goroutines; they Post closures here and the loop runs them one
// at a time, in order.
package loop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sweeney/stove-controller/internal/clock"
)

// ErrStopped is returned by Call once the loop has exited.
var ErrStopped = errors.New("loop: stopped")

// Loop is a serial executor. Post is safe from any goroutine.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// New creates a loop. Nothing runs until Run is called.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post queues fn. It returns false if the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted functions until ctx is cancelled. Functions still
// queued at that point are dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.pending = nil
		l.mu.Unlock()
		close(l.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
			l.drain(ctx)
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) drain(ctx context.Context) {
	for ctx.Err() == nil {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}

// Scheduler returns a wall-clock scheduler whose callbacks run on l.
func (l *Loop) Scheduler() clock.Scheduler {
	return scheduler{loop: l}
}

type scheduler struct {
	loop *Loop
}

// timer fields other than t are only touched on the loop goroutine, which is
// also where Stop must be called.
type timer struct {
	loop    *Loop
	t       *time.Timer
	period  time.Duration
	fn      func()
	stopped bool
}

func (s scheduler) Now() time.Time {
	return time.Now()
}

func (s scheduler) After(d time.Duration, fn func()) clock.Timer {
	t := &timer{loop: s.loop, fn: fn}
	t.start(d)
	return t
}

func (s scheduler) Every(d time.Duration, fn func()) clock.Timer {
	if d <= 0 {
		d = time.Millisecond
	}
	t := &timer{loop: s.loop, fn: fn, period: d}
	t.start(d)
	return t
}

func (t *timer) start(d time.Duration) {
	t.t = time.AfterFunc(d, func() {
		t.loop.Post(t.fire)
	})
}

func (t *timer) fire() {
	if t.stopped {
		return
	}
	if t.period > 0 {
		t.start(t.period)
	} else {
		t.stopped = true
	}
	t.fn()
}

func (t *timer) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	t.t.Stop()
}
