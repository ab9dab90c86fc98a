package client

import (
	"sync"
	"time"
)

// Timer is a single-shot cancellable timer. Stop is idempotent: stopping a
// timer that already fired or was already stopped is a no-op.
type Timer interface {
	Stop()
}

// Scheduler provides the current time and single-shot timers
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// loopScheduler runs timer callbacks on the client loop instead of the timer goroutine
type loopScheduler struct {
	loop *Loop
}

// NewLoopScheduler returns a wall-clock scheduler whose callbacks are posted to loop
func NewLoopScheduler(loop *Loop) Scheduler {
	return &loopScheduler{loop: loop}
}

func (s *loopScheduler) Now() time.Time {
	return time.Now()
}

func (s *loopScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		s.loop.Post(func() {
			// Stop may have raced with the post; honor it
			if t.fire() {
				f()
			}
		})
	})
	return t
}

type loopTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (t *loopTimer) fire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (t *loopTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.timer.Stop()
}

// expiring holds at most one pending timer
type expiring struct {
	timer Timer
}

// set cancels any pending timer and arms a new one
func (e *expiring) set(s Scheduler, d time.Duration, f func()) {
	e.cancel()
	var armed Timer
	armed = s.AfterFunc(d, func() {
		if e.timer == armed {
			e.timer = nil
		}
		f()
	})
	e.timer = armed
}

func (e *expiring) cancel() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *expiring) pending() bool {
	return e.timer != nil
}
