package client

import (
	"context"
	"sync"
)

// Loop serializes every state transition of a Client onto one goroutine.
// Handlers posted to it run to completion in post order and must not block.
type Loop struct {
	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once
}

// NewLoop creates a loop with a buffered queue
func NewLoop(size int) *Loop {
	if size <= 0 {
		size = 256
	}
	return &Loop{
		queue: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// Post enqueues f. It blocks only while the queue is full and returns false
// once the loop has stopped.
func (l *Loop) Post(f func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- f:
		return true
	case <-l.done:
		return false
	}
}

// Run drains the queue until ctx is cancelled or Stop is called
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.done:
			return nil
		case f := <-l.queue:
			f()
		}
	}
}

// Stop ends Run; pending handlers are dropped
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Done is closed when the loop stops
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
