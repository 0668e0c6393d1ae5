// Package loop provides the single-goroutine executor that every handler,
// connection event and file transfer step runs on. Blocking work happens on
// helper goroutines which hand their results back with Post.
package loop

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by Run when the loop was stopped explicitly.
var ErrStopped = errors.New("loop stopped")

// Loop runs posted tasks one at a time, in posting order.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
	once    sync.Once
}

func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post schedules fn to run on the loop. It never blocks and is safe to call
// from any goroutine, including from a task running on the loop. It returns
// false once the loop has been stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of tasks waiting to run.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Run executes tasks until ctx is cancelled or Stop is called. Tasks still
// queued at that point are dropped.
func (l *Loop) Run(ctx context.Context) error {
	for {
		for _, fn := range l.drain() {
			select {
			case <-l.done:
				return ErrStopped
			default:
			}
			fn()
		}

		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.done:
			return ErrStopped
		case <-l.wake:
		}
	}
}

// Stop ends Run and makes further Post calls fail.
func (l *Loop) Stop() {
	l.once.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	})
}

// Done is closed when the loop has been stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) drain() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	tasks := l.queue
	l.queue = nil
	return tasks
}
