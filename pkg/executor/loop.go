// Package executor implements the single-threaded cooperative event loop
// that drives all SIP and RTP processing. Every mutation of transaction,
// dialog, or session state happens on the loop's own goroutine; callers on
// other goroutines (timers, transport readers) hand work over with Post and
// never touch loop-owned state directly.
package executor

import (
	"sync"
	"sync/atomic"
	"time"
)

// Loop is a single-goroutine work queue. It is the "one logical executor"
// that SIP/RTP processing runs on: once Run is started, every function
// passed to Post executes serially, in submission order, to completion
// before the next one starts.
type Loop struct {
	work    chan func()
	closed  chan struct{}
	closeMu sync.Mutex
	stopped bool
}

// New creates a Loop with the given work queue depth.
func New(queueDepth int) *Loop {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	return &Loop{
		work:   make(chan func(), queueDepth),
		closed: make(chan struct{}),
	}
}

// Run processes posted work until Stop is called. It is intended to be
// run on its own goroutine: `go loop.Run()`.
func (l *Loop) Run() {
	for {
		select {
		case fn := <-l.work:
			fn()
		case <-l.closed:
			// Drain anything already queued so deferred cleanup (timer
			// cancellation callbacks, etc.) still observes a consistent
			// final state, then exit.
			for {
				select {
				case fn := <-l.work:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Post schedules fn to run on the loop goroutine. Safe to call from any
// goroutine, including the loop's own (it will simply run after whatever
// is currently executing).
func (l *Loop) Post(fn func()) {
	select {
	case l.work <- fn:
	case <-l.closed:
	}
}

// Stop halts the loop after any already-queued work has drained.
func (l *Loop) Stop() {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	close(l.closed)
}

// Timer is a cancellable, loop-synchronized timer token. Once Cancel
// returns, the associated callback is guaranteed never to run on the loop
// afterward, even if the underlying time.Timer had already fired and the
// callback was in flight to the work queue.
type Timer struct {
	t         *time.Timer
	cancelled atomic.Bool
}

// AfterFunc arms a timer that, on expiry, posts fn onto the loop. The
// returned Timer can be cancelled synchronously from any goroutine.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	timer := &Timer{}
	timer.t = time.AfterFunc(d, func() {
		if timer.cancelled.Load() {
			return
		}
		l.Post(func() {
			if timer.cancelled.Load() {
				return
			}
			fn()
		})
	})
	return timer
}

// Cancel stops the timer. No callback fires after Cancel returns.
func (timer *Timer) Cancel() {
	timer.cancelled.Store(true)
	timer.t.Stop()
}

// Reset rearms the timer with a new duration, as if newly created.
func (timer *Timer) Reset(d time.Duration) {
	timer.cancelled.Store(false)
	timer.t.Reset(d)
}
