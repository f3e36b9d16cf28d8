// Package schedule is the engine's control thread: a FIFO of posted work
// plus cancellable timers on a clockwork.Clock, and the self-rescheduling
// Repeater used for randomized one-shot events.
package schedule

import (
	"container/heap"
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Handle identifies a scheduled timer. The zero Handle is never issued.
type Handle uint64

type timer struct {
	id    Handle
	at    time.Time
	fn    func()
	index int
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].id < h[j].id
	}
	return h[i].at.Before(h[j].at)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Loop runs posted closures and due timers one at a time. Every callback runs
// on whichever goroutine drives the loop (Run, or a test calling RunPending),
// so callbacks never race with each other.
type Loop struct {
	clock  clockwork.Clock
	logger *slog.Logger

	mu     sync.Mutex
	queue  []func()
	timers timerHeap
	byID   map[Handle]*timer
	nextID Handle
	wake   chan struct{}
}

// NewLoop creates a loop on clock. A nil logger uses slog.Default.
func NewLoop(clock clockwork.Clock, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		clock:  clock,
		logger: logger,
		byID:   make(map[Handle]*timer),
		wake:   make(chan struct{}, 1),
	}
}

// Clock returns the clock timers are measured against.
func (l *Loop) Clock() clockwork.Clock { return l.clock }

// Post queues fn to run on the loop after everything already queued.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

// Schedule runs fn once d has elapsed. Timers due at the same instant run in
// the order they were scheduled.
func (l *Loop) Schedule(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	l.mu.Lock()
	l.nextID++
	t := &timer{id: l.nextID, at: l.clock.Now().Add(d), fn: fn}
	heap.Push(&l.timers, t)
	l.byID[t.id] = t
	l.mu.Unlock()
	l.signal()
	return t.id
}

// Cancel removes a pending timer. It reports whether the timer was still
// pending; cancelling a fired or unknown handle is a no-op.
func (l *Loop) Cancel(h Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.byID[h]
	if !ok {
		return false
	}
	heap.Remove(&l.timers, t.index)
	delete(l.byID, h)
	return true
}

// Pending returns the number of timers not yet fired or cancelled.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

// RunPending runs queued closures, then every timer that is due, until
// nothing runnable is left. It returns the number of callbacks run.
func (l *Loop) RunPending() int {
	n := 0
	for {
		fn := l.next()
		if fn == nil {
			return n
		}
		l.invoke(fn)
		n++
	}
}

// Run drives the loop until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()

		var (
			tm     clockwork.Timer
			expiry <-chan time.Time
		)
		if d, ok := l.untilNext(); ok {
			tm = l.clock.NewTimer(d)
			expiry = tm.Chan()
		}

		select {
		case <-ctx.Done():
			if tm != nil {
				tm.Stop()
			}
			return ctx.Err()
		case <-l.wake:
		case <-expiry:
		}
		if tm != nil {
			tm.Stop()
		}
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) > 0 {
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		return fn
	}
	if len(l.timers) > 0 && !l.timers[0].at.After(l.clock.Now()) {
		t := heap.Pop(&l.timers).(*timer)
		delete(l.byID, t.id)
		return t.fn
	}
	return nil
}

func (l *Loop) untilNext() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timers) == 0 {
		return 0, false
	}
	return l.timers[0].at.Sub(l.clock.Now()), true
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop callback panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}
