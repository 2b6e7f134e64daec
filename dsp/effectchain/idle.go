package effectchain

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const defaultDispatchQueue = 128

// Deferred is a callback posted from the realtime thread and run later by a
// Dispatcher. While it is queued further posts are dropped, so observers see
// at most one run per queued post and always read the latest values.
type Deferred struct {
	pending atomic.Bool
	fn      func()
}

// NewDeferred wraps fn.
func NewDeferred(fn func()) *Deferred { return &Deferred{fn: fn} }

// Pending reports whether the callback is queued.
func (d *Deferred) Pending() bool { return d.pending.Load() }

// Dispatcher runs deferred callbacks on its own goroutine, away from the
// realtime thread.
type Dispatcher struct {
	ch  chan *Deferred
	log zerolog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}

	dropped atomic.Uint64
}

// NewDispatcher creates a stopped dispatcher with room for capacity queued
// callbacks.
func NewDispatcher(capacity int, log zerolog.Logger) *Dispatcher {
	if capacity <= 0 {
		capacity = defaultDispatchQueue
	}

	return &Dispatcher{ch: make(chan *Deferred, capacity), log: log}
}

// Post queues d without blocking or allocating. It returns false when d was
// already queued or the queue is full.
func (q *Dispatcher) Post(d *Deferred) bool {
	if !d.pending.CompareAndSwap(false, true) {
		return false
	}

	select {
	case q.ch <- d:
		return true
	default:
		d.pending.Store(false)
		q.dropped.Add(1)

		return false
	}
}

// Dropped returns how many posts were lost to a full queue.
func (q *Dispatcher) Dropped() uint64 { return q.dropped.Load() }

// Start launches the delivery goroutine. Starting twice is a no-op.
func (q *Dispatcher) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stop != nil {
		return
	}

	q.stop = make(chan struct{})
	q.done = make(chan struct{})

	go q.run(q.stop, q.done)
}

// Stop ends the delivery goroutine and runs what is still queued.
func (q *Dispatcher) Stop() {
	q.mu.Lock()
	stop, done := q.stop, q.done
	q.stop, q.done = nil, nil
	q.mu.Unlock()

	if stop == nil {
		return
	}

	close(stop)
	<-done
	q.Drain()
}

// Drain runs every queued callback on the calling goroutine and returns how
// many ran.
func (q *Dispatcher) Drain() int {
	n := 0

	for {
		select {
		case d := <-q.ch:
			q.deliver(d)
			n++
		default:
			return n
		}
	}
}

func (q *Dispatcher) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case d := <-q.ch:
			q.deliver(d)
		}
	}
}

func (q *Dispatcher) deliver(d *Deferred) {
	// Cleared first: a post racing with delivery queues another run instead
	// of being lost.
	d.pending.Store(false)

	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Msg("deferred callback panicked")
		}
	}()

	d.fn()
}
