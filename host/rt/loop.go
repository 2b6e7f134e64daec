package rt

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotRunning is returned when an operation needs a running thread loop.
var ErrNotRunning = errors.New("rt: thread loop not running")

// ThreadLoop runs cycle callbacks on a dedicated goroutine. The loop lock is
// held for the whole of every cycle.
type ThreadLoop struct {
	name    string
	quantum time.Duration
	log     zerolog.Logger

	mu   sync.Mutex
	cond *sync.Cond

	cycles []func()

	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	running atomic.Bool
	count   atomic.Uint64
}

// NewThreadLoop creates a stopped loop. quantum is the period between cycles.
func NewThreadLoop(name string, quantum time.Duration, log zerolog.Logger) *ThreadLoop {
	l := &ThreadLoop{
		name:    name,
		quantum: quantum,
		log:     log.With().Str("loop", name).Logger(),
		wake:    make(chan struct{}, 1),
	}
	l.cond = sync.NewCond(&l.mu)

	return l
}

// AddCycle registers fn to run on every cycle, in registration order.
func (l *ThreadLoop) AddCycle(fn func()) {
	l.mu.Lock()
	l.cycles = append(l.cycles, fn)
	l.mu.Unlock()
}

// Start launches the loop goroutine.
func (l *ThreadLoop) Start() error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("rt: thread loop already running")
	}

	l.stop = make(chan struct{})
	l.done = make(chan struct{})

	go l.run(l.stop, l.done)

	l.log.Debug().Dur("quantum", l.quantum).Msg("thread loop started")

	return nil
}

// Stop ends the loop and waits for the current cycle to finish. It must not
// be called with the loop lock held.
func (l *ThreadLoop) Stop() {
	if !l.running.CompareAndSwap(true, false) {
		return
	}

	close(l.stop)
	<-l.done

	// Release anyone still blocked in Wait.
	l.mu.Lock()
	l.cond.Broadcast()
	l.mu.Unlock()

	l.log.Debug().Uint64("cycles", l.count.Load()).Msg("thread loop stopped")
}

// Running reports whether the loop goroutine is active.
func (l *ThreadLoop) Running() bool { return l.running.Load() }

// Cycles returns the number of completed cycles.
func (l *ThreadLoop) Cycles() uint64 { return l.count.Load() }

// Lock acquires the loop lock, excluding cycles until Unlock.
func (l *ThreadLoop) Lock() { l.mu.Lock() }

// Unlock releases the loop lock.
func (l *ThreadLoop) Unlock() { l.mu.Unlock() }

// Wait releases the loop lock until Signal is called, then reacquires it.
// The caller must hold the lock.
func (l *ThreadLoop) Wait() { l.cond.Wait() }

// Signal wakes every goroutine blocked in Wait.
func (l *ThreadLoop) Signal() { l.cond.Broadcast() }

// Wake requests an extra cycle without waiting for the next quantum.
func (l *ThreadLoop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *ThreadLoop) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.quantum)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		case <-l.wake:
		}

		l.mu.Lock()
		for _, fn := range l.cycles {
			fn()
		}
		l.mu.Unlock()

		l.count.Add(1)
	}
}
