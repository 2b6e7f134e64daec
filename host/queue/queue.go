// Package queue provides a bounded task queue that is filled from control
// goroutines and drained by the audio stream thread between blocks.
package queue

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	// ErrFull is returned when the queue has no free slot.
	ErrFull = errors.New("queue: full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("queue: closed")
)

// Op is a single-use task. It runs on the draining goroutine and should be
// quick; heavy work should be prepared before Enqueue.
type Op interface {
	Apply(ctx context.Context) error
}

// Func adapts a function into an Op.
type Func func(ctx context.Context) error

func (f Func) Apply(ctx context.Context) error { return f(ctx) }

// Queue holds pending ops. Enqueue never blocks, so it is safe to call from
// any goroutine, including the draining one.
type Queue struct {
	ch     chan Op
	closed atomic.Bool
}

// New creates a queue with the given capacity (minimum 1).
func New(capacity int) *Queue {
	return &Queue{ch: make(chan Op, max(capacity, 1))}
}

// Enqueue schedules op for the next Drain.
func (q *Queue) Enqueue(op Op) error {
	if op == nil {
		return nil
	}

	if q.closed.Load() {
		return ErrClosed
	}

	select {
	case q.ch <- op:
		return nil
	default:
		return ErrFull
	}
}

// Len returns the number of pending ops.
func (q *Queue) Len() int { return len(q.ch) }

// Drain runs the ops that were pending when it was called, each exactly once,
// in FIFO order. Ops enqueued while draining wait for the next Drain. It
// returns the number of ops run and their joined errors.
func (q *Queue) Drain(ctx context.Context) (int, error) {
	pending := len(q.ch)

	var errs []error

	ran := 0

	for range pending {
		var op Op
		select {
		case op = <-q.ch:
		default:
			return ran, errors.Join(errs...)
		}

		if q.closed.Load() {
			continue
		}

		if err := op.Apply(ctx); err != nil {
			errs = append(errs, err)
		}

		ran++
	}

	return ran, errors.Join(errs...)
}

// Close rejects further ops and discards pending ones on the next Drain.
func (q *Queue) Close() {
	q.closed.Store(true)
}

// Closed reports whether Close was called.
func (q *Queue) Closed() bool { return q.closed.Load() }
