package queue

import (
	"context"
	"errors"
	"testing"
)

func TestQueueDrainRunsOnceInOrder(t *testing.T) {
	t.Parallel()

	q := New(4)

	var got []int

	for i := range 3 {
		if err := q.Enqueue(Func(func(context.Context) error {
			got = append(got, i)
			return nil
		})); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	n, err := q.Drain(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n != 3 || len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Fatalf("Drain() ran %d ops, got %v", n, got)
	}

	n, _ = q.Drain(context.Background())
	if n != 0 || len(got) != 3 {
		t.Fatalf("second Drain() ran %d ops, want 0", n)
	}
}

func TestQueueFullAndClosed(t *testing.T) {
	t.Parallel()

	q := New(1)
	noop := Func(func(context.Context) error { return nil })

	if err := q.Enqueue(noop); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := q.Enqueue(noop); !errors.Is(err, ErrFull) {
		t.Fatalf("Enqueue() error = %v, want ErrFull", err)
	}

	q.Close()

	if err := q.Enqueue(noop); !errors.Is(err, ErrClosed) {
		t.Fatalf("Enqueue() error = %v, want ErrClosed", err)
	}

	if n, _ := q.Drain(context.Background()); n != 0 {
		t.Fatalf("Drain() after Close ran %d ops", n)
	}
}

func TestQueueReentrantEnqueueWaitsForNextDrain(t *testing.T) {
	t.Parallel()

	q := New(4)
	second := 0

	_ = q.Enqueue(Func(func(context.Context) error {
		return q.Enqueue(Func(func(context.Context) error {
			second++
			return nil
		}))
	}))

	if n, err := q.Drain(context.Background()); n != 1 || err != nil {
		t.Fatalf("Drain() = %d, %v", n, err)
	}

	if second != 0 {
		t.Fatal("op enqueued during Drain ran in the same Drain")
	}

	if n, _ := q.Drain(context.Background()); n != 1 || second != 1 {
		t.Fatalf("next Drain() = %d, second = %d", n, second)
	}
}

func TestQueueDrainJoinsErrors(t *testing.T) {
	t.Parallel()

	q := New(2)
	errA := errors.New("a")
	errB := errors.New("b")

	_ = q.Enqueue(Func(func(context.Context) error { return errA }))
	_ = q.Enqueue(Func(func(context.Context) error { return errB }))

	n, err := q.Drain(context.Background())
	if n != 2 {
		t.Fatalf("Drain() ran %d ops, want 2", n)
	}

	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Drain() error = %v, want both errors", err)
	}
}
