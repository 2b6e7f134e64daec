package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func gain(g float64) Processor {
	return ProcessorFunc(func(in, out *Buffer) {
		for i := range in.Left {
			out.Left[i] = in.Left[i] * g
			out.Right[i] = in.Right[i] * g
		}
	})
}

func newTestBin(t *testing.T, names ...string) *Bin {
	t.Helper()

	b := NewBin("bin")
	for _, n := range names {
		if err := b.Add(NewElement(n, nil)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	return b
}

func TestBinAddRejectsDuplicatesAndReparenting(t *testing.T) {
	t.Parallel()

	b := newTestBin(t, "a")

	if err := b.Add(NewElement("a", nil)); !errors.Is(err, ErrDuplicateElement) {
		t.Fatalf("Add() error = %v, want ErrDuplicateElement", err)
	}

	other := NewBin("other")
	if err := other.Add(b.Child("a")); !errors.Is(err, ErrHasParent) {
		t.Fatalf("Add() error = %v, want ErrHasParent", err)
	}
}

func TestBinLinkRules(t *testing.T) {
	t.Parallel()

	b := newTestBin(t, "a", "b", "c")

	if !b.Link("a", "b") {
		t.Fatal("Link(a, b) failed")
	}

	tests := []struct {
		name string
		ok   bool
		fn   func() bool
	}{
		{"src pad busy", false, func() bool { return b.Link("a", "c") }},
		{"sink pad busy", false, func() bool { return b.Link("c", "b") }},
		{"unknown child", false, func() bool { return b.Link("c", "x") }},
		{"self link", false, func() bool { return b.Link("c", "c") }},
		{"unlink missing", false, func() bool { return b.Unlink("b", "c") }},
		{"unlink reversed", false, func() bool { return b.Unlink("b", "a") }},
		{"unlink existing", true, func() bool { return b.Unlink("a", "b") }},
		{"unlink twice", false, func() bool { return b.Unlink("a", "b") }},
		{"relink freed pads", true, func() bool { return b.Link("a", "c") }},
	}

	for _, tt := range tests {
		if got := tt.fn(); got != tt.ok {
			t.Fatalf("%s: got %v, want %v", tt.name, got, tt.ok)
		}
	}

	if peer := b.Child("a").SrcPad().Peer(); peer == nil || peer.Element().Name() != "c" {
		t.Fatalf("a is linked to %v, want c", peer)
	}
}

func TestBinStatePropagationSkipsLockedChildren(t *testing.T) {
	t.Parallel()

	top := NewBin("top")
	inner := newTestBin(t, "x", "y")
	plain := NewElement("plain", nil)

	if err := top.AddBin(inner); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := top.Add(plain); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !inner.SetLockedState(true) {
		t.Fatal("SetLockedState(true) reported no change")
	}

	if inner.SetLockedState(true) {
		t.Fatal("second SetLockedState(true) reported a change")
	}

	if !top.SetState(StatePlaying) {
		t.Fatal("SetState() failed")
	}

	if plain.State() != StatePlaying {
		t.Fatalf("plain state = %s, want playing", plain.State())
	}

	if inner.State() != StateNull || inner.Child("x").State() != StateNull {
		t.Fatalf("locked bin changed state to %s", inner.State())
	}

	inner.SetLockedState(false)

	if !inner.SyncStateWithParent() {
		t.Fatal("SyncStateWithParent() failed")
	}

	if inner.Child("y").State() != StatePlaying {
		t.Fatalf("child state = %s, want playing", inner.Child("y").State())
	}
}

func TestSyncStateFailures(t *testing.T) {
	t.Parallel()

	orphan := NewElement("orphan", nil)
	if orphan.SyncStateWithParent() {
		t.Fatal("SyncStateWithParent() succeeded without a parent")
	}

	b := NewBin("b")
	refusing := NewElement("refusing", nil, WithStateChange(func(_, to State) error {
		if to == StatePlaying {
			return errors.New("refused")
		}

		return nil
	}))

	if err := b.Add(refusing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if b.SetState(StatePlaying) {
		t.Fatal("SetState() succeeded despite a refusing child")
	}

	if b.SyncChildStateWithParent("refusing") {
		t.Fatal("SyncChildStateWithParent() succeeded for a refusing child")
	}

	if b.SyncChildStateWithParent("missing") {
		t.Fatal("SyncChildStateWithParent() succeeded for a missing child")
	}
}

func TestStreamProcessesLinkedChain(t *testing.T) {
	t.Parallel()

	b := NewBin("top")
	head := NewElement("head", nil)
	double := NewElement("double", gain(2))
	triple := NewElement("triple", gain(3))

	if err := b.Add(head, double, triple); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b.Link("head", "double")
	b.Link("double", "triple")
	b.SetState(StatePlaying)

	var got []float64

	s, err := NewStream(b, head, StreamConfig{
		BlockSize: 4,
		Source: func(out *Buffer) {
			for i := range out.Left {
				out.Left[i] = 1
				out.Right[i] = -1
			}
		},
		Sink:   func(in *Buffer) { got = append([]float64(nil), in.Left...) },
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Iterate(context.Background())

	for i, v := range got {
		if v != 6 {
			t.Fatalf("sample %d = %g, want 6", i, v)
		}
	}

	double.SetState(StatePaused)
	s.Iterate(context.Background())

	if got[0] != 3 {
		t.Fatalf("paused element processed: got %g, want 3", got[0])
	}

	if s.Blocks() != 2 {
		t.Fatalf("Blocks() = %d, want 2", s.Blocks())
	}
}

func TestStreamBoundsCyclicChains(t *testing.T) {
	t.Parallel()

	b := newTestBin(t, "a", "b")
	b.Link("a", "b")
	b.Link("b", "a")

	s, err := NewStream(b, b.Child("a"), StreamConfig{BlockSize: 2, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Iterate(context.Background())

	if s.Blocks() != 1 {
		t.Fatalf("Blocks() = %d, want 1", s.Blocks())
	}
}

func TestIdleProbeTiming(t *testing.T) {
	t.Parallel()

	b := newTestBin(t, "a")

	pad := b.Child("a").SrcPad()
	if err := NewElement("loose", nil).SrcPad().AddIdleProbe(func(context.Context) error { return nil }); !errors.Is(err, ErrNoStream) {
		t.Fatalf("AddIdleProbe() error = %v, want ErrNoStream", err)
	}

	s, err := NewStream(b, b.Child("a"), StreamConfig{BlockSize: 2, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := 0
	probe := func(context.Context) error {
		calls++
		return nil
	}

	if err := pad.AddIdleProbe(probe); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 1 {
		t.Fatalf("idle stream: probe ran %d times, want 1", calls)
	}

	s.Start()

	if err := pad.AddIdleProbe(probe); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 1 {
		t.Fatal("running stream: probe ran before the next block")
	}

	s.Iterate(context.Background())
	s.Iterate(context.Background())

	if calls != 2 {
		t.Fatalf("probe ran %d times, want exactly 2", calls)
	}
}
