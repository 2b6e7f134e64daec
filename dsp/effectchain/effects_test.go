package effectchain

import (
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwbudde/algo-fxgraph/host/graph"
)

func newTestEffects(t *testing.T, m *Manager, spectrum bool) *Effects {
	t.Helper()

	e, err := NewEffects(m, EffectsConfig{
		Name: "output",
		Nodes: []NodeConfig{
			{Name: "compressor", Kind: KindCompressor},
			{Name: "limiter", Kind: KindLimiter},
			{Name: "compressor2", Kind: KindCompressor},
		},
		Spectrum: spectrum,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return e
}

func TestEffectsInitialChain(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, ManagerConfig{})
	e := newTestEffects(t, m, true)

	if got := e.Chain(); !slices.Equal(got, []string{"compressor", "limiter", "compressor2"}) {
		t.Fatalf("chain=%v", got)
	}

	if got, _ := e.Settings().GetStrv(KeyPlugins); !slices.Equal(got, []string{"compressor", "limiter", "compressor2"}) {
		t.Fatalf("plugins=%v", got)
	}

	if got := e.NodeNames(); !slices.Equal(got, []string{"compressor", "compressor2", "limiter"}) {
		t.Fatalf("node names=%v", got)
	}

	if e.Last() != e.Spectrum().Element() {
		t.Fatal("spectrum should follow the output boundary")
	}

	if m.Group().Store("output.limiter") == nil {
		t.Fatal("node settings missing from the manager group")
	}

	if _, err := e.Node("missing"); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("err=%v, want ErrUnknownNode", err)
	}
}

func TestEffectsRejectsBadNodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		nodes []NodeConfig
	}{
		{name: "unknown kind", nodes: []NodeConfig{{Name: "x", Kind: "reverb"}}},
		{name: "reserved name", nodes: []NodeConfig{{Name: InputBoundary, Kind: KindLimiter}}},
		{name: "duplicate name", nodes: []NodeConfig{{Name: "x", Kind: KindLimiter}, {Name: "x", Kind: KindLimiter}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newTestManager(t, ManagerConfig{})

			if _, err := NewEffects(m, EffectsConfig{Name: "fx", Nodes: tt.nodes}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEffectsReorderWhileStopped(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, ManagerConfig{})
	e := newTestEffects(t, m, false)

	// Without a running stream the probe runs before SetOrder returns.
	order := []string{"compressor2", "compressor", "limiter"}
	if err := e.SetOrder(order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := e.Chain(); !slices.Equal(got, order) {
		t.Fatalf("chain=%v, want %v", got, order)
	}

	if e.Watcher().Relinks() != 1 {
		t.Fatalf("relinks=%d, want 1", e.Watcher().Relinks())
	}

	if err := e.SetOrder([]string{"compressor"}); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("err=%v, want ErrInvalidOrder", err)
	}
}

func TestManagerLiveReorderAndTeardown(t *testing.T) {
	t.Parallel()

	var sunk atomic.Uint64

	m := newTestManager(t, ManagerConfig{
		SampleRate:         48000,
		BlockSize:          64,
		Quantum:            time.Millisecond,
		NotificationWindow: 10 * time.Millisecond,
		PostMessages:       true,
		Source: func(out *graph.Buffer) {
			l, r := sineBlock(out.Len(), 440, 48000, 0.5, 0)
			copy(out.Left, l)
			copy(out.Right, r)
		},
		Sink: func(*graph.Buffer) { sunk.Add(1) },
	})
	e := newTestEffects(t, m, true)

	fx, err := e.Node("compressor")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	comp := fx.(*Compressor)

	var notes atomic.Int32

	comp.Notifications().Connect(func(Notification) { notes.Add(1) })

	var bands atomic.Int32

	e.Spectrum().Levels().Connect(func(levels []float64) { bands.Store(int32(len(levels))) })

	if err := m.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Cleanup(func() { _ = m.Close() })

	waitFor(t, "audio through the compressor", func() bool { return comp.Processed() > 0 })
	waitFor(t, "a notification", func() bool { return notes.Load() > 0 })
	waitFor(t, "spectrum levels", func() bool { return bands.Load() > 0 })

	order := []string{"limiter", "compressor2", "compressor"}
	if err := e.SetOrder(order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, "the relink", func() bool { return e.Watcher().Relinks() == 1 })

	if got := e.Chain(); !slices.Equal(got, order) {
		t.Fatalf("chain=%v, want %v", got, order)
	}

	blocks := m.Stream().Blocks()
	waitFor(t, "audio after the relink", func() bool { return m.Stream().Blocks() > blocks+5 })

	if err := comp.Teardown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if comp.Filter().Connected() || comp.Filter().Active() {
		t.Fatal("filter still connected after teardown")
	}

	processed := comp.Processed()
	blocks = m.Stream().Blocks()

	waitFor(t, "more blocks", func() bool { return m.Stream().Blocks() > blocks+10 })

	if got := comp.Processed(); got != processed {
		t.Fatalf("processed %d blocks after teardown", got-processed)
	}

	if sunk.Load() == 0 {
		t.Fatal("sink never received audio")
	}

	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.Running() {
		t.Fatal("manager still running after Close")
	}
}
