package effectchain

import (
	"slices"
	"testing"

	"github.com/cwbudde/algo-fxgraph/host/graph"
)

func TestSpectrumPassesAudioAndReportsBands(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, ManagerConfig{PostMessages: true})

	s, err := NewSpectrum(m, "spectrum")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got [][]float64

	s.Levels().Connect(func(levels []float64) { got = append(got, levels) })

	freqs := s.Frequencies()
	if len(freqs) == 0 || !slices.IsSorted(freqs) {
		t.Fatalf("unexpected band frequencies: %v", freqs)
	}

	for block := range 10 {
		l, r := sineBlock(512, 1000, 48000, 0.5, block*512)
		in := &graph.Buffer{Left: l, Right: r}
		out := graph.NewBuffer(512)

		s.process(in, out)

		if !slices.Equal(out.Left, l) || !slices.Equal(out.Right, r) {
			t.Fatalf("block %d: spectrum altered the audio", block)
		}
	}

	if n := m.Dispatcher().Drain(); n != 1 {
		t.Fatalf("drained=%d, want 1", n)
	}

	if len(got) != 1 {
		t.Fatalf("levels emitted %d times, want 1", len(got))
	}

	if len(got[0]) != len(freqs) {
		t.Fatalf("bands=%d, want %d", len(got[0]), len(freqs))
	}

	if n := s.FFTFailures(); n != 0 {
		t.Fatalf("fft dropped %d frames", n)
	}

	s.Close()

	for block := range 20 {
		l, r := sineBlock(512, 1000, 48000, 0.5, block*512)
		s.process(&graph.Buffer{Left: l, Right: r}, graph.NewBuffer(512))
	}

	if n := m.Dispatcher().Drain(); n != 0 {
		t.Fatalf("closed spectrum posted %d notifications", n)
	}
}
