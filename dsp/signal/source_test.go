package signal

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-fxgraph/dsp/core"
	"github.com/cwbudde/algo-fxgraph/internal/testutil"
)

func TestNewSourceValidation(t *testing.T) {
	opts := []core.ProcessorOption{core.WithSampleRate(48000)}

	if _, err := NewSource(30000, 1, opts); err == nil {
		t.Fatal("expected error above nyquist")
	}

	if _, err := NewSource(440, -1, opts); err == nil {
		t.Fatal("expected error for negative amplitude")
	}

	if _, err := NewSource(440, 0.5, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSourcePhaseContinuity(t *testing.T) {
	opts := []core.ProcessorOption{core.WithSampleRate(48000)}

	whole, err := NewSource(1000, 0.5, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	split, err := NewSource(1000, 0.5, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wl := make([]float64, 200)
	wr := make([]float64, 200)
	whole.Fill(wl, wr)

	sl := make([]float64, 200)
	sr := make([]float64, 200)
	split.Fill(sl[:73], sr[:73])
	split.Fill(sl[73:], sr[73:])

	testutil.RequireSliceNearlyEqual(t, sl, wl, 1e-12)
	testutil.RequireSliceNearlyEqual(t, sr, wr, 1e-12)

	if peak := testutil.Peak(wl); math.Abs(peak-0.5) > 0.01 {
		t.Fatalf("peak = %f, want 0.5", peak)
	}
}

func TestSourcePanAndNoise(t *testing.T) {
	opts := []core.ProcessorOption{core.WithSampleRate(48000)}

	s, err := NewSource(1000, 1, opts, WithPan(-1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l := make([]float64, 64)
	r := make([]float64, 64)
	s.Fill(l, r)

	for i := range r {
		if math.Abs(r[i]) > 1e-12 {
			t.Fatalf("right[%d] = %g, want silence for hard-left pan", i, r[i])
		}
	}

	a, _ := NewSource(0, 0, opts, WithNoise(0.1), WithSeed(7))
	b, _ := NewSource(0, 0, opts, WithNoise(0.1), WithSeed(7))

	al, ar := make([]float64, 32), make([]float64, 32)
	bl, br := make([]float64, 32), make([]float64, 32)
	a.Fill(al, ar)
	b.Fill(bl, br)

	for i := range al {
		if al[i] != bl[i] || ar[i] != br[i] {
			t.Fatalf("sample %d: seeded noise differs", i)
		}

		if math.Abs(al[i]) > 0.1 {
			t.Fatalf("noise sample %g exceeds amplitude", al[i])
		}
	}
}
