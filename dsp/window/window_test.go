package window

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-fxgraph/internal/testutil"
)

func TestGoldenVectors(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		want []float64
		eps  float64
	}{
		{
			name: "hann",
			typ:  TypeHann,
			want: []float64{
				0.0, 0.1882550990706332, 0.6112604669781572, 0.9504844339512095,
				0.9504844339512095, 0.6112604669781573, 0.1882550990706333, 0.0,
			},
			eps: 1e-10,
		},
		{
			name: "hamming",
			typ:  TypeHamming,
			want: []float64{
				0.08, 0.25319469114498255, 0.6423596296199047, 0.9544456792351128,
				0.9544456792351128, 0.6423596296199048, 0.25319469114498266, 0.08,
			},
			eps: 1e-10,
		},
		{
			name: "blackman-harris",
			typ:  TypeBlackmanHarris4Term,
			want: []float64{
				0.00006, 0.03339172347815117, 0.332833504298565,
				0.8893697722232837, 0.8893697722232838, 0.3328335042985652,
				0.0333917234781512, 0.00006,
			},
			eps: 1e-10,
		},
		{
			name: "flat top",
			typ:  TypeFlatTop,
			want: []float64{
				-0.0004210510000000013, -0.03684077608132298, 0.01070371671636002,
				0.7808739149387524, 0.7808739149387525, 0.010703716716360296,
				-0.03684077608132292, -0.0004210510000000013,
			},
			eps: 1e-8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.RequireSliceNearlyEqual(t, Generate(tt.typ, 8), tt.want, tt.eps)
		})
	}
}

func TestPeriodicHann(t *testing.T) {
	w := Generate(TypeHann, 4, WithPeriodic())

	testutil.RequireSliceNearlyEqual(t, w, []float64{0, 0.5, 1, 0.5}, 1e-12)

	gain, err := CoherentGain(w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs(gain-0.5) > 1e-12 {
		t.Fatalf("coherent gain = %v, want 0.5", gain)
	}
}

func TestHannENBW(t *testing.T) {
	enbw, err := EquivalentNoiseBandwidth(Generate(TypeHann, 2048, WithPeriodic()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs(enbw-1.5) > 0.01 {
		t.Fatalf("hann ENBW = %v, want ~1.5", enbw)
	}
}

func TestApply(t *testing.T) {
	buf := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	Apply(TypeRectangular, buf)

	for i, v := range buf {
		if v != float64(i+1) {
			t.Fatalf("rectangular should be passthrough at %d: %v", i, v)
		}
	}

	Apply(TypeHann, buf)

	if buf[0] != 0 || buf[7] != 0 {
		t.Fatalf("hann edges should be 0, got %v and %v", buf[0], buf[7])
	}

	samples := []float64{1, 2, 3}
	if err := ApplyCoefficientsInPlace(samples, []float64{0.5, 0.5, 0.5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.RequireSliceNearlyEqual(t, samples, []float64{0.5, 1, 1.5}, 1e-12)
}

func TestEdgeCases(t *testing.T) {
	if Generate(TypeHann, 0) != nil {
		t.Fatal("zero length should return nil")
	}

	if w := Generate(TypeHann, 1); len(w) != 1 || w[0] != 0 {
		t.Fatalf("single sample hann = %v", w)
	}

	if err := ApplyCoefficientsInPlace([]float64{1}, []float64{1, 2}); err == nil {
		t.Fatal("expected length mismatch error")
	}

	if _, err := CoherentGain(nil); err == nil {
		t.Fatal("expected empty coefficient error")
	}

	if _, err := EquivalentNoiseBandwidth([]float64{1, -1}); err == nil {
		t.Fatal("expected zero coherent gain error")
	}
}
