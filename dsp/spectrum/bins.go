package spectrum

import (
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-fxgraph/dsp/core"
)

// BinFrequencies fills dst with the center frequency of each FFT bin.
func BinFrequencies(dst []float64, sampleRate float64, fftSize int) {
	for k := range dst {
		dst[k] = float64(k) * sampleRate / float64(fftSize)
	}
}

// LogBands fills dst with frequencies spaced evenly on a log axis from minHz
// to maxHz inclusive. dst needs at least two entries.
func LogBands(dst []float64, minHz, maxHz float64) {
	if len(dst) < 2 {
		return
	}

	ratio := maxHz / minHz
	last := float64(len(dst) - 1)

	for i := range dst {
		dst[i] = minHz * math.Pow(ratio, float64(i)/last)
	}

	dst[len(dst)-1] = maxHz
}

// LevelsFromParts writes the level of each bin in dB into dst. mag is
// scratch of the same length. Magnitudes are divided by norm first.
func LevelsFromParts(dst, mag, re, im []float64, norm float64) {
	vecmath.Magnitude(mag, re, im)

	inv := 1 / norm
	for k, m := range mag {
		dst[k] = core.LevelDB(m * inv)
	}
}

// InterpolateLinear performs piecewise-linear interpolation of y(x) at
// queryX into dst. x must be strictly increasing and match y in length.
// Queries outside x clamp to the end values.
func InterpolateLinear(dst, x, y, queryX []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("interpolate x/y length mismatch: %d != %d", len(x), len(y))
	}

	if len(dst) < len(queryX) {
		return fmt.Errorf("interpolate dst too short: %d < %d", len(dst), len(queryX))
	}

	for i := 1; i < len(x); i++ {
		if !(x[i] > x[i-1]) {
			return fmt.Errorf("interpolate x must be strictly increasing at index %d", i)
		}
	}

	for i, q := range queryX {
		if q <= x[0] {
			dst[i] = y[0]
			continue
		}

		if q >= x[len(x)-1] {
			dst[i] = y[len(y)-1]
			continue
		}

		j := sort.SearchFloat64s(x, q)
		x0, x1 := x[j-1], x[j]
		t := (q - x0) / (x1 - x0)
		dst[i] = y[j-1] + t*(y[j]-y[j-1])
	}

	return nil
}
