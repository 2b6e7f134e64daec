// Package testutil holds signal generators and tolerance checks shared by
// the pipeline tests.
package testutil

import "math"

// StereoSine returns one block of a sine starting at sample offset. The
// right channel carries the left at half amplitude so channel mixups show.
func StereoSine(n int, freqHz, sampleRate, amplitude float64, offset int) (left, right []float64) {
	left = make([]float64, n)
	right = make([]float64, n)

	step := 2 * math.Pi * freqHz / sampleRate
	for i := range n {
		v := amplitude * math.Sin(step*float64(offset+i))
		left[i] = v
		right[i] = 0.5 * v
	}

	return left, right
}

// Peak returns the largest absolute sample.
func Peak(x []float64) float64 {
	p := 0.0
	for _, v := range x {
		p = max(p, math.Abs(v))
	}

	return p
}
