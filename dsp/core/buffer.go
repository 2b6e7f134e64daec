package core

import "github.com/cwbudde/algo-vecmath"

// CopyStereo copies both channels of a stereo block. It is the passthrough
// used by nodes that cannot or must not process.
func CopyStereo(leftIn, rightIn, leftOut, rightOut []float64) {
	copy(leftOut, leftIn)
	copy(rightOut, rightIn)
}

// ScaleStereo multiplies both channels by gain in place. Unity gain leaves
// the samples untouched.
func ScaleStereo(left, right []float64, gain float64) {
	if gain == 1 {
		return
	}

	vecmath.ScaleBlockInPlace(left, gain)
	vecmath.ScaleBlockInPlace(right, gain)
}

// Peak returns the largest absolute sample of buf, or 0 for an empty block.
func Peak(buf []float64) float64 {
	if len(buf) == 0 {
		return 0
	}

	return vecmath.MaxAbs(buf)
}

// HoldPeaks raises each held value to the peak of the matching block.
// Extra blocks or held slots are ignored.
func HoldPeaks(held []float64, blocks ...[]float64) {
	for i := range min(len(held), len(blocks)) {
		held[i] = max(held[i], Peak(blocks[i]))
	}
}
