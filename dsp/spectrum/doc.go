// Package spectrum provides the block spectrum analyzer used by the effects
// pipeline and a few bin helpers it builds on.
//
// The FFT itself comes from algo-fft, frames are shaped by a periodic Hann
// window from dsp/window, and bin magnitudes use algo-vecmath.
package spectrum
