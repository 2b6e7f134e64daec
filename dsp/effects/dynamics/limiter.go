package dynamics

import (
	"fmt"
)

const (
	defaultLimiterThresholdDB = -1.0
	defaultLimiterReleaseMs   = 50.0
	defaultLimiterLookaheadMs = 5.0

	minLimiterThresholdDB = -48.0
	maxLimiterThresholdDB = 0.0
)

// Limiter is a stereo-linked peak limiter with lookahead, built on a
// hard-knee compressor at maximum ratio.
type Limiter struct {
	comp *Compressor
}

// NewLimiter creates a limiter with threshold -1 dB, release 50 ms and
// 5 ms lookahead.
func NewLimiter(sampleRate float64) (*Limiter, error) {
	c, err := NewCompressor(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("limiter compressor init: %w", err)
	}

	if err := c.SetRatio(maxRatio); err != nil {
		return nil, err
	}

	if err := c.SetKnee(0); err != nil {
		return nil, err
	}

	if err := c.SetAttack(0); err != nil {
		return nil, err
	}

	if err := c.SetDetectorMode(DetectorPeak); err != nil {
		return nil, err
	}

	l := &Limiter{comp: c}
	if err := l.SetThreshold(defaultLimiterThresholdDB); err != nil {
		return nil, err
	}

	if err := l.SetRelease(defaultLimiterReleaseMs); err != nil {
		return nil, err
	}

	if err := l.SetLookahead(defaultLimiterLookaheadMs); err != nil {
		return nil, err
	}

	return l, nil
}

// SetThreshold sets the ceiling in dBFS, in [-48, 0].
func (l *Limiter) SetThreshold(dB float64) error {
	if err := validateRange("limiter threshold", dB, minLimiterThresholdDB, maxLimiterThresholdDB); err != nil {
		return err
	}

	return l.comp.SetThreshold(dB)
}

// SetAttack sets the attack time in milliseconds. The default of 0 reacts
// within one sample.
func (l *Limiter) SetAttack(ms float64) error {
	return l.comp.SetAttack(ms)
}

// SetRelease sets the release time in milliseconds.
func (l *Limiter) SetRelease(ms float64) error {
	return l.comp.SetRelease(ms)
}

// SetLookahead sets the lookahead time in milliseconds.
func (l *Limiter) SetLookahead(ms float64) error {
	return l.comp.SetLookahead(ms)
}

// SetInputBoost sets the sidechain preamp in dB, driving the limiter harder.
func (l *Limiter) SetInputBoost(dB float64) error {
	return l.comp.SetPreamp(dB)
}

// SetSampleRate updates the sample rate.
func (l *Limiter) SetSampleRate(sampleRate float64) error {
	return l.comp.SetSampleRate(sampleRate)
}

// Threshold returns the ceiling in dB.
func (l *Limiter) Threshold() float64 { return l.comp.Threshold() }

// Latency returns the lookahead delay in samples.
func (l *Limiter) Latency() int { return l.comp.Latency() }

// Meters returns the metering values of the last block.
func (l *Limiter) Meters() Meters { return l.comp.Meters() }

// Reset clears all runtime state.
func (l *Limiter) Reset() { l.comp.Reset() }

// ProcessStereo limits a stereo block.
func (l *Limiter) ProcessStereo(leftIn, rightIn, leftOut, rightOut []float64) {
	l.comp.ProcessStereo(leftIn, rightIn, leftOut, rightOut)
}
