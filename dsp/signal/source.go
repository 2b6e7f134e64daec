// Package signal generates deterministic stereo test material block by block.
package signal

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/algo-fxgraph/dsp/core"
)

// Source produces a continuous stereo tone with optional noise. The phase is
// carried across Fill calls, so consecutive blocks form one signal.
type Source struct {
	cfg core.ProcessorConfig

	freqHz    float64
	amplitude float64
	noise     float64
	pan       float64

	phase float64
	rng   *rand.Rand
}

// Option configures a Source.
type Option func(*Source)

// WithSeed sets the noise seed.
func WithSeed(seed int64) Option {
	return func(s *Source) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithNoise mixes white noise at the given linear amplitude into both channels.
func WithNoise(amplitude float64) Option {
	return func(s *Source) {
		s.noise = amplitude
	}
}

// WithPan sets the tone balance in [-1, 1], -1 being hard left.
func WithPan(pan float64) Option {
	return func(s *Source) {
		s.pan = core.Clamp(pan, -1, 1)
	}
}

// NewSource creates a tone source.
func NewSource(freqHz, amplitude float64, coreOpts []core.ProcessorOption, opts ...Option) (*Source, error) {
	cfg := core.ApplyProcessorOptions(coreOpts...)

	if freqHz < 0 || freqHz >= cfg.SampleRate/2 || !core.IsFinite(freqHz) {
		return nil, fmt.Errorf("signal: frequency must be in [0, nyquist): %f", freqHz)
	}

	if amplitude < 0 || !core.IsFinite(amplitude) {
		return nil, fmt.Errorf("signal: amplitude must be >= 0 and finite: %f", amplitude)
	}

	s := &Source{
		cfg:       cfg,
		freqHz:    freqHz,
		amplitude: amplitude,
		rng:       rand.New(rand.NewSource(1)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Config returns the processor configuration.
func (s *Source) Config() core.ProcessorConfig { return s.cfg }

// Fill writes the next min(len(left), len(right)) samples.
func (s *Source) Fill(left, right []float64) {
	n := min(len(left), len(right))
	step := 2 * math.Pi * s.freqHz / s.cfg.SampleRate
	gl := s.amplitude * math.Sqrt(0.5*(1-s.pan))
	gr := s.amplitude * math.Sqrt(0.5*(1+s.pan))

	// Center pan gives unit gain per channel.
	gl *= math.Sqrt2
	gr *= math.Sqrt2

	for i := range n {
		v := math.Sin(s.phase)
		l, r := v*gl, v*gr

		if s.noise > 0 {
			l += s.noise * (2*s.rng.Float64() - 1)
			r += s.noise * (2*s.rng.Float64() - 1)
		}

		left[i], right[i] = l, r

		s.phase += step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
}

// Reset restarts the tone at phase zero.
func (s *Source) Reset() { s.phase = 0 }
