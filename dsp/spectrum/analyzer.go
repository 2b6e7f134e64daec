package spectrum

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/cwbudde/algo-fxgraph/dsp/core"
	"github.com/cwbudde/algo-fxgraph/dsp/window"
)

const (
	defaultFFTSize = 2048
	defaultBands   = 64
	defaultMinHz   = 20.0
	defaultMaxHz   = 20000.0
	minFFTSize     = 64
	maxFFTSize     = 1 << 16
)

// ErrInvalidConfig is returned for unusable analyzer settings.
var ErrInvalidConfig = errors.New("spectrum: invalid analyzer config")

// Config describes an Analyzer.
type Config struct {
	SampleRate float64
	// FFTSize must be a power of two in [64, 65536].
	FFTSize int
	// Overlap in [0, 0.95] sets the hop between frames.
	Overlap float64
	// Bands is the number of log-spaced output bands between MinHz and MaxHz.
	Bands int
	MinHz float64
	MaxHz float64
}

func (c Config) withDefaults() Config {
	if c.FFTSize == 0 {
		c.FFTSize = defaultFFTSize
	}

	if c.Bands == 0 {
		c.Bands = defaultBands
	}

	if c.MinHz == 0 {
		c.MinHz = defaultMinHz
	}

	if c.MaxHz == 0 {
		c.MaxHz = math.Min(defaultMaxHz, c.SampleRate*0.5)
	}

	return c
}

func (c Config) validate() error {
	switch {
	case c.SampleRate <= 0 || !core.IsFinite(c.SampleRate):
		return fmt.Errorf("%w: sample rate %f", ErrInvalidConfig, c.SampleRate)
	case c.FFTSize < minFFTSize || c.FFTSize > maxFFTSize || c.FFTSize&(c.FFTSize-1) != 0:
		return fmt.Errorf("%w: fft size %d", ErrInvalidConfig, c.FFTSize)
	case c.Overlap < 0 || c.Overlap > 0.95:
		return fmt.Errorf("%w: overlap %f", ErrInvalidConfig, c.Overlap)
	case c.Bands < 2:
		return fmt.Errorf("%w: bands %d", ErrInvalidConfig, c.Bands)
	case c.MinHz <= 0 || c.MaxHz <= c.MinHz || c.MaxHz > c.SampleRate*0.5:
		return fmt.Errorf("%w: range %f..%f Hz", ErrInvalidConfig, c.MinHz, c.MaxHz)
	}

	return nil
}

type fftPlan interface {
	Forward(dst, src []complex128) error
}

// Analyzer computes a Hann-windowed magnitude spectrum of the mono sum of a
// stereo stream, in dBFS, once per hop.
//
// An Analyzer is not safe for concurrent use.
type Analyzer struct {
	cfg  Config
	hop  int
	plan fftPlan

	window []float64
	norm   float64

	ring    []float64
	write   int
	filled  int
	sinceFr int

	frame []float64
	in    []complex128
	out   []complex128
	re    []float64
	im    []float64
	mag   []float64

	binHz  []float64
	binDB  []float64
	bandHz []float64
	bandDB []float64
	ready  bool

	failures atomic.Uint64
}

// NewAnalyzer creates an analyzer. Zero fields of cfg take defaults.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	plan, err := algofft.NewPlan64(cfg.FFTSize)
	if err != nil {
		return nil, fmt.Errorf("spectrum init fft plan: %w", err)
	}

	n := cfg.FFTSize
	bins := n/2 + 1

	a := &Analyzer{
		cfg:    cfg,
		hop:    max(int(math.Round(float64(n)*(1-cfg.Overlap))), 1),
		plan:   plan,
		window: window.Generate(window.TypeHann, n, window.WithPeriodic()),
		ring:   make([]float64, n),
		frame:  make([]float64, n),
		in:     make([]complex128, n),
		out:    make([]complex128, n),
		re:     make([]float64, bins),
		im:     make([]float64, bins),
		mag:    make([]float64, bins),
		binHz:  make([]float64, bins),
		binDB:  make([]float64, bins),
		bandHz: make([]float64, cfg.Bands),
		bandDB: make([]float64, cfg.Bands),
	}

	gain, err := window.CoherentGain(a.window)
	if err != nil {
		return nil, fmt.Errorf("spectrum init window: %w", err)
	}

	// Full-scale sine on a bin reads 0 dB.
	a.norm = 0.5 * gain * float64(n)

	BinFrequencies(a.binHz, cfg.SampleRate, n)
	LogBands(a.bandHz, cfg.MinHz, cfg.MaxHz)

	a.Reset()

	return a, nil
}

// Push feeds a stereo block. It returns true when at least one new frame was
// analyzed during this call.
func (a *Analyzer) Push(left, right []float64) bool {
	n := min(len(left), len(right))
	updated := false

	for i := range n {
		a.ring[a.write] = 0.5 * (left[i] + right[i])

		a.write++
		if a.write == len(a.ring) {
			a.write = 0
		}

		if a.filled < len(a.ring) {
			a.filled++
		}

		a.sinceFr++
		if a.filled == len(a.ring) && a.sinceFr >= a.hop {
			a.sinceFr = 0
			a.analyze()
			updated = true
		}
	}

	return updated
}

func (a *Analyzer) analyze() {
	n := len(a.ring)
	copy(a.frame, a.ring[a.write:])
	copy(a.frame[n-a.write:], a.ring[:a.write])
	// Frame and window are both FFTSize long.
	_ = window.ApplyCoefficientsInPlace(a.frame, a.window)

	for i, v := range a.frame {
		a.in[i] = complex(v, 0)
	}

	if err := a.plan.Forward(a.out, a.in); err != nil {
		a.failures.Add(1)
		return
	}

	for k := range a.re {
		a.re[k] = real(a.out[k])
		a.im[k] = imag(a.out[k])
	}

	LevelsFromParts(a.binDB, a.mag, a.re, a.im, a.norm)

	// Bin frequencies are strictly increasing and lengths match.
	_ = InterpolateLinear(a.bandDB, a.binHz, a.binDB, a.bandHz)
	a.ready = true
}

// Failures returns how many frames the FFT rejected since construction. It
// is safe to call from any goroutine.
func (a *Analyzer) Failures() uint64 { return a.failures.Load() }

// Ready reports whether at least one frame has been analyzed since Reset.
func (a *Analyzer) Ready() bool { return a.ready }

// BinsDB returns the per-bin level in dBFS of the latest frame. The slice is
// owned by the analyzer and overwritten by Push.
func (a *Analyzer) BinsDB() []float64 { return a.binDB }

// Bands copies the latest log-spaced band levels in dBFS into dst, which must
// hold at least Config.Bands values, and returns the number written.
func (a *Analyzer) Bands(dst []float64) int {
	return copy(dst, a.bandDB)
}

// BandFrequencies returns the center frequency of every band.
func (a *Analyzer) BandFrequencies() []float64 {
	return append([]float64(nil), a.bandHz...)
}

// Config returns the effective configuration.
func (a *Analyzer) Config() Config { return a.cfg }

// Reset clears buffered samples and levels.
func (a *Analyzer) Reset() {
	clear(a.ring)
	a.write = 0
	a.filled = 0
	a.sinceFr = 0
	a.ready = false

	for i := range a.binDB {
		a.binDB[i] = core.MinimumDB
	}

	for i := range a.bandDB {
		a.bandDB[i] = core.MinimumDB
	}
}
