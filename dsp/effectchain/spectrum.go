package effectchain

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-fxgraph/dsp/core"
	"github.com/cwbudde/algo-fxgraph/dsp/spectrum"
	"github.com/cwbudde/algo-fxgraph/host/graph"
	"github.com/cwbudde/algo-fxgraph/internal/logging"
)

// Spectrum is a passthrough element that analyzes what leaves a pipeline
// and reports band levels once per notification window.
type Spectrum struct {
	mgr      *Manager
	element  *graph.Element
	analyzer *spectrum.Analyzer
	log      zerolog.Logger

	windowSamples float64
	// Owned by the realtime thread.
	elapsed int
	scratch []float64

	bands    []atomicFloat
	ready    atomic.Bool
	failed   atomic.Uint64
	deferred *Deferred
	levels   Signal[[]float64]
	closed   atomic.Bool

	// Owned by the dispatcher.
	reported uint64
}

// NewSpectrum creates the analyzer element.
func NewSpectrum(mgr *Manager, name string) (*Spectrum, error) {
	a, err := spectrum.NewAnalyzer(spectrum.Config{SampleRate: mgr.SampleRate()})
	if err != nil {
		return nil, fmt.Errorf("effectchain: spectrum: %w", err)
	}

	n := a.Config().Bands

	s := &Spectrum{
		mgr:           mgr,
		analyzer:      a,
		log:           logging.Tagged(mgr.Logger(), name),
		windowSamples: core.ProcessorConfig{SampleRate: mgr.SampleRate()}.Samples(mgr.NotificationWindow()),
		scratch:       make([]float64, n),
		bands:         make([]atomicFloat, n),
	}

	s.deferred = NewDeferred(s.emit)
	s.element = graph.NewElement(name, graph.ProcessorFunc(s.process))

	return s, nil
}

func (s *Spectrum) Element() *graph.Element { return s.element }

// Levels carries the band levels in dBFS.
func (s *Spectrum) Levels() *Signal[[]float64] { return &s.levels }

// Frequencies returns the band center frequencies.
func (s *Spectrum) Frequencies() []float64 { return s.analyzer.BandFrequencies() }

// Close stops notifications.
func (s *Spectrum) Close() { s.closed.Store(true) }

func (s *Spectrum) process(in, out *graph.Buffer) {
	core.CopyStereo(in.Left, in.Right, out.Left, out.Right)

	if !s.mgr.PostMessages() || s.closed.Load() {
		return
	}

	s.analyzer.Push(in.Left, in.Right)

	s.elapsed += in.Len()
	if float64(s.elapsed) < s.windowSamples {
		return
	}

	failed := s.analyzer.Failures()
	ready := s.analyzer.Ready()

	if !ready && failed == s.failed.Load() {
		return
	}

	s.elapsed = 0
	s.failed.Store(failed)

	if ready {
		s.analyzer.Bands(s.scratch)

		for i, v := range s.scratch {
			s.bands[i].Store(v)
		}

		s.ready.Store(true)
	}

	s.mgr.Dispatcher().Post(s.deferred)
}

// FFTFailures returns how many analysis frames were dropped by the FFT.
func (s *Spectrum) FFTFailures() uint64 { return s.analyzer.Failures() }

func (s *Spectrum) emit() {
	if failed := s.failed.Load(); failed > s.reported {
		s.log.Warn().Uint64("frames", failed-s.reported).Msg("spectrum frames dropped by fft")
		s.reported = failed
	}

	if !s.ready.Load() {
		return
	}

	levels := make([]float64, len(s.bands))
	for i := range s.bands {
		levels[i] = s.bands[i].Load()
	}

	s.levels.Emit(levels)
}
