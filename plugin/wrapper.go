package plugin

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Wrapper is an effect node's handle to one engine. If the URI is unknown at
// construction the wrapper stays unavailable for its whole lifetime.
//
// CreateInstance, SetNSamples, ConnectDataPorts and Run belong to the thread
// that processes audio and must not run concurrently with each other. Control
// port access is safe from any goroutine.
type Wrapper struct {
	uri  string
	desc *Descriptor
	ctl  *Controls
	log  zerolog.Logger

	inst     Instance
	ready    atomic.Bool
	rate     float64
	nSamples int

	inL, inR, outL, outR []float64
}

// NewWrapper looks up uri in reg. A missing plugin is logged once and leaves
// the wrapper unavailable.
func NewWrapper(reg *Registry, uri string, log zerolog.Logger) *Wrapper {
	w := &Wrapper{uri: uri, log: log.With().Str("plugin", uri).Logger()}

	desc, err := reg.Lookup(uri)
	if err != nil {
		w.log.Warn().Err(err).Msg("plugin not found, node will pass audio through")
		return w
	}

	w.desc = desc
	w.ctl = newControls(desc.Ports)

	return w
}

// URI returns the plugin URI.
func (w *Wrapper) URI() string { return w.uri }

// FoundPlugin reports whether the plugin exists.
func (w *Wrapper) FoundPlugin() bool { return w.desc != nil }

// Descriptor returns the plugin descriptor, or nil.
func (w *Wrapper) Descriptor() *Descriptor { return w.desc }

// CreateInstance instantiates the engine at sampleRate, replacing any
// previous instance.
func (w *Wrapper) CreateInstance(sampleRate float64) error {
	if w.desc == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, w.uri)
	}

	inst, err := w.desc.New(sampleRate)
	if err != nil {
		w.log.Error().Err(err).Float64("rate", sampleRate).Msg("failed to create instance")
		return fmt.Errorf("plugin: create %s: %w", w.uri, err)
	}

	if bs, ok := inst.(BlockSizer); ok && w.nSamples > 0 {
		bs.SetBlockSize(w.nSamples)
	}

	w.inst = inst
	w.rate = sampleRate
	w.ready.Store(true)

	w.log.Debug().Float64("rate", sampleRate).Msg("instance created")

	return nil
}

// HasInstance reports whether CreateInstance succeeded.
func (w *Wrapper) HasInstance() bool { return w.ready.Load() }

// SampleRate returns the rate of the current instance.
func (w *Wrapper) SampleRate() float64 { return w.rate }

// NSamples returns the configured block length.
func (w *Wrapper) NSamples() int { return w.nSamples }

// SetNSamples changes the block length.
func (w *Wrapper) SetNSamples(n int) {
	w.nSamples = n

	if bs, ok := w.inst.(BlockSizer); ok {
		bs.SetBlockSize(n)
	}
}

// ConnectDataPorts binds the buffers used by the next Run.
func (w *Wrapper) ConnectDataPorts(inL, inR, outL, outR []float64) {
	w.inL, w.inR, w.outL, w.outR = inL, inR, outL, outR
}

// Run processes one block. It does nothing without an instance.
func (w *Wrapper) Run() {
	if w.inst == nil {
		return
	}

	w.inst.Run(w.ctl, w.inL, w.inR, w.outL, w.outR)
}

// ControlPortValue returns the value of a control port, 0 when unavailable.
func (w *Wrapper) ControlPortValue(symbol string) float64 {
	if w.ctl == nil {
		return 0
	}

	v, _ := w.ctl.Get(symbol)

	return v
}

// SetControlPortValue writes a control port.
func (w *Wrapper) SetControlPortValue(symbol string, v float64) error {
	if w.ctl == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, w.uri)
	}

	if !w.ctl.Set(symbol, v) {
		return fmt.Errorf("%w: %s on %s", ErrUnknownPort, symbol, w.uri)
	}

	return nil
}
