package lsp

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-fxgraph/dsp/core"
	"github.com/cwbudde/algo-fxgraph/dsp/effects/dynamics"
	"github.com/cwbudde/algo-fxgraph/plugin"
)

// CompressorURI identifies the stereo compressor.
const CompressorURI = "http://lsp-plug.in/plugins/lv2/compressor_stereo"

// Compressor port symbols.
const (
	PortMode             = "cm"
	PortSidechainType    = "sct"
	PortSidechainMode    = "scm"
	PortSidechainSource  = "scs"
	PortHPFMode          = "shpm"
	PortLPFMode          = "slpm"
	PortSidechainListen  = "scl"
	PortAttack           = "at"
	PortRelease          = "rt"
	PortRatio            = "cr"
	PortReactivity       = "scr"
	PortLookahead        = "sla"
	PortHPFFrequency     = "shpf"
	PortLPFFrequency     = "slpf"
	PortReleaseThreshold = "rrl"
	PortBoostThreshold   = "bth"
	PortThreshold        = "al"
	PortKnee             = "kn"
	PortMakeup           = "mk"
	PortPreamp           = "scp"

	PortReduction = "rlm"
	PortSidechain = "slm"
	PortCurve     = "clm"
	PortLatency   = "out_latency"
)

var compressorPorts = []plugin.Port{
	{Symbol: PortMode, Name: "Compression mode", Enum: true, Default: 0, Min: 0, Max: 2},
	{Symbol: PortSidechainType, Name: "Sidechain type", Enum: true, Default: 0, Min: 0, Max: 1},
	{Symbol: PortSidechainMode, Name: "Sidechain mode", Enum: true, Default: 1, Min: 0, Max: 3},
	{Symbol: PortSidechainSource, Name: "Sidechain source", Enum: true, Default: 0, Min: 0, Max: 3},
	{Symbol: PortHPFMode, Name: "High-pass filter mode", Enum: true, Default: 0, Min: 0, Max: 3},
	{Symbol: PortLPFMode, Name: "Low-pass filter mode", Enum: true, Default: 0, Min: 0, Max: 3},
	{Symbol: PortSidechainListen, Name: "Sidechain listen", Toggle: true, Default: 0, Min: 0, Max: 1},
	{Symbol: PortAttack, Name: "Attack time", Unit: plugin.UnitMs, Default: 20, Min: 0, Max: 2000},
	{Symbol: PortRelease, Name: "Release time", Unit: plugin.UnitMs, Default: 100, Min: 0, Max: 5000},
	{Symbol: PortRatio, Name: "Ratio", Default: 4, Min: 1, Max: 100},
	{Symbol: PortReactivity, Name: "Reactivity", Unit: plugin.UnitMs, Default: 10, Min: 0, Max: 250},
	{Symbol: PortLookahead, Name: "Lookahead", Unit: plugin.UnitMs, Default: 0, Min: 0, Max: 20},
	{Symbol: PortHPFFrequency, Name: "High-pass frequency", Unit: plugin.UnitHz, Default: 10, Min: 10, Max: 20000},
	{Symbol: PortLPFFrequency, Name: "Low-pass frequency", Unit: plugin.UnitHz, Default: 20000, Min: 10, Max: 20000},
	{Symbol: PortReleaseThreshold, Name: "Relative release level", Unit: plugin.UnitGain, Default: 0, Min: 0, Max: 1},
	{Symbol: PortBoostThreshold, Name: "Boost threshold", Unit: plugin.UnitGain, Default: 0.000251189, Min: 1e-6, Max: 100},
	{Symbol: PortThreshold, Name: "Attack threshold", Unit: plugin.UnitGain, Default: 0.251188643, Min: 1e-6, Max: 1},
	{Symbol: PortKnee, Name: "Knee", Unit: plugin.UnitDB, Default: 9, Min: 0, Max: 24},
	{Symbol: PortMakeup, Name: "Makeup gain", Unit: plugin.UnitGain, Default: 1, Min: 0.001, Max: 31.6227766},
	{Symbol: PortPreamp, Name: "Sidechain preamp", Unit: plugin.UnitGain, Default: 1, Min: 1e-4, Max: 100},

	{Symbol: PortReduction, Name: "Reduction level meter", Direction: plugin.PortOutput, Unit: plugin.UnitGain},
	{Symbol: PortSidechain, Name: "Sidechain level meter", Direction: plugin.PortOutput, Unit: plugin.UnitGain},
	{Symbol: PortCurve, Name: "Curve level meter", Direction: plugin.PortOutput, Unit: plugin.UnitGain},
	{Symbol: PortLatency, Name: "Latency", Direction: plugin.PortOutput, Unit: plugin.UnitSamples},
}

// CompressorDescriptor describes the stereo compressor.
func CompressorDescriptor() *plugin.Descriptor {
	return &plugin.Descriptor{
		URI:   CompressorURI,
		Name:  "Compressor Stereo",
		Ports: compressorPorts,
		New:   newCompressor,
	}
}

type compressor struct {
	comp  *dynamics.Compressor
	rate  float64
	ports *params

	hpfMode, lpfMode int
	hpfHz, lpfHz     float64

	reduction, sidechain, curve, latency int
}

func newCompressor(sampleRate float64) (plugin.Instance, error) {
	c, err := dynamics.NewCompressor(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("lsp compressor: %w", err)
	}

	return &compressor{
		comp:      c,
		rate:      sampleRate,
		ports:     newParams(compressorPorts),
		hpfHz:     10,
		lpfHz:     20000,
		reduction: portIndex(compressorPorts, PortReduction),
		sidechain: portIndex(compressorPorts, PortSidechain),
		curve:     portIndex(compressorPorts, PortCurve),
		latency:   portIndex(compressorPorts, PortLatency),
	}, nil
}

func (c *compressor) Run(ctl *plugin.Controls, inL, inR, outL, outR []float64) {
	c.ports.sync(ctl, func(i int, v float64) error {
		return c.apply(compressorPorts[i].Symbol, v)
	})

	c.comp.ProcessStereo(inL, inR, outL, outR)

	m := c.comp.Meters()
	ctl.SetAt(c.reduction, m.Reduction)
	ctl.SetAt(c.sidechain, m.Sidechain)
	ctl.SetAt(c.curve, m.Curve)
	ctl.SetAt(c.latency, float64(c.comp.Latency()))
}

func (c *compressor) apply(symbol string, v float64) error {
	switch symbol {
	case PortMode:
		return c.comp.SetMode(dynamics.Mode(int(v)))
	case PortSidechainType:
		return c.comp.SetTopology(dynamics.Topology(int(v)))
	case PortSidechainMode:
		return c.comp.SetDetectorMode(dynamics.DetectorMode(int(v)))
	case PortSidechainSource:
		return c.comp.SetSource(dynamics.Source(int(v)))
	case PortHPFMode:
		c.hpfMode = int(v)
		return c.comp.SetHighPass(c.hpfMode, c.cutoff(c.hpfHz))
	case PortLPFMode:
		c.lpfMode = int(v)
		return c.comp.SetLowPass(c.lpfMode, c.cutoff(c.lpfHz))
	case PortHPFFrequency:
		c.hpfHz = v
		return c.comp.SetHighPass(c.hpfMode, c.cutoff(v))
	case PortLPFFrequency:
		c.lpfHz = v
		return c.comp.SetLowPass(c.lpfMode, c.cutoff(v))
	case PortSidechainListen:
		c.comp.SetListen(v >= 0.5)
		return nil
	case PortAttack:
		return c.comp.SetAttack(v)
	case PortRelease:
		return c.comp.SetRelease(v)
	case PortRatio:
		return c.comp.SetRatio(v)
	case PortReactivity:
		return c.comp.SetReactivity(v)
	case PortLookahead:
		return c.comp.SetLookahead(v)
	case PortReleaseThreshold:
		return c.comp.SetReleaseThreshold(v)
	case PortBoostThreshold:
		return c.comp.SetBoostThreshold(v)
	case PortThreshold:
		return c.comp.SetThreshold(linearToDB(v))
	case PortKnee:
		return c.comp.SetKnee(v)
	case PortMakeup:
		return c.comp.SetMakeup(linearToDB(v))
	case PortPreamp:
		return c.comp.SetPreamp(linearToDB(v))
	}

	return fmt.Errorf("lsp compressor: unhandled port %s", symbol)
}

// cutoff keeps sidechain filter corners below Nyquist.
func (c *compressor) cutoff(hz float64) float64 {
	return core.Clamp(hz, 10, math.Floor(0.45*c.rate))
}
