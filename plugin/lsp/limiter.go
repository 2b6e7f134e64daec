package lsp

import (
	"fmt"

	"github.com/cwbudde/algo-fxgraph/dsp/effects/dynamics"
	"github.com/cwbudde/algo-fxgraph/plugin"
)

// LimiterURI identifies the stereo limiter.
const LimiterURI = "http://lsp-plug.in/plugins/lv2/limiter_stereo"

// Limiter port symbols. The reduction and latency meters share the
// compressor's symbols.
const (
	PortLimiterThreshold = "th"
	PortLimiterAttack    = "lk_at"
	PortLimiterRelease   = "lk_rt"
	PortLimiterLookahead = "lk"
	PortLimiterBoost     = "bst"
)

var limiterPorts = []plugin.Port{
	{Symbol: PortLimiterThreshold, Name: "Threshold", Unit: plugin.UnitDB, Default: -1, Min: -48, Max: 0},
	{Symbol: PortLimiterAttack, Name: "Attack time", Unit: plugin.UnitMs, Default: 0, Min: 0, Max: 20},
	{Symbol: PortLimiterRelease, Name: "Release time", Unit: plugin.UnitMs, Default: 50, Min: 1, Max: 1000},
	{Symbol: PortLimiterLookahead, Name: "Lookahead", Unit: plugin.UnitMs, Default: 5, Min: 0, Max: 20},
	{Symbol: PortLimiterBoost, Name: "Input boost", Unit: plugin.UnitGain, Default: 1, Min: 1, Max: 100},

	{Symbol: PortReduction, Name: "Reduction level meter", Direction: plugin.PortOutput, Unit: plugin.UnitGain},
	{Symbol: PortLatency, Name: "Latency", Direction: plugin.PortOutput, Unit: plugin.UnitSamples},
}

// LimiterDescriptor describes the stereo limiter.
func LimiterDescriptor() *plugin.Descriptor {
	return &plugin.Descriptor{
		URI:   LimiterURI,
		Name:  "Limiter Stereo",
		Ports: limiterPorts,
		New:   newLimiter,
	}
}

type limiter struct {
	lim   *dynamics.Limiter
	ports *params

	reduction, latency int
}

func newLimiter(sampleRate float64) (plugin.Instance, error) {
	l, err := dynamics.NewLimiter(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("lsp limiter: %w", err)
	}

	return &limiter{
		lim:       l,
		ports:     newParams(limiterPorts),
		reduction: portIndex(limiterPorts, PortReduction),
		latency:   portIndex(limiterPorts, PortLatency),
	}, nil
}

func (l *limiter) Run(ctl *plugin.Controls, inL, inR, outL, outR []float64) {
	l.ports.sync(ctl, func(i int, v float64) error {
		switch limiterPorts[i].Symbol {
		case PortLimiterThreshold:
			return l.lim.SetThreshold(v)
		case PortLimiterAttack:
			return l.lim.SetAttack(v)
		case PortLimiterRelease:
			return l.lim.SetRelease(v)
		case PortLimiterLookahead:
			return l.lim.SetLookahead(v)
		case PortLimiterBoost:
			return l.lim.SetInputBoost(linearToDB(v))
		}

		return fmt.Errorf("lsp limiter: unhandled port %s", limiterPorts[i].Symbol)
	})

	l.lim.ProcessStereo(inL, inR, outL, outR)

	ctl.SetAt(l.reduction, l.lim.Meters().Reduction)
	ctl.SetAt(l.latency, float64(l.lim.Latency()))
}
