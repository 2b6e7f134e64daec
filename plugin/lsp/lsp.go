// Package lsp registers the built-in dynamics plugins under their LSP URIs,
// backed by the dynamics package.
package lsp

import (
	"math"

	"github.com/cwbudde/algo-fxgraph/plugin"
)

// Register adds every built-in plugin to r.
func Register(r *plugin.Registry) error {
	if err := r.Register(CompressorDescriptor()); err != nil {
		return err
	}

	return r.Register(LimiterDescriptor())
}

// NewRegistry returns a registry holding the built-in plugins.
func NewRegistry() *plugin.Registry {
	r := plugin.NewRegistry()
	if err := Register(r); err != nil {
		panic("lsp: " + err.Error())
	}

	return r
}

// params tracks the last applied value of every input port so that engine
// setters only run when a control actually moved. Port indices follow the
// descriptor's port order, which is also the order of the host's Controls.
type params struct {
	inputs   []int
	last     []float64
	rejected int
}

func newParams(ports []plugin.Port) *params {
	p := &params{}

	for i, port := range ports {
		if port.Direction == plugin.PortInput {
			p.inputs = append(p.inputs, i)
			p.last = append(p.last, math.NaN())
		}
	}

	return p
}

// sync calls apply for every input that changed since the last call. A
// rejected value leaves the engine at its previous setting.
func (p *params) sync(c *plugin.Controls, apply func(index int, v float64) error) {
	for j, i := range p.inputs {
		v := c.At(i)
		if v == p.last[j] {
			continue
		}

		p.last[j] = v
		if err := apply(i, v); err != nil {
			p.rejected++
		}
	}
}

func portIndex(ports []plugin.Port, symbol string) int {
	for i, p := range ports {
		if p.Symbol == symbol {
			return i
		}
	}

	return -1
}

func linearToDB(v float64) float64 {
	return 20 * math.Log10(math.Max(v, 1e-12))
}
