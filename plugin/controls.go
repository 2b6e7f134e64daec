package plugin

import (
	"math"
	"sync/atomic"
)

// Controls holds control port values. Reads and writes are atomic per port so
// the control plane and the realtime thread can share them without locks.
type Controls struct {
	ports []Port
	index map[string]int
	vals  []atomic.Uint64
}

func newControls(ports []Port) *Controls {
	c := &Controls{
		ports: ports,
		index: make(map[string]int, len(ports)),
		vals:  make([]atomic.Uint64, len(ports)),
	}

	for i, p := range ports {
		c.index[p.Symbol] = i
		c.vals[i].Store(math.Float64bits(p.Default))
	}

	return c
}

// NewControls creates a control table at port defaults. Engines use it in
// tests; hosts get theirs from a Wrapper.
func NewControls(ports []Port) *Controls { return newControls(ports) }

// Index returns the position of symbol, or -1.
func (c *Controls) Index(symbol string) int {
	if i, ok := c.index[symbol]; ok {
		return i
	}

	return -1
}

// At returns the value at index i.
func (c *Controls) At(i int) float64 {
	return math.Float64frombits(c.vals[i].Load())
}

// SetAt stores v at index i, clamped to the port range when one is declared.
func (c *Controls) SetAt(i int, v float64) {
	p := c.ports[i]
	if p.Min < p.Max {
		v = math.Min(math.Max(v, p.Min), p.Max)
	}

	c.vals[i].Store(math.Float64bits(v))
}

// Get returns the value of symbol.
func (c *Controls) Get(symbol string) (float64, bool) {
	i := c.Index(symbol)
	if i < 0 {
		return 0, false
	}

	return c.At(i), true
}

// Set stores the value of symbol. It reports false for unknown symbols.
func (c *Controls) Set(symbol string, v float64) bool {
	i := c.Index(symbol)
	if i < 0 {
		return false
	}

	c.SetAt(i, v)

	return true
}
