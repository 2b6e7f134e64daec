// Package plugin hosts embedded DSP engines addressed by URI. An engine
// exposes named control ports and four stereo data ports; Wrapper gives an
// effect node the found/instance/run contract and Binder ties settings keys
// to control ports.
package plugin

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownPlugin is returned when no descriptor is registered for a URI.
	ErrUnknownPlugin = errors.New("plugin: unknown plugin")
	// ErrDuplicatePlugin is returned when a URI is registered twice.
	ErrDuplicatePlugin = errors.New("plugin: duplicate plugin")
	// ErrUnknownPort is returned for port symbols the plugin does not declare.
	ErrUnknownPort = errors.New("plugin: unknown port")
	// ErrNotFound is returned by operations on a wrapper whose plugin was not found.
	ErrNotFound = errors.New("plugin: plugin not available")
)

// PortDirection distinguishes parameters from meters.
type PortDirection int

const (
	PortInput PortDirection = iota
	PortOutput
)

// Unit is the declared unit of a control port.
type Unit int

const (
	UnitNone Unit = iota
	UnitDB
	UnitMs
	UnitHz
	UnitGain
	UnitSamples
)

// Port declares a control port.
type Port struct {
	Symbol    string
	Name      string
	Direction PortDirection
	Unit      Unit
	Default   float64
	Min       float64
	Max       float64
	// Toggle and Enum mark integer-valued ports.
	Toggle bool
	Enum   bool
}

// Instance is a running engine. Run reads control inputs from c, processes one
// block and writes control outputs to c. It is called from the realtime thread
// and must not block.
type Instance interface {
	Run(c *Controls, inL, inR, outL, outR []float64)
}

// BlockSizer is implemented by instances that preallocate per block size.
type BlockSizer interface {
	SetBlockSize(n int)
}

// Factory creates an instance for a sample rate.
type Factory func(sampleRate float64) (Instance, error)

// Descriptor describes a plugin.
type Descriptor struct {
	URI   string
	Name  string
	Ports []Port
	New   Factory
}

// Port returns the declaration of symbol.
func (d *Descriptor) Port(symbol string) (Port, bool) {
	for _, p := range d.Ports {
		if p.Symbol == symbol {
			return p, true
		}
	}

	return Port{}, false
}

// Registry maps URIs to descriptors.
type Registry struct {
	mu    sync.RWMutex
	descs map[string]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{descs: make(map[string]*Descriptor)}
}

// Register adds a descriptor.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.URI == "" {
		return errors.New("plugin: empty descriptor uri")
	}

	if d.New == nil {
		return fmt.Errorf("plugin: %s has no factory", d.URI)
	}

	seen := make(map[string]bool, len(d.Ports))
	for _, p := range d.Ports {
		if seen[p.Symbol] {
			return fmt.Errorf("plugin: %s declares port %s twice", d.URI, p.Symbol)
		}

		seen[p.Symbol] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descs[d.URI]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, d.URI)
	}

	r.descs[d.URI] = d

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic("plugin registry: " + err.Error())
	}
}

// Lookup returns the descriptor for uri.
func (r *Registry) Lookup(uri string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descs[uri]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, uri)
	}

	return d, nil
}
