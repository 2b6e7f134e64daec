package effectchain

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-fxgraph/host/graph"
	"github.com/cwbudde/algo-fxgraph/internal/logging"
	"github.com/cwbudde/algo-fxgraph/internal/settings"
)

var (
	// ErrUnknownKind is returned when a node references an unregistered kind.
	ErrUnknownKind = errors.New("effectchain: unknown node kind")
	// ErrUnknownNode is returned for names outside the node collection.
	ErrUnknownNode = errors.New("effectchain: unknown node")
	// ErrInvalidOrder is returned for an order that is not a permutation of
	// the node collection.
	ErrInvalidOrder = errors.New("effectchain: invalid plugin order")
)

// Reserved element names of a pipeline.
const (
	InputBoundary  = "identity_in"
	OutputBoundary = "identity_out"
	SpectrumName   = "spectrum"
)

// Pipeline settings.
const (
	KeyPlugins = "plugins"
)

// NodeConfig names one node of a pipeline and its kind.
type NodeConfig struct {
	Name string
	Kind string
}

// EffectsConfig configures a pipeline.
type EffectsConfig struct {
	// Name is the pipeline's bin name and the settings id prefix.
	Name  string
	Nodes []NodeConfig
	// Kinds defaults to DefaultRegistry.
	Kinds  *Registry
	Relink RelinkOptions
	// Spectrum adds an analyzer after the output boundary.
	Spectrum bool
}

// Effects is a reorderable chain of nodes between two identity boundaries.
// Its "plugins" key holds the order; changing it relinks the chain at the
// next quiescent point of the stream.
type Effects struct {
	name string
	log  zerolog.Logger
	mgr  *Manager

	bin      *graph.Bin
	in, out  *graph.Element
	spectrum *Spectrum

	nodes map[string]Effect
	names []string

	store   *settings.Store
	watcher *Watcher
}

// NewEffects builds the pipeline, links it in its configured order and
// attaches it to the manager.
func NewEffects(mgr *Manager, cfg EffectsConfig) (*Effects, error) {
	if cfg.Name == "" {
		return nil, errors.New("effectchain: pipeline needs a name")
	}

	kinds := cfg.Kinds
	if kinds == nil {
		kinds = DefaultRegistry()
	}

	e := &Effects{
		name:  cfg.Name,
		log:   logging.Tagged(mgr.Logger(), cfg.Name),
		mgr:   mgr,
		bin:   graph.NewBin(cfg.Name),
		in:    graph.NewElement(InputBoundary, nil),
		out:   graph.NewElement(OutputBoundary, nil),
		nodes: make(map[string]Effect, len(cfg.Nodes)),
	}

	if err := e.bin.Add(e.in, e.out); err != nil {
		return nil, err
	}

	defaults := make([]string, 0, len(cfg.Nodes))

	for _, nc := range cfg.Nodes {
		if err := e.addNode(kinds, nc); err != nil {
			e.teardownNodes()
			return nil, err
		}

		defaults = append(defaults, nc.Name)
	}

	e.names = slices.Sorted(maps.Keys(e.nodes))

	schema, err := settings.NewSchema(cfg.Name,
		settings.Key{Name: KeyPlugins, Kind: settings.KindStrv, Default: defaults},
	)
	if err != nil {
		e.teardownNodes()
		return nil, err
	}

	e.store = settings.New(schema)

	if err := mgr.Group().Add(e.store); err != nil {
		e.teardownNodes()
		return nil, err
	}

	if cfg.Spectrum {
		e.spectrum, err = NewSpectrum(mgr, SpectrumName)
		if err != nil {
			e.teardownNodes()
			return nil, err
		}

		if err := e.bin.Add(e.spectrum.Element()); err != nil {
			e.teardownNodes()
			return nil, err
		}

		if !e.bin.Link(OutputBoundary, SpectrumName) {
			e.teardownNodes()
			return nil, fmt.Errorf("effectchain: %s: cannot link spectrum", cfg.Name)
		}
	}

	for _, p := range chainPairs(InputBoundary, OutputBoundary, defaults) {
		if !e.bin.Link(p[0], p[1]) {
			e.teardownNodes()
			return nil, fmt.Errorf("effectchain: %s: cannot link %s -> %s", cfg.Name, p[0], p[1])
		}
	}

	e.watcher, err = NewWatcher(e, e.store, KeyPlugins, e.in.SrcPad(), defaults, cfg.Relink)
	if err != nil {
		e.teardownNodes()
		return nil, err
	}

	if err := mgr.attach(e); err != nil {
		e.watcher.Close()
		e.teardownNodes()

		return nil, err
	}

	e.log.Debug().Strs("order", defaults).Msg("pipeline created")

	return e, nil
}

func (e *Effects) addNode(kinds *Registry, nc NodeConfig) error {
	if nc.Name == InputBoundary || nc.Name == OutputBoundary || nc.Name == SpectrumName {
		return fmt.Errorf("effectchain: node name %q is reserved", nc.Name)
	}

	if _, ok := e.nodes[nc.Name]; ok {
		return fmt.Errorf("effectchain: duplicate node %q", nc.Name)
	}

	factory := kinds.Lookup(nc.Kind)
	if factory == nil {
		return fmt.Errorf("%w: %s", ErrUnknownKind, nc.Kind)
	}

	schema, err := kinds.Schema(nc.Kind, e.name+"."+nc.Name)
	if err != nil {
		return err
	}

	store := settings.New(schema)

	fx, err := factory(Context{Name: nc.Name, Manager: e.mgr, Settings: store, Logger: e.mgr.Logger()})
	if err != nil {
		return fmt.Errorf("effectchain: create %s: %w", nc.Name, err)
	}

	// Nodes register before they can fail further so teardownNodes sees
	// them.
	e.nodes[nc.Name] = fx

	if err := e.bin.Add(fx.Element()); err != nil {
		return err
	}

	return e.mgr.Group().Add(store)
}

func (e *Effects) Name() string { return e.name }

// Segment returns the pipeline bin.
func (e *Effects) Segment() Segment { return e.bin }

func (e *Effects) Boundaries() (input, output string) { return InputBoundary, OutputBoundary }

func (e *Effects) NodeNames() []string { return slices.Clone(e.names) }

func (e *Effects) Logger() *zerolog.Logger { return &e.log }

// Bin returns the pipeline bin.
func (e *Effects) Bin() *graph.Bin { return e.bin }

// First is the element the upstream links to.
func (e *Effects) First() *graph.Element { return e.in }

// Last is the element the downstream links from.
func (e *Effects) Last() *graph.Element {
	if e.spectrum != nil {
		return e.spectrum.Element()
	}

	return e.out
}

// Node returns a node by name.
func (e *Effects) Node(name string) (Effect, error) {
	fx, ok := e.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, name)
	}

	return fx, nil
}

// Settings returns the pipeline store holding the plugin order.
func (e *Effects) Settings() *settings.Store { return e.store }

// Watcher returns the order watcher.
func (e *Effects) Watcher() *Watcher { return e.watcher }

// Spectrum returns the output analyzer, or nil.
func (e *Effects) Spectrum() *Spectrum { return e.spectrum }

// SetOrder writes a new plugin order to the pipeline settings.
func (e *Effects) SetOrder(order []string) error {
	if err := ValidateOrder(order, e.names); err != nil {
		return err
	}

	return e.store.SetStrv(KeyPlugins, order)
}

// Chain walks the links from the input boundary and returns the node names
// up to the output boundary. It is meant for inspection between blocks.
func (e *Effects) Chain() []string {
	var names []string

	for pad, hops := e.in.SrcPad().Peer(), 0; pad != nil && hops <= len(e.names); hops++ {
		el := pad.Element()
		if el == e.out {
			return names
		}

		names = append(names, el.Name())
		pad = el.SrcPad().Peer()
	}

	return names
}

// Close stops watching the order and tears every node down.
func (e *Effects) Close() error {
	if e.watcher != nil {
		e.watcher.Close()
	}

	return e.teardownNodes()
}

func (e *Effects) teardownNodes() error {
	var errs []error

	for _, name := range slices.Sorted(maps.Keys(e.nodes)) {
		if err := e.nodes[name].Teardown(); err != nil {
			errs = append(errs, err)
		}
	}

	if e.spectrum != nil {
		e.spectrum.Close()
	}

	return errors.Join(errs...)
}
