package effectchain

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-fxgraph/dsp/core"
	"github.com/cwbudde/algo-fxgraph/host/graph"
	"github.com/cwbudde/algo-fxgraph/host/rt"
	"github.com/cwbudde/algo-fxgraph/internal/logging"
	"github.com/cwbudde/algo-fxgraph/internal/settings"
	"github.com/cwbudde/algo-fxgraph/plugin"
)

// Keys every node schema carries.
const (
	KeyBypass     = "bypass"
	KeyInputGain  = "input-gain"
	KeyOutputGain = "output-gain"
)

func nodeKeys() []settings.Key {
	return []settings.Key{
		{Name: KeyBypass, Kind: settings.KindBool, Default: false},
		{Name: KeyInputGain, Kind: settings.KindDouble, Default: 0.0, Min: -36, Max: 36},
		{Name: KeyOutputGain, Kind: settings.KindDouble, Default: 0.0, Min: -36, Max: 36},
	}
}

// Meter names a notification channel and the output port it reads.
type Meter struct {
	Name string
	Port string
}

// MeterValue is one channel of a notification.
type MeterValue struct {
	Name  string
	Value float64
}

// Notification is what a node reports once per notification window.
type Notification struct {
	Node string
	// Peak levels of the window in dBFS, left then right.
	InputLevel  [2]float64
	OutputLevel [2]float64
	Meters      []MeterValue
}

// Meter returns the value of a channel.
func (n Notification) Meter(name string) (float64, bool) {
	for _, m := range n.Meters {
		if m.Name == name {
			return m.Value, true
		}
	}

	return 0, false
}

// NodeSpec describes the engine behind a node kind.
type NodeSpec struct {
	URI      string
	Meters   []Meter
	Bindings []plugin.Binding
}

type atomicFloat struct{ bits atomic.Uint64 }

func (f *atomicFloat) Load() float64 { return math.Float64frombits(f.bits.Load()) }

func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }

// Node runs one plugin instance inside the graph. Without the plugin, or
// when bypassed, it copies its input unchanged.
type Node struct {
	name    string
	log     zerolog.Logger
	mgr     *Manager
	store   *settings.Store
	wrapper *plugin.Wrapper
	binder  *plugin.Binder
	element *graph.Element
	filter  *rt.Filter

	bypass     atomic.Bool
	inputGain  atomicFloat
	outputGain atomicFloat

	// windowSamples is the notification window in samples at the instance
	// rate.
	windowSamples atomicFloat

	// Owned by the realtime thread.
	elapsed int
	peaks   [4]float64

	meters   []Meter
	values   []atomicFloat
	levels   [4]atomicFloat
	deferred *Deferred

	notifications Signal[Notification]
	channels      map[string]*Signal[float64]

	mu       sync.Mutex
	handlers []settings.HandlerID

	setupDone atomic.Bool
	torn      atomic.Bool
	processed atomic.Uint64
	notified  atomic.Uint64
}

// NewNode builds a node for spec. A plugin that cannot be found leaves the
// node in passthrough for its whole life; it is not an error.
func NewNode(ctx Context, spec NodeSpec) (*Node, error) {
	if ctx.Manager == nil || ctx.Settings == nil {
		return nil, errors.New("effectchain: node needs a manager and a settings store")
	}

	log := logging.Tagged(ctx.Logger, ctx.Name)

	n := &Node{
		name:     ctx.Name,
		log:      log,
		mgr:      ctx.Manager,
		store:    ctx.Settings,
		wrapper:  plugin.NewWrapper(ctx.Manager.Plugins(), spec.URI, log),
		filter:   ctx.Manager.Server().NewFilter(ctx.Name),
		meters:   spec.Meters,
		values:   make([]atomicFloat, len(spec.Meters)),
		channels: make(map[string]*Signal[float64], len(spec.Meters)),
	}

	for _, m := range spec.Meters {
		n.channels[m.Name] = &Signal[float64]{}
	}

	n.deferred = NewDeferred(n.emit)
	n.element = graph.NewElement(ctx.Name, graph.ProcessorFunc(n.processBlock), graph.WithStateChange(n.onStateChange))

	if err := n.bindNodeKeys(); err != nil {
		n.disconnectHandlers()
		return nil, err
	}

	n.binder = plugin.NewBinder(n.wrapper, n.store, log)
	if err := n.binder.BindTable(spec.Bindings); err != nil {
		n.binder.Close()
		n.disconnectHandlers()

		return nil, fmt.Errorf("effectchain: bind %s: %w", ctx.Name, err)
	}

	return n, nil
}

func (n *Node) bindNodeKeys() error {
	update := map[string]func() error{
		KeyBypass: func() error {
			v, err := n.store.GetBool(KeyBypass)
			n.bypass.Store(v)

			return err
		},
		KeyInputGain: func() error {
			v, err := n.store.GetDouble(KeyInputGain)
			n.inputGain.Store(core.DBToLinear(v))

			return err
		},
		KeyOutputGain: func() error {
			v, err := n.store.GetDouble(KeyOutputGain)
			n.outputGain.Store(core.DBToLinear(v))

			return err
		},
	}

	for _, key := range []string{KeyBypass, KeyInputGain, KeyOutputGain} {
		fn := update[key]
		if err := fn(); err != nil {
			return fmt.Errorf("effectchain: %s: %w", n.name, err)
		}

		id, err := n.store.Connect(key, func(string) {
			if err := fn(); err != nil {
				n.log.Error().Err(err).Str("key", key).Msg("failed to read setting")
			}
		})
		if err != nil {
			return fmt.Errorf("effectchain: %s: %w", n.name, err)
		}

		n.mu.Lock()
		n.handlers = append(n.handlers, id)
		n.mu.Unlock()
	}

	return nil
}

func (n *Node) Name() string { return n.name }

func (n *Node) Element() *graph.Element { return n.element }

// Settings returns the node's settings store.
func (n *Node) Settings() *settings.Store { return n.store }

// Wrapper returns the plugin handle.
func (n *Node) Wrapper() *plugin.Wrapper { return n.wrapper }

// Binder returns the parameter binder.
func (n *Node) Binder() *plugin.Binder { return n.binder }

// Filter returns the node's realtime server connection.
func (n *Node) Filter() *rt.Filter { return n.filter }

// InputGain returns the cached linear input gain.
func (n *Node) InputGain() float64 { return n.inputGain.Load() }

// OutputGain returns the cached linear output gain.
func (n *Node) OutputGain() float64 { return n.outputGain.Load() }

// Bypassed reports the bypass flag.
func (n *Node) Bypassed() bool { return n.bypass.Load() }

// Processed returns how many blocks went through the engine.
func (n *Node) Processed() uint64 { return n.processed.Load() }

// Notified returns how many notifications the node posted.
func (n *Node) Notified() uint64 { return n.notified.Load() }

// Notifications carries every notification as one value.
func (n *Node) Notifications() *Signal[Notification] { return &n.notifications }

// Channel returns the signal of one meter, or nil.
func (n *Node) Channel(name string) *Signal[float64] { return n.channels[name] }

// Setup creates the engine instance at sampleRate. It does nothing when the
// plugin is unavailable.
func (n *Node) Setup(sampleRate float64) error {
	if !n.wrapper.FoundPlugin() {
		return nil
	}

	n.wrapper.SetNSamples(n.mgr.BlockSize())

	if err := n.wrapper.CreateInstance(sampleRate); err != nil {
		return fmt.Errorf("effectchain: setup %s: %w", n.name, err)
	}

	n.windowSamples.Store(core.ProcessorConfig{SampleRate: sampleRate}.Samples(n.mgr.NotificationWindow()))
	n.setupDone.Store(true)

	n.log.Debug().Float64("rate", sampleRate).Int("block", n.wrapper.NSamples()).Msg("setup done")

	return nil
}

func (n *Node) onStateChange(from, to graph.State) error {
	if to >= graph.StateReady && !n.setupDone.Load() && !n.torn.Load() {
		if err := n.Setup(n.mgr.SampleRate()); err != nil {
			// The node stays in passthrough.
			n.log.Error().Err(err).Msg("setup failed")
		}
	}

	switch {
	case to == graph.StatePlaying:
		if err := n.filter.SetActive(true); err != nil {
			return err
		}
	case from == graph.StatePlaying:
		// A disconnected filter is already inactive.
		_ = n.filter.SetActive(false)
	}

	return nil
}

func (n *Node) processBlock(in, out *graph.Buffer) {
	if !n.filter.Active() {
		core.CopyStereo(in.Left, in.Right, out.Left, out.Right)
		return
	}

	n.Process(in.Left, in.Right, out.Left, out.Right)
}

// Process runs one block. It never blocks and never allocates.
func (n *Node) Process(inL, inR, outL, outR []float64) {
	if !n.wrapper.FoundPlugin() || !n.wrapper.HasInstance() || n.bypass.Load() {
		core.CopyStereo(inL, inR, outL, outR)
		return
	}

	core.ScaleStereo(inL, inR, n.inputGain.Load())

	if n.wrapper.NSamples() != len(inL) {
		n.wrapper.SetNSamples(len(inL))
	}

	n.wrapper.ConnectDataPorts(inL, inR, outL, outR)
	n.wrapper.Run()

	core.ScaleStereo(outL, outR, n.outputGain.Load())

	n.processed.Add(1)

	if n.mgr.PostMessages() {
		n.meter(inL, inR, outL, outR)
	}
}

func (n *Node) meter(inL, inR, outL, outR []float64) {
	core.HoldPeaks(n.peaks[:], inL, inR, outL, outR)

	n.elapsed += len(inL)

	if float64(n.elapsed) < n.windowSamples.Load() {
		return
	}

	for i, m := range n.meters {
		n.values[i].Store(n.wrapper.ControlPortValue(m.Port))
	}

	for i, p := range n.peaks {
		n.levels[i].Store(p)
		n.peaks[i] = 0
	}

	if n.mgr.Dispatcher().Post(n.deferred) {
		n.notified.Add(1)
	}

	n.elapsed = 0
}

// emit runs on the dispatcher goroutine.
func (n *Node) emit() {
	note := Notification{
		Node:        n.name,
		InputLevel:  [2]float64{core.LevelDB(n.levels[0].Load()), core.LevelDB(n.levels[1].Load())},
		OutputLevel: [2]float64{core.LevelDB(n.levels[2].Load()), core.LevelDB(n.levels[3].Load())},
		Meters:      make([]MeterValue, len(n.meters)),
	}

	for i, m := range n.meters {
		v := n.values[i].Load()
		note.Meters[i] = MeterValue{Name: m.Name, Value: v}
		n.channels[m.Name].Emit(v)
	}

	n.notifications.Emit(note)
}

// Teardown detaches the node from the realtime server. With the loop lock
// held it deactivates and disconnects the filter, then waits for a core
// sync so that no cycle that could still see the node is in flight.
func (n *Node) Teardown() error {
	if n.torn.Swap(true) {
		return nil
	}

	srv := n.mgr.Server()
	loop := srv.Loop()

	var errs []error

	loop.Lock()

	if err := n.filter.SetActive(false); err != nil {
		errs = append(errs, err)
	}

	if err := n.filter.Disconnect(); err != nil {
		errs = append(errs, err)
	}

	// A stopped loop has no cycle in flight.
	if err := srv.SyncAndWait(); err != nil && !errors.Is(err, rt.ErrNotRunning) {
		errs = append(errs, err)
	}

	loop.Unlock()

	if n.binder != nil {
		n.binder.Close()
	}

	n.disconnectHandlers()

	n.log.Debug().Msg("destroyed")

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("effectchain: teardown %s: %w", n.name, err)
	}

	return nil
}

func (n *Node) disconnectHandlers() {
	n.mu.Lock()
	ids := n.handlers
	n.handlers = nil
	n.mu.Unlock()

	for _, id := range ids {
		n.store.Disconnect(id)
	}
}
