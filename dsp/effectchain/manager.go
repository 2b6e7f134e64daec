package effectchain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-fxgraph/dsp/core"
	"github.com/cwbudde/algo-fxgraph/host/graph"
	"github.com/cwbudde/algo-fxgraph/host/rt"
	"github.com/cwbudde/algo-fxgraph/internal/settings"
	"github.com/cwbudde/algo-fxgraph/plugin"
)

// Manager settings.
const (
	ManagerSchemaID = "fxgraph"
	KeyPostMessages = "post-messages"
)

const (
	defaultSampleRate         = 48000.0
	defaultBlockSize          = 512
	defaultNotificationWindow = 100 * time.Millisecond
	sourceName                = "source"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	SampleRate float64
	BlockSize  int
	// Quantum is the realtime cycle period. Zero uses the block duration.
	Quantum            time.Duration
	NotificationWindow time.Duration
	PostMessages       bool
	// Plugins defaults to an empty registry.
	Plugins *plugin.Registry
	Source  func(out *graph.Buffer)
	Sink    func(in *graph.Buffer)
	Logger  zerolog.Logger
}

// Manager owns the realtime server, the root bin with its stream, the
// notification dispatcher and the settings group shared by every pipeline.
type Manager struct {
	cfg ManagerConfig
	log zerolog.Logger

	server     *rt.Server
	root       *graph.Bin
	head       *graph.Element
	stream     *graph.Stream
	dispatcher *Dispatcher

	store *settings.Store
	group *settings.Group

	postMessages atomic.Bool

	mu        sync.Mutex
	tail      *graph.Element
	pipelines []*Effects
	cancel    context.CancelFunc
	running   bool
}

// NewManager builds a stopped manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultSampleRate
	}

	if cfg.BlockSize == 0 {
		cfg.BlockSize = defaultBlockSize
	}

	if cfg.NotificationWindow == 0 {
		cfg.NotificationWindow = defaultNotificationWindow
	}

	if cfg.SampleRate <= 0 || cfg.BlockSize < 0 || cfg.NotificationWindow < 0 {
		return nil, fmt.Errorf("effectchain: invalid manager config: rate=%g block=%d window=%s",
			cfg.SampleRate, cfg.BlockSize, cfg.NotificationWindow)
	}

	if cfg.Quantum <= 0 {
		pc := core.ApplyProcessorOptions(core.WithSampleRate(cfg.SampleRate))
		cfg.Quantum = pc.BlockDuration(cfg.BlockSize)
	}

	if cfg.Plugins == nil {
		cfg.Plugins = plugin.NewRegistry()
	}

	m := &Manager{
		cfg:        cfg,
		log:        cfg.Logger,
		server:     rt.NewServer(cfg.Quantum, cfg.Logger),
		root:       graph.NewBin("pipeline"),
		dispatcher: NewDispatcher(0, cfg.Logger),
	}

	m.head = graph.NewElement(sourceName, nil)
	if err := m.root.Add(m.head); err != nil {
		return nil, err
	}

	m.tail = m.head

	stream, err := graph.NewStream(m.root, m.head, graph.StreamConfig{
		BlockSize: cfg.BlockSize,
		Source:    cfg.Source,
		Sink:      cfg.Sink,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("effectchain: %w", err)
	}

	m.stream = stream

	schema, err := settings.NewSchema(ManagerSchemaID,
		settings.Key{Name: KeyPostMessages, Kind: settings.KindBool, Default: cfg.PostMessages},
	)
	if err != nil {
		return nil, err
	}

	m.store = settings.New(schema)
	m.postMessages.Store(cfg.PostMessages)

	if _, err := m.store.Connect(KeyPostMessages, func(string) {
		v, _ := m.store.GetBool(KeyPostMessages)
		m.postMessages.Store(v)
	}); err != nil {
		return nil, err
	}

	m.group, err = settings.NewGroup(m.store)
	if err != nil {
		return nil, err
	}

	var ctx context.Context
	ctx, m.cancel = context.WithCancel(context.Background())

	m.server.AddProcess(func() { m.stream.Iterate(ctx) })

	return m, nil
}

func (m *Manager) Logger() zerolog.Logger { return m.log }

func (m *Manager) SampleRate() float64 { return m.cfg.SampleRate }

func (m *Manager) BlockSize() int { return m.cfg.BlockSize }

func (m *Manager) NotificationWindow() time.Duration { return m.cfg.NotificationWindow }

func (m *Manager) Plugins() *plugin.Registry { return m.cfg.Plugins }

func (m *Manager) Server() *rt.Server { return m.server }

func (m *Manager) Root() *graph.Bin { return m.root }

func (m *Manager) Stream() *graph.Stream { return m.stream }

func (m *Manager) Dispatcher() *Dispatcher { return m.dispatcher }

// Settings returns the manager's own settings.
func (m *Manager) Settings() *settings.Store { return m.store }

// Group holds the manager's settings and those of every attached pipeline.
func (m *Manager) Group() *settings.Group { return m.group }

// PostMessages reports whether nodes emit notifications. Safe on the
// realtime thread.
func (m *Manager) PostMessages() bool { return m.postMessages.Load() }

// attach adds a pipeline to the root bin and links it after the current
// tail. It must run before Start.
func (m *Manager) attach(p *Effects) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return errors.New("effectchain: cannot attach a pipeline to a running manager")
	}

	if err := m.root.AddBin(p.bin); err != nil {
		return fmt.Errorf("effectchain: attach %s: %w", p.name, err)
	}

	if !m.tail.SrcPad().Link(p.First().SinkPad()) {
		return fmt.Errorf("effectchain: attach %s: cannot link after %s", p.name, m.tail.Name())
	}

	m.tail = p.Last()
	m.pipelines = append(m.pipelines, p)

	return nil
}

// Start plays the graph and launches the realtime loop.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	m.dispatcher.Start()

	if !m.root.SetState(graph.StatePlaying) {
		m.log.Warn().Msg("some elements refused to play")
	}

	m.stream.Start()

	if err := m.server.Start(); err != nil {
		m.stream.Stop()
		m.dispatcher.Stop()

		return fmt.Errorf("effectchain: start: %w", err)
	}

	m.running = true
	m.log.Info().
		Float64("rate", m.cfg.SampleRate).
		Int("block", m.cfg.BlockSize).
		Dur("quantum", m.cfg.Quantum).
		Msg("manager started")

	return nil
}

// Running reports whether Start succeeded and Close has not run.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.running
}

// Close tears down every pipeline while the loop still runs, then stops the
// loop and the dispatcher.
func (m *Manager) Close() error {
	m.mu.Lock()
	pipelines := m.pipelines
	m.pipelines = nil
	m.mu.Unlock()

	var errs []error

	for _, p := range pipelines {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stream.Stop()
	m.server.Stop()
	m.stream.Close()
	m.cancel()
	m.dispatcher.Stop()
	m.root.SetState(graph.StateNull)

	m.running = false

	return errors.Join(errs...)
}
