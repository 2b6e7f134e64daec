package effectchain

import (
	"slices"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-fxgraph/host/graph"
	"github.com/cwbudde/algo-fxgraph/internal/settings"
	"github.com/cwbudde/algo-fxgraph/internal/testutil"
	"github.com/cwbudde/algo-fxgraph/plugin"
	"github.com/cwbudde/algo-fxgraph/plugin/lsp"
)

type testLayout struct {
	seg   Segment
	names []string
	log   zerolog.Logger
}

func (l *testLayout) Segment() Segment { return l.seg }

func (l *testLayout) Boundaries() (string, string) { return InputBoundary, OutputBoundary }

func (l *testLayout) NodeNames() []string { return slices.Clone(l.names) }

func (l *testLayout) Logger() *zerolog.Logger { return &l.log }

// newChainBin builds a bin holding both boundaries and one identity element
// per name, linked in order.
func newChainBin(t *testing.T, names, order []string) *graph.Bin {
	t.Helper()

	bin := graph.NewBin("effects")
	if err := bin.Add(graph.NewElement(InputBoundary, nil), graph.NewElement(OutputBoundary, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range names {
		if err := bin.Add(graph.NewElement(name, nil)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	for _, p := range chainPairs(InputBoundary, OutputBoundary, order) {
		if !bin.Link(p[0], p[1]) {
			t.Fatalf("cannot link %s -> %s", p[0], p[1])
		}
	}

	return bin
}

// walkChain follows src pads from the input boundary. The output boundary
// is included when it is reached.
func walkChain(bin *graph.Bin) []string {
	var names []string

	pad := bin.Child(InputBoundary).SrcPad().Peer()
	for hops := 0; pad != nil && hops < 64; hops++ {
		el := pad.Element()
		names = append(names, el.Name())
		pad = el.SrcPad().Peer()
	}

	return names
}

func permutations(names []string) [][]string {
	if len(names) <= 1 {
		return [][]string{slices.Clone(names)}
	}

	var out [][]string

	for i, head := range names {
		rest := make([]string, 0, len(names)-1)
		rest = append(rest, names[:i]...)
		rest = append(rest, names[i+1:]...)

		for _, p := range permutations(rest) {
			out = append(out, append([]string{head}, p...))
		}
	}

	return out
}

type recordingSegment struct {
	unlinks [][2]string
	links   [][2]string
	locks   []bool
	synced  []string
	parent  int

	failUnlink map[[2]string]bool
	failLink   map[[2]string]bool
}

func (s *recordingSegment) Link(src, dst string) bool {
	s.links = append(s.links, [2]string{src, dst})
	return !s.failLink[[2]string{src, dst}]
}

func (s *recordingSegment) Unlink(src, dst string) bool {
	s.unlinks = append(s.unlinks, [2]string{src, dst})
	return !s.failUnlink[[2]string{src, dst}]
}

func (s *recordingSegment) SetLockedState(locked bool) bool {
	s.locks = append(s.locks, locked)
	return true
}

func (s *recordingSegment) SyncChildStateWithParent(name string) bool {
	s.synced = append(s.synced, name)
	return true
}

func (s *recordingSegment) SyncStateWithParent() bool {
	s.parent++
	return true
}

// failingBin refuses selected links and forwards everything else.
type failingBin struct {
	*graph.Bin
	failLink map[[2]string]bool
}

func (b failingBin) Link(src, dst string) bool {
	if b.failLink[[2]string{src, dst}] {
		return false
	}

	return b.Bin.Link(src, dst)
}

type fakeScheduler struct {
	probes []graph.ProbeFunc
	err    error
	// during runs inside AddIdleProbe, before err is returned.
	during func()
}

func (s *fakeScheduler) AddIdleProbe(fn graph.ProbeFunc) error {
	if hook := s.during; hook != nil {
		s.during = nil
		hook()
	}

	if s.err != nil {
		return s.err
	}

	s.probes = append(s.probes, fn)

	return nil
}

func (s *fakeScheduler) run(t *testing.T) {
	t.Helper()

	probes := s.probes
	s.probes = nil

	for _, fn := range probes {
		if err := fn(t.Context()); err != nil {
			t.Fatalf("unexpected probe error: %v", err)
		}
	}
}

func newTestManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()

	if cfg.Plugins == nil {
		cfg.Plugins = lsp.NewRegistry()
	}

	cfg.Logger = zerolog.Nop()

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return m
}

func newTestCompressor(t *testing.T, m *Manager, name string) *Compressor {
	t.Helper()

	schema, err := CompressorSchema(name)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, err := NewCompressor(Context{Name: name, Manager: m, Settings: settings.New(schema), Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return c
}

func emptyPlugins() *plugin.Registry { return plugin.NewRegistry() }

func sineBlock(n int, freq, rate, amp float64, offset int) ([]float64, []float64) {
	return testutil.StereoSine(n, freq, rate, amp, offset)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}

		time.Sleep(time.Millisecond)
	}
}
