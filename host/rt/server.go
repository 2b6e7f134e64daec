package rt

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Server bundles the thread loop, the core and the filters it hands out.
type Server struct {
	loop *ThreadLoop
	core *Core

	mu      sync.Mutex
	filters map[string]*Filter

	coreOnce sync.Once
}

// NewServer creates a server whose loop cycles every quantum. The core is
// processed at the end of every cycle and completed syncs signal the loop.
func NewServer(quantum time.Duration, log zerolog.Logger) *Server {
	s := &Server{
		loop:    NewThreadLoop("rt", quantum, log),
		core:    NewCore(),
		filters: make(map[string]*Filter),
	}

	s.core.AddDoneListener(func(uint32, int) { s.loop.Signal() })

	return s
}

func (s *Server) Loop() *ThreadLoop { return s.loop }

func (s *Server) Core() *Core { return s.core }

// AddProcess registers a processing callback. Callbacks run before the core
// in every cycle.
func (s *Server) AddProcess(fn func()) { s.loop.AddCycle(fn) }

// Start launches the loop. Processing callbacks must be registered first.
func (s *Server) Start() error {
	s.coreOnce.Do(func() { s.loop.AddCycle(s.core.Process) })

	return s.loop.Start()
}

// Stop stops the loop.
func (s *Server) Stop() { s.loop.Stop() }

// NewFilter creates a connected, inactive filter.
func (s *Server) NewFilter(name string) *Filter {
	f := newFilter(name)

	s.mu.Lock()
	s.filters[name] = f
	s.mu.Unlock()

	return f
}

// Filter returns a filter by name, or nil.
func (s *Server) Filter(name string) *Filter {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.filters[name]
}

// SyncAndWait issues a core sync and waits for it with the loop lock held.
// The caller must hold the loop lock and must not be on the loop goroutine.
func (s *Server) SyncAndWait() error {
	if !s.loop.Running() {
		return ErrNotRunning
	}

	seq := s.core.Sync(CoreID, 0)
	for !s.core.Done(seq) {
		if !s.loop.Running() {
			return ErrNotRunning
		}

		s.loop.Wait()
	}

	return nil
}
