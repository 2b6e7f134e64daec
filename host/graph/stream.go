package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-fxgraph/host/queue"
)

const defaultQueueSize = 64

// StreamConfig configures a Stream.
type StreamConfig struct {
	BlockSize int
	QueueSize int
	// Source fills the first buffer of every block. Nil gives silence.
	Source func(out *Buffer)
	// Sink receives the processed block. The buffer is reused afterwards.
	Sink   func(in *Buffer)
	Logger zerolog.Logger
}

// Stream pulls blocks from a source through the chain linked behind head and
// hands them to a sink. Iterate is called by the realtime thread, once per
// block.
type Stream struct {
	mu sync.Mutex

	root *Bin
	head *Element
	cfg  StreamConfig
	q    *queue.Queue
	log  zerolog.Logger

	active atomic.Bool
	blocks atomic.Uint64

	a, b *Buffer
}

// NewStream attaches a stream to root. head must be reachable from root.
func NewStream(root *Bin, head *Element, cfg StreamConfig) (*Stream, error) {
	if root == nil || head == nil {
		return nil, errors.New("graph: stream needs a root bin and a head element")
	}

	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("graph: block size must be > 0: %d", cfg.BlockSize)
	}

	if root.stream != nil {
		return nil, fmt.Errorf("graph: bin %s already has a stream", root.name)
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	s := &Stream{
		root: root,
		head: head,
		cfg:  cfg,
		q:    queue.New(cfg.QueueSize),
		log:  cfg.Logger.With().Str("stream", root.name).Logger(),
		a:    NewBuffer(cfg.BlockSize),
		b:    NewBuffer(cfg.BlockSize),
	}
	root.stream = s

	return s, nil
}

// Start marks the stream as running. Probes are then deferred to Iterate.
func (s *Stream) Start() { s.active.Store(true) }

// Stop marks the stream as idle. Probes then run inline.
func (s *Stream) Stop() { s.active.Store(false) }

// Active reports whether the stream is running.
func (s *Stream) Active() bool { return s.active.Load() }

// Blocks returns the number of completed iterations.
func (s *Stream) Blocks() uint64 { return s.blocks.Load() }

// BlockSize returns the samples per block.
func (s *Stream) BlockSize() int { return s.cfg.BlockSize }

// AddIdleProbe queues fn for the next quiescent point. If the stream is not
// running, the queue is drained before returning.
func (s *Stream) AddIdleProbe(fn ProbeFunc) error {
	if err := s.q.Enqueue(queue.Func(fn)); err != nil {
		return fmt.Errorf("graph: add idle probe: %w", err)
	}

	if !s.active.Load() {
		s.mu.Lock()
		s.drain(context.Background())
		s.mu.Unlock()
	}

	return nil
}

// Iterate runs pending probes and then processes one block.
func (s *Stream) Iterate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drain(ctx)

	in, out := s.a, s.b
	if s.cfg.Source != nil {
		s.cfg.Source(in)
	} else {
		clear(in.Left)
		clear(in.Right)
	}

	limit := s.root.leafCount() + 1

	for e, hops := s.head, 0; e != nil && hops < limit; hops++ {
		e.process(in, out)
		in, out = out, in

		peer := e.src.Peer()
		if peer == nil {
			break
		}

		e = peer.elem
	}

	if s.cfg.Sink != nil {
		s.cfg.Sink(in)
	}

	s.blocks.Add(1)
}

// Close drops pending probes and rejects new ones.
func (s *Stream) Close() {
	s.q.Close()
	s.Stop()
}

func (s *Stream) drain(ctx context.Context) {
	n, err := s.q.Drain(ctx)
	if err != nil {
		s.log.Error().Err(err).Int("probes", n).Msg("idle probe failed")
	}
}
