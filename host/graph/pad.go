package graph

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrNoStream is returned when a probe is added to a pad whose element is
// not reachable from a streaming root bin.
var ErrNoStream = errors.New("graph: element has no stream")

// PadDirection tells sink pads from source pads.
type PadDirection int

const (
	PadSink PadDirection = iota
	PadSrc
)

// ProbeFunc is an idle probe. It runs once, at a point where no block is in
// flight.
type ProbeFunc func(ctx context.Context) error

// Pad is a connection point. A source pad links to at most one sink pad.
type Pad struct {
	dir  PadDirection
	elem *Element
	peer atomic.Pointer[Pad]
}

func (p *Pad) Direction() PadDirection { return p.dir }

func (p *Pad) Element() *Element { return p.elem }

// Peer returns the linked pad, or nil.
func (p *Pad) Peer() *Pad { return p.peer.Load() }

func (p *Pad) IsLinked() bool { return p.peer.Load() != nil }

// Link connects this source pad to sink. Both must be free.
func (p *Pad) Link(sink *Pad) bool {
	if sink == nil || p.dir != PadSrc || sink.dir != PadSink || p.elem == sink.elem {
		return false
	}

	if !sink.peer.CompareAndSwap(nil, p) {
		return false
	}

	if !p.peer.CompareAndSwap(nil, sink) {
		sink.peer.Store(nil)
		return false
	}

	return true
}

// Unlink removes the link from this source pad to sink. It fails unless
// exactly that link exists.
func (p *Pad) Unlink(sink *Pad) bool {
	if sink == nil || p.peer.Load() != sink || sink.peer.Load() != p {
		return false
	}

	p.peer.Store(nil)
	sink.peer.Store(nil)

	return true
}

// AddIdleProbe schedules fn to run once on the stream thread between blocks.
// When the stream is not running, fn runs before AddIdleProbe returns.
func (p *Pad) AddIdleProbe(fn ProbeFunc) error {
	s := p.elem.Stream()
	if s == nil {
		return ErrNoStream
	}

	return s.AddIdleProbe(fn)
}
