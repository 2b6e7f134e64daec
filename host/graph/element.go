// Package graph is a small in-process audio graph: elements with one sink and
// one source pad, bins that hold and link them, and a stream that pulls stereo
// blocks through the linked chain.
//
// Topology edits are meant to run as idle probes, which the stream executes
// between blocks.
package graph

import (
	"fmt"
	"sync/atomic"

	"github.com/cwbudde/algo-fxgraph/dsp/core"
)

// State is the run-state of an element.
type State int32

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Buffer is one stereo block.
type Buffer struct {
	Left  []float64
	Right []float64
}

// NewBuffer allocates a zeroed stereo block of n samples.
func NewBuffer(n int) *Buffer {
	return &Buffer{Left: make([]float64, n), Right: make([]float64, n)}
}

// Len returns the block length.
func (b *Buffer) Len() int { return min(len(b.Left), len(b.Right)) }

// Processor transforms one block. in and out are distinct and of equal length.
type Processor interface {
	Process(in, out *Buffer)
}

// ProcessorFunc adapts a function into a Processor.
type ProcessorFunc func(in, out *Buffer)

func (f ProcessorFunc) Process(in, out *Buffer) { f(in, out) }

// StateChangeFunc is consulted before a state transition. Returning an error
// refuses the transition.
type StateChangeFunc func(from, to State) error

// Element is a single processing stage. An element without a processor, or
// one that is not playing, copies its input unchanged.
type Element struct {
	name   string
	parent *Bin
	bin    *Bin

	state  atomic.Int32
	locked atomic.Bool

	sink *Pad
	src  *Pad

	proc     Processor
	onChange StateChangeFunc
}

// ElementOption configures an Element.
type ElementOption func(*Element)

// WithStateChange installs a transition hook.
func WithStateChange(fn StateChangeFunc) ElementOption {
	return func(e *Element) { e.onChange = fn }
}

// NewElement creates an element. A nil proc gives an identity element.
func NewElement(name string, proc Processor, opts ...ElementOption) *Element {
	e := &Element{}
	e.init(name, proc, opts)

	return e
}

func (e *Element) init(name string, proc Processor, opts []ElementOption) {
	e.name = name
	e.proc = proc
	e.sink = &Pad{dir: PadSink, elem: e}
	e.src = &Pad{dir: PadSrc, elem: e}

	for _, opt := range opts {
		opt(e)
	}
}

func (e *Element) Name() string { return e.name }

// Parent returns the containing bin, or nil.
func (e *Element) Parent() *Bin { return e.parent }

func (e *Element) State() State { return State(e.state.Load()) }

func (e *Element) SinkPad() *Pad { return e.sink }

func (e *Element) SrcPad() *Pad { return e.src }

// IsLockedState reports whether the element ignores state changes of its parent.
func (e *Element) IsLockedState() bool { return e.locked.Load() }

// SetLockedState sets the locked flag and reports whether it changed.
func (e *Element) SetLockedState(locked bool) bool {
	return e.locked.Swap(locked) != locked
}

// SetState moves the element (and, for a bin, its unlocked children) to the
// given state. It reports false when any transition was refused.
func (e *Element) SetState(to State) bool {
	if e.bin != nil {
		return e.bin.SetState(to)
	}

	return e.setState(to)
}

func (e *Element) setState(to State) bool {
	from := e.State()
	if from == to {
		return true
	}

	if e.onChange != nil {
		if err := e.onChange(from, to); err != nil {
			return false
		}
	}

	e.state.Store(int32(to))

	return true
}

// SyncStateWithParent adopts the parent's current state.
func (e *Element) SyncStateWithParent() bool {
	if e.parent == nil {
		return false
	}

	return e.SetState(e.parent.State())
}

// Stream returns the stream driving the root bin of this element, or nil.
func (e *Element) Stream() *Stream {
	root := e.bin
	for p := e.parent; p != nil; p = p.parent {
		root = p
	}

	if root == nil {
		return nil
	}

	return root.stream
}

func (e *Element) process(in, out *Buffer) {
	if e.proc == nil || e.State() != StatePlaying {
		core.CopyStereo(in.Left, in.Right, out.Left, out.Right)
		return
	}

	e.proc.Process(in, out)
}
