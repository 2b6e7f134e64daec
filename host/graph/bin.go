package graph

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDuplicateElement is returned when a bin already holds the name.
	ErrDuplicateElement = errors.New("graph: duplicate element name")
	// ErrHasParent is returned when adding an element that already has a parent.
	ErrHasParent = errors.New("graph: element already has a parent")
)

// Bin is an element that contains other elements. Links made through a bin
// connect two of its direct children.
type Bin struct {
	Element

	mu       sync.Mutex
	children map[string]*Element
	order    []string

	stream *Stream
}

// NewBin creates an empty bin.
func NewBin(name string, opts ...ElementOption) *Bin {
	b := &Bin{children: make(map[string]*Element)}
	b.init(name, nil, opts)
	b.bin = b

	return b
}

// Add inserts elements. Names must be unique within the bin.
func (b *Bin) Add(elems ...*Element) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range elems {
		if e.parent != nil {
			return fmt.Errorf("%w: %s", ErrHasParent, e.name)
		}

		if _, ok := b.children[e.name]; ok {
			return fmt.Errorf("%w: %s in %s", ErrDuplicateElement, e.name, b.name)
		}

		e.parent = b
		b.children[e.name] = e
		b.order = append(b.order, e.name)
	}

	return nil
}

// AddBin inserts a child bin.
func (b *Bin) AddBin(child *Bin) error {
	return b.Add(&child.Element)
}

// Child returns the named direct child, or nil.
func (b *Bin) Child(name string) *Element {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.children[name]
}

// Children returns the direct children in insertion order.
func (b *Bin) Children() []*Element {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*Element, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.children[name])
	}

	return out
}

// Link connects src's source pad to dst's sink pad. Both must be children
// with free pads.
func (b *Bin) Link(src, dst string) bool {
	s, d := b.Child(src), b.Child(dst)
	if s == nil || d == nil {
		return false
	}

	return s.src.Link(d.sink)
}

// Unlink removes the link src -> dst. It fails unless that exact link exists.
func (b *Bin) Unlink(src, dst string) bool {
	s, d := b.Child(src), b.Child(dst)
	if s == nil || d == nil {
		return false
	}

	return s.src.Unlink(d.sink)
}

// SetState changes the state of every unlocked child, then of the bin.
func (b *Bin) SetState(to State) bool {
	ok := true

	for _, c := range b.Children() {
		if c.IsLockedState() {
			continue
		}

		if !c.SetState(to) {
			ok = false
		}
	}

	if !b.setState(to) {
		ok = false
	}

	return ok
}

// SyncChildStateWithParent brings the named child to the bin's state.
func (b *Bin) SyncChildStateWithParent(name string) bool {
	c := b.Child(name)
	if c == nil {
		return false
	}

	return c.SyncStateWithParent()
}

func (b *Bin) leafCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0

	for _, c := range b.children {
		if c.bin != nil {
			n += c.bin.leafCount()
		} else {
			n++
		}
	}

	return n
}
