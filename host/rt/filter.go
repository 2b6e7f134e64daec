package rt

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrDisconnected is returned for operations on a disconnected filter.
var ErrDisconnected = errors.New("rt: filter disconnected")

// Filter is a node's connection to the server. It is created connected and
// inactive. The processing path checks Active without locking.
type Filter struct {
	name      string
	active    atomic.Bool
	connected atomic.Bool
}

func newFilter(name string) *Filter {
	f := &Filter{name: name}
	f.connected.Store(true)

	return f
}

func (f *Filter) Name() string { return f.name }

// Active reports whether the server should run the node.
func (f *Filter) Active() bool { return f.active.Load() && f.connected.Load() }

// Connected reports whether Disconnect has not been called.
func (f *Filter) Connected() bool { return f.connected.Load() }

// SetActive activates or deactivates the filter.
func (f *Filter) SetActive(active bool) error {
	if !f.connected.Load() {
		return fmt.Errorf("%w: %s", ErrDisconnected, f.name)
	}

	f.active.Store(active)

	return nil
}

// Disconnect detaches the filter permanently.
func (f *Filter) Disconnect() error {
	if !f.connected.Swap(false) {
		return fmt.Errorf("%w: %s", ErrDisconnected, f.name)
	}

	f.active.Store(false)

	return nil
}
