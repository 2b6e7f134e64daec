package effectchain

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-fxgraph/host/graph"
	"github.com/cwbudde/algo-fxgraph/internal/settings"
)

// Scheduler runs a probe once at the next quiescent point of the stream.
// *graph.Pad and *graph.Stream implement it.
type Scheduler interface {
	AddIdleProbe(fn graph.ProbeFunc) error
}

// Watcher follows the order key of a settings store and relinks the layout
// when the order changes. The relink itself runs as an idle probe, never on
// the goroutine that changed the setting.
type Watcher struct {
	layout Layout
	store  *settings.Store
	key    string
	sched  Scheduler
	opts   RelinkOptions

	mu      sync.Mutex
	wired   []string
	pending []string
	queued  bool
	// unscheduled marks a pending order that lost its probe to a failed
	// schedule.
	unscheduled bool

	handler   settings.HandlerID
	scheduled atomic.Uint64
	relinks   atomic.Uint64
}

// NewWatcher starts watching key. wired is the order currently linked in
// the layout.
func NewWatcher(l Layout, store *settings.Store, key string, sched Scheduler, wired []string, opts RelinkOptions) (*Watcher, error) {
	w := &Watcher{
		layout:  l,
		store:   store,
		key:     key,
		sched:   sched,
		opts:    opts,
		wired:   slices.Clone(wired),
		pending: slices.Clone(wired),
	}

	id, err := store.Connect(key, func(string) {
		// Errors are logged by Refresh.
		_ = w.Refresh()
	})
	if err != nil {
		return nil, fmt.Errorf("effectchain: watch %s: %w", key, err)
	}

	w.handler = id

	return w, nil
}

// Refresh reads the order from the store and schedules a relink when it
// differs from the last recorded order. An order that is not a permutation
// of the node collection is rejected with ErrInvalidOrder.
func (w *Watcher) Refresh() error {
	log := w.layout.Logger()

	order, err := w.store.GetStrv(w.key)
	if err != nil {
		log.Error().Err(err).Str("key", w.key).Msg("failed to read plugin order")
		return fmt.Errorf("effectchain: read order: %w", err)
	}

	if err := ValidateOrder(order, w.layout.NodeNames()); err != nil {
		log.Error().Err(err).Strs("order", order).Msg("ignoring plugin order")
		return err
	}

	w.mu.Lock()

	if slices.Equal(order, w.pending) && !w.unscheduled {
		w.mu.Unlock()
		return nil
	}

	prev := w.pending
	w.pending = order
	schedule := !w.queued
	w.queued = true
	w.unscheduled = false

	w.mu.Unlock()

	log.Info().Strs("order", order).Msg("new plugin order")

	if !schedule {
		return nil
	}

	w.scheduled.Add(1)

	// The probe may run before AddIdleProbe returns, so the lock is not
	// held here.
	if err := w.sched.AddIdleProbe(w.relink); err != nil {
		w.mu.Lock()
		w.queued = false

		if slices.Equal(w.pending, order) {
			w.pending = prev
		} else {
			// A newer order arrived while scheduling and relied on this probe.
			w.unscheduled = true
		}
		w.mu.Unlock()

		log.Error().Err(err).Msg("failed to schedule relink")

		return fmt.Errorf("effectchain: schedule relink: %w", err)
	}

	return nil
}

func (w *Watcher) relink(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.queued = false

	if slices.Equal(w.wired, w.pending) {
		return nil
	}

	res := UpdateEffectsOrder(w.layout, w.wired, w.pending, w.opts)
	w.relinks.Add(1)

	if res.RolledBack {
		// The store keeps the rejected order; pending follows it so the same
		// value is not retried on every notification.
		return fmt.Errorf("effectchain: relink to %v failed, kept %v", w.pending, w.wired)
	}

	w.wired = slices.Clone(w.pending)

	return nil
}

// Wired returns the order currently linked.
func (w *Watcher) Wired() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return slices.Clone(w.wired)
}

// Pending returns the latest accepted order, which may not be linked yet.
func (w *Watcher) Pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return slices.Clone(w.pending)
}

// Scheduled returns how many relinks were scheduled.
func (w *Watcher) Scheduled() uint64 { return w.scheduled.Load() }

// Relinks returns how many relinks ran.
func (w *Watcher) Relinks() uint64 { return w.relinks.Load() }

// Close stops watching the store.
func (w *Watcher) Close() {
	w.store.Disconnect(w.handler)
}

// ValidateOrder checks that order is a permutation of names.
func ValidateOrder(order, names []string) error {
	if len(order) != len(names) {
		return fmt.Errorf("%w: %d entries for %d nodes", ErrInvalidOrder, len(order), len(names))
	}

	known := make(map[string]bool, len(names))
	for _, name := range names {
		known[name] = false
	}

	for _, name := range order {
		seen, ok := known[name]
		if !ok {
			return fmt.Errorf("%w: unknown node %q", ErrInvalidOrder, name)
		}

		if seen {
			return fmt.Errorf("%w: duplicate node %q", ErrInvalidOrder, name)
		}

		known[name] = true
	}

	return nil
}
