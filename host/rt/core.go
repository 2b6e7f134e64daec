package rt

import (
	"sync"
	"sync/atomic"
)

// CoreID addresses the core object in sync requests.
const CoreID uint32 = 0

// DoneFunc receives completed sync round-trips.
type DoneFunc func(id uint32, seq int)

// Core is the server core. A Sync issued before a cycle completes at the end
// of that cycle, after every processing callback has returned.
type Core struct {
	mu        sync.Mutex
	pending   []syncRequest
	listeners []DoneFunc
	nextSeq   int
	doneSeq   atomic.Int64
}

type syncRequest struct {
	id  uint32
	seq int
}

// NewCore creates a core.
func NewCore() *Core {
	c := &Core{}
	c.doneSeq.Store(-1)

	return c
}

// AddDoneListener registers fn for completed syncs. Listeners run on the
// loop goroutine with the loop lock held.
func (c *Core) AddDoneListener(fn DoneFunc) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Sync queues a round-trip and returns its sequence number. The seq argument
// is a lower bound; the returned value is always greater than any earlier one.
func (c *Core) Sync(id uint32, seq int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSeq = max(c.nextSeq, seq) + 1
	c.pending = append(c.pending, syncRequest{id: id, seq: c.nextSeq})

	return c.nextSeq
}

// Done reports whether the round-trip seq has completed.
func (c *Core) Done(seq int) bool {
	return c.doneSeq.Load() >= int64(seq)
}

// Process completes pending round-trips. The thread loop calls it last in
// every cycle.
func (c *Core) Process() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	listeners := c.listeners
	c.mu.Unlock()

	for _, req := range pending {
		c.doneSeq.Store(int64(req.seq))

		for _, fn := range listeners {
			fn(req.id, req.seq)
		}
	}
}
