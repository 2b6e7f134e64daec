package effectchain

import (
	"github.com/rs/zerolog"
)

// Segment is the part of the host graph a relink edits. *graph.Bin
// implements it.
type Segment interface {
	Link(src, dst string) bool
	Unlink(src, dst string) bool
	SetLockedState(locked bool) bool
	SyncChildStateWithParent(name string) bool
	SyncStateWithParent() bool
}

// Layout describes a reorderable chain: the segment holding it, the two
// boundary elements and the node collection.
type Layout interface {
	Segment() Segment
	Boundaries() (input, output string)
	// NodeNames returns every node in the collection, in a stable order.
	NodeNames() []string
	Logger() *zerolog.Logger
}

// RelinkOptions tunes UpdateEffectsOrder.
type RelinkOptions struct {
	// Rollback restores the old chain when any link of the new chain
	// fails. Off by default: failures are logged and the relink goes on.
	Rollback bool
}

// RelinkResult counts what a relink did.
type RelinkResult struct {
	Unlinked   int
	Linked     int
	Synced     int
	Failures   int
	Locked     bool
	RolledBack bool
}

// chainPairs returns the links of input -> order... -> output.
func chainPairs(input, output string, order []string) [][2]string {
	pairs := make([][2]string, 0, len(order)+1)
	prev := input

	for _, name := range order {
		pairs = append(pairs, [2]string{prev, name})
		prev = name
	}

	return append(pairs, [2]string{prev, output})
}

// UpdateEffectsOrder rewires the chain of l from oldOrder to newOrder. Every
// step is attempted: unlink and link failures are logged and counted, never
// fatal. The caller must hold the lock guarding the orders and must run this
// at a quiescent point of the stream.
func UpdateEffectsOrder(l Layout, oldOrder, newOrder []string, opts RelinkOptions) RelinkResult {
	var res RelinkResult

	seg := l.Segment()
	log := l.Logger()
	input, output := l.Boundaries()

	res.Locked = seg.SetLockedState(true)
	log.Debug().Bool("changed", res.Locked).Msg("segment locked state set")

	unlinkChain := func(order []string) {
		for _, p := range chainPairs(input, output, order) {
			if seg.Unlink(p[0], p[1]) {
				res.Unlinked++
				continue
			}

			res.Failures++
			log.Warn().Str("src", p[0]).Str("dst", p[1]).Msg("failed to unlink")
		}
	}

	linkChain := func(order []string) int {
		failed := 0

		for _, p := range chainPairs(input, output, order) {
			if seg.Link(p[0], p[1]) {
				res.Linked++
				log.Debug().Str("src", p[0]).Str("dst", p[1]).Msg("linked")

				continue
			}

			failed++
			log.Error().Str("src", p[0]).Str("dst", p[1]).Msg("failed to link")
		}

		res.Failures += failed

		return failed
	}

	unlinkChain(oldOrder)

	if linkChain(newOrder) > 0 && opts.Rollback {
		log.Warn().Strs("order", oldOrder).Msg("rolling back to previous order")
		unlinkChain(newOrder)
		linkChain(oldOrder)

		res.RolledBack = true
	}

	for _, name := range l.NodeNames() {
		if seg.SyncChildStateWithParent(name) {
			res.Synced++
			log.Debug().Str("node", name).Msg("state synced with parent")

			continue
		}

		res.Failures++
		log.Warn().Str("node", name).Msg("failed to sync state with parent")
	}

	if !seg.SetLockedState(false) {
		log.Debug().Msg("segment was not locked")
	}

	if !seg.SyncStateWithParent() {
		log.Warn().Msg("failed to sync segment state with parent")
	}

	return res
}
