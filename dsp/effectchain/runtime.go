package effectchain

import (
	"github.com/cwbudde/algo-fxgraph/host/graph"
)

// Effect is the per-node contract the pipeline relies on.
type Effect interface {
	Name() string
	// Element is the node's place in the host graph.
	Element() *graph.Element
	// Setup allocates the engine instance at sampleRate.
	Setup(sampleRate float64) error
	// Process runs one stereo block. in and out are distinct and of equal
	// length.
	Process(inL, inR, outL, outR []float64)
	// Teardown quiesces the node against the realtime server and releases
	// its bindings. Never call it from a realtime callback.
	Teardown() error
	Notifications() *Signal[Notification]
}
