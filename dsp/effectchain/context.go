package effectchain

import (
	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-fxgraph/internal/settings"
)

// Context provides what a node factory needs to build one node.
type Context struct {
	// Name is the node's unique name inside its pipeline. It is also the
	// name used in the plugin order.
	Name     string
	Manager  *Manager
	Settings *settings.Store
	Logger   zerolog.Logger
}
