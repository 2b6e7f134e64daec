package effectchain

import (
	"github.com/cwbudde/algo-fxgraph/internal/settings"
	"github.com/cwbudde/algo-fxgraph/plugin"
	"github.com/cwbudde/algo-fxgraph/plugin/lsp"
)

// Limiter settings keys. Threshold is shared with the compressor.
const (
	KeyLimiterAttack    = "attack"
	KeyLimiterRelease   = "release"
	KeyLimiterLookahead = "lookahead"
	KeyInputBoost       = "input-boost"
)

// LimiterSchema returns the settings schema of a limiter node.
func LimiterSchema(id string) (*settings.Schema, error) {
	keys := append(nodeKeys(),
		settings.Key{Name: KeyThreshold, Kind: settings.KindDouble, Default: -1.0, Min: -48, Max: 0},
		settings.Key{Name: KeyLimiterAttack, Kind: settings.KindDouble, Default: 5.0, Min: 0, Max: 20},
		settings.Key{Name: KeyLimiterRelease, Kind: settings.KindDouble, Default: 50.0, Min: 1, Max: 1000},
		settings.Key{Name: KeyLimiterLookahead, Kind: settings.KindDouble, Default: 5.0, Min: 0, Max: 20},
		settings.Key{Name: KeyInputBoost, Kind: settings.KindDouble, Default: 0.0, Min: 0, Max: 40},
	)

	return settings.NewSchema(id, keys...)
}

// LimiterSpec is the engine description of a limiter node. The threshold
// port is declared in dB and is written without conversion.
func LimiterSpec() NodeSpec {
	return NodeSpec{
		URI: lsp.LimiterURI,
		Meters: []Meter{
			{Name: MeterReduction, Port: lsp.PortReduction},
			{Name: MeterLatency, Port: lsp.PortLatency},
		},
		Bindings: []plugin.Binding{
			{Kind: plugin.BindDoubleDB, Key: KeyThreshold, Port: lsp.PortLimiterThreshold},
			{Kind: plugin.BindDouble, Key: KeyLimiterAttack, Port: lsp.PortLimiterAttack},
			{Kind: plugin.BindDouble, Key: KeyLimiterRelease, Port: lsp.PortLimiterRelease},
			{Kind: plugin.BindDouble, Key: KeyLimiterLookahead, Port: lsp.PortLimiterLookahead},
			{Kind: plugin.BindDoubleDB, Key: KeyInputBoost, Port: lsp.PortLimiterBoost},
		},
	}
}

// Limiter is a node running the stereo lookahead limiter plugin.
type Limiter struct {
	*Node
}

// NewLimiter builds a limiter node.
func NewLimiter(ctx Context) (*Limiter, error) {
	n, err := NewNode(ctx, LimiterSpec())
	if err != nil {
		return nil, err
	}

	return &Limiter{Node: n}, nil
}

// Reduction reports the gain reduction meter.
func (l *Limiter) Reduction() *Signal[float64] { return l.Channel(MeterReduction) }

// Latency reports the latency in samples.
func (l *Limiter) Latency() *Signal[float64] { return l.Channel(MeterLatency) }
