package effectchain

import (
	"github.com/cwbudde/algo-fxgraph/internal/settings"
	"github.com/cwbudde/algo-fxgraph/plugin"
	"github.com/cwbudde/algo-fxgraph/plugin/lsp"
)

// Compressor settings keys.
const (
	KeyCompressorMode      = "mode"
	KeySidechainType       = "sidechain-type"
	KeySidechainMode       = "sidechain-mode"
	KeySidechainSource     = "sidechain-source"
	KeyHPFMode             = "hpf-mode"
	KeyLPFMode             = "lpf-mode"
	KeySidechainListen     = "sidechain-listen"
	KeyAttack              = "attack"
	KeyRelease             = "release"
	KeyRatio               = "ratio"
	KeySidechainReactivity = "sidechain-reactivity"
	KeySidechainLookahead  = "sidechain-lookahead"
	KeyHPFFrequency        = "hpf-frequency"
	KeyLPFFrequency        = "lpf-frequency"
	KeyReleaseThreshold    = "release-threshold"
	KeyBoostThreshold      = "boost-threshold"
	KeyThreshold           = "threshold"
	KeyKnee                = "knee"
	KeyMakeup              = "makeup"
	KeySidechainPreamp     = "sidechain-preamp"
)

// Compressor notification channels.
const (
	MeterReduction = "reduction"
	MeterSidechain = "sidechain"
	MeterCurve     = "curve"
	MeterLatency   = "latency"
)

var filterModes = []string{"off", "12 dB/oct", "24 dB/oct", "36 dB/oct"}

// CompressorSchema returns the settings schema of a compressor node.
func CompressorSchema(id string) (*settings.Schema, error) {
	keys := append(nodeKeys(),
		settings.Key{Name: KeyCompressorMode, Kind: settings.KindEnum, Default: "Downward", Choices: []string{"Downward", "Upward", "Boosting"}},
		settings.Key{Name: KeySidechainType, Kind: settings.KindEnum, Default: "Feed-forward", Choices: []string{"Feed-forward", "Feed-back"}},
		settings.Key{Name: KeySidechainMode, Kind: settings.KindEnum, Default: "RMS", Choices: []string{"Peak", "RMS", "Low-Pass", "Uniform"}},
		settings.Key{Name: KeySidechainSource, Kind: settings.KindEnum, Default: "Middle", Choices: []string{"Middle", "Side", "Left", "Right"}},
		settings.Key{Name: KeyHPFMode, Kind: settings.KindEnum, Default: "off", Choices: filterModes},
		settings.Key{Name: KeyLPFMode, Kind: settings.KindEnum, Default: "off", Choices: filterModes},
		settings.Key{Name: KeySidechainListen, Kind: settings.KindBool, Default: false},
		settings.Key{Name: KeyAttack, Kind: settings.KindDouble, Default: 20.0, Min: 0, Max: 2000},
		settings.Key{Name: KeyRelease, Kind: settings.KindDouble, Default: 100.0, Min: 0, Max: 5000},
		settings.Key{Name: KeyRatio, Kind: settings.KindDouble, Default: 4.0, Min: 1, Max: 100},
		settings.Key{Name: KeySidechainReactivity, Kind: settings.KindDouble, Default: 10.0, Min: 0, Max: 250},
		settings.Key{Name: KeySidechainLookahead, Kind: settings.KindDouble, Default: 0.0, Min: 0, Max: 20},
		settings.Key{Name: KeyHPFFrequency, Kind: settings.KindDouble, Default: 10.0, Min: 10, Max: 20000},
		settings.Key{Name: KeyLPFFrequency, Kind: settings.KindDouble, Default: 20000.0, Min: 10, Max: 20000},
		settings.Key{Name: KeyReleaseThreshold, Kind: settings.KindDouble, Default: -120.0, Min: -120, Max: 0},
		settings.Key{Name: KeyBoostThreshold, Kind: settings.KindDouble, Default: -72.0, Min: -84, Max: 0},
		settings.Key{Name: KeyThreshold, Kind: settings.KindDouble, Default: -12.0, Min: -60, Max: 0},
		settings.Key{Name: KeyKnee, Kind: settings.KindDouble, Default: 9.0, Min: 0, Max: 24},
		settings.Key{Name: KeyMakeup, Kind: settings.KindDouble, Default: 0.0, Min: -60, Max: 30},
		settings.Key{Name: KeySidechainPreamp, Kind: settings.KindDouble, Default: 0.0, Min: -80, Max: 40},
	)

	return settings.NewSchema(id, keys...)
}

var compressorBindings = []plugin.Binding{
	{Kind: plugin.BindEnum, Key: KeyCompressorMode, Port: lsp.PortMode},
	{Kind: plugin.BindEnum, Key: KeySidechainType, Port: lsp.PortSidechainType},
	{Kind: plugin.BindEnum, Key: KeySidechainMode, Port: lsp.PortSidechainMode},
	{Kind: plugin.BindEnum, Key: KeySidechainSource, Port: lsp.PortSidechainSource},
	{Kind: plugin.BindEnum, Key: KeyHPFMode, Port: lsp.PortHPFMode},
	{Kind: plugin.BindEnum, Key: KeyLPFMode, Port: lsp.PortLPFMode},

	{Kind: plugin.BindBool, Key: KeySidechainListen, Port: lsp.PortSidechainListen},

	{Kind: plugin.BindDouble, Key: KeyAttack, Port: lsp.PortAttack},
	{Kind: plugin.BindDouble, Key: KeyRelease, Port: lsp.PortRelease},
	{Kind: plugin.BindDouble, Key: KeyRatio, Port: lsp.PortRatio},
	{Kind: plugin.BindDouble, Key: KeySidechainReactivity, Port: lsp.PortReactivity},
	{Kind: plugin.BindDouble, Key: KeySidechainLookahead, Port: lsp.PortLookahead},
	{Kind: plugin.BindDouble, Key: KeyHPFFrequency, Port: lsp.PortHPFFrequency},
	{Kind: plugin.BindDouble, Key: KeyLPFFrequency, Port: lsp.PortLPFFrequency},

	{Kind: plugin.BindDoubleDB, Key: KeyReleaseThreshold, Port: lsp.PortReleaseThreshold},
	{Kind: plugin.BindDoubleDB, Key: KeyBoostThreshold, Port: lsp.PortBoostThreshold},
	{Kind: plugin.BindDoubleDB, Key: KeyThreshold, Port: lsp.PortThreshold},
	{Kind: plugin.BindDoubleDB, Key: KeyKnee, Port: lsp.PortKnee},
	{Kind: plugin.BindDoubleDB, Key: KeyMakeup, Port: lsp.PortMakeup},
	{Kind: plugin.BindDoubleDB, Key: KeySidechainPreamp, Port: lsp.PortPreamp},
}

// CompressorSpec is the engine description of a compressor node.
func CompressorSpec() NodeSpec {
	return NodeSpec{
		URI: lsp.CompressorURI,
		Meters: []Meter{
			{Name: MeterReduction, Port: lsp.PortReduction},
			{Name: MeterSidechain, Port: lsp.PortSidechain},
			{Name: MeterCurve, Port: lsp.PortCurve},
			{Name: MeterLatency, Port: lsp.PortLatency},
		},
		Bindings: compressorBindings,
	}
}

// Compressor is a node running the stereo compressor plugin.
type Compressor struct {
	*Node
}

// NewCompressor builds a compressor node.
func NewCompressor(ctx Context) (*Compressor, error) {
	n, err := NewNode(ctx, CompressorSpec())
	if err != nil {
		return nil, err
	}

	return &Compressor{Node: n}, nil
}

// Reduction reports the gain reduction meter.
func (c *Compressor) Reduction() *Signal[float64] { return c.Channel(MeterReduction) }

// Sidechain reports the sidechain level meter.
func (c *Compressor) Sidechain() *Signal[float64] { return c.Channel(MeterSidechain) }

// Curve reports the response curve level.
func (c *Compressor) Curve() *Signal[float64] { return c.Channel(MeterCurve) }

// Latency reports the latency in samples.
func (c *Compressor) Latency() *Signal[float64] { return c.Channel(MeterLatency) }
