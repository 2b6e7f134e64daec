package plugin

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-fxgraph/internal/settings"
)

const testURI = "urn:test:gain"

// gainInstance scales both channels by port "g" and reports the block peak on "peak".
type gainInstance struct {
	blockSize int
}

func (g *gainInstance) SetBlockSize(n int) { g.blockSize = n }

func (g *gainInstance) Run(c *Controls, inL, inR, outL, outR []float64) {
	gain, _ := c.Get("g")
	peak := 0.0

	for i := range inL {
		outL[i] = inL[i] * gain
		outR[i] = inR[i] * gain
		peak = math.Max(peak, math.Abs(outL[i]))
	}

	c.Set("peak", peak)
}

var lastInstance *gainInstance

func testDescriptor() *Descriptor {
	return &Descriptor{
		URI:  testURI,
		Name: "Gain",
		Ports: []Port{
			{Symbol: "g", Direction: PortInput, Unit: UnitGain, Default: 1, Min: 0, Max: 4},
			{Symbol: "kn", Direction: PortInput, Unit: UnitDB, Default: 0, Min: -24, Max: 24},
			{Symbol: "mode", Direction: PortInput, Enum: true, Default: 0, Min: 0, Max: 2},
			{Symbol: "on", Direction: PortInput, Toggle: true, Default: 0, Min: 0, Max: 1},
			{Symbol: "ms", Direction: PortInput, Unit: UnitMs, Default: 10, Min: 0, Max: 100},
			{Symbol: "peak", Direction: PortOutput, Unit: UnitGain},
		},
		New: func(float64) (Instance, error) {
			lastInstance = &gainInstance{}
			return lastInstance, nil
		},
	}
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()

	r := NewRegistry()
	if err := r.Register(testDescriptor()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return r
}

func TestRegistryErrors(t *testing.T) {
	r := testRegistry(t)

	if err := r.Register(testDescriptor()); !errors.Is(err, ErrDuplicatePlugin) {
		t.Fatalf("Register() error = %v, want ErrDuplicatePlugin", err)
	}

	if _, err := r.Lookup("urn:none"); !errors.Is(err, ErrUnknownPlugin) {
		t.Fatalf("Lookup() error = %v, want ErrUnknownPlugin", err)
	}

	bad := testDescriptor()
	bad.URI = "urn:bad"
	bad.Ports = append(bad.Ports, Port{Symbol: "g"})

	if err := r.Register(bad); err == nil {
		t.Fatal("expected error for duplicate port symbol")
	}

	if err := r.Register(&Descriptor{URI: "urn:nofactory"}); err == nil {
		t.Fatal("expected error for missing factory")
	}
}

func TestWrapperUnavailable(t *testing.T) {
	w := NewWrapper(NewRegistry(), testURI, zerolog.Nop())

	if w.FoundPlugin() || w.HasInstance() {
		t.Fatal("wrapper for an unknown plugin reports available")
	}

	if err := w.CreateInstance(48000); !errors.Is(err, ErrNotFound) {
		t.Fatalf("CreateInstance() error = %v, want ErrNotFound", err)
	}

	if got := w.ControlPortValue("g"); got != 0 {
		t.Fatalf("ControlPortValue() = %g, want 0", got)
	}

	w.Run()
}

func TestWrapperRun(t *testing.T) {
	w := NewWrapper(testRegistry(t), testURI, zerolog.Nop())

	if !w.FoundPlugin() || w.HasInstance() {
		t.Fatal("found wrapper must start without instance")
	}

	w.SetNSamples(4)

	if err := w.CreateInstance(48000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lastInstance.blockSize != 4 {
		t.Fatalf("block size = %d, want 4", lastInstance.blockSize)
	}

	w.SetNSamples(8)

	if lastInstance.blockSize != 8 || w.NSamples() != 8 {
		t.Fatalf("block size = %d, want 8", lastInstance.blockSize)
	}

	if err := w.SetControlPortValue("g", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inL := []float64{0.1, -0.5}
	inR := []float64{0.2, 0.3}
	outL := make([]float64, 2)
	outR := make([]float64, 2)

	w.ConnectDataPorts(inL, inR, outL, outR)
	w.Run()

	if outL[1] != -1 || outR[0] != 0.4 {
		t.Fatalf("Run() output = %v %v", outL, outR)
	}

	if got := w.ControlPortValue("peak"); got != 1 {
		t.Fatalf("peak = %g, want 1", got)
	}

	if err := w.SetControlPortValue("g", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := w.ControlPortValue("g"); got != 4 {
		t.Fatalf("clamped g = %g, want 4", got)
	}

	if err := w.SetControlPortValue("nope", 1); !errors.Is(err, ErrUnknownPort) {
		t.Fatalf("SetControlPortValue() error = %v, want ErrUnknownPort", err)
	}
}

func testStore(t *testing.T) *settings.Store {
	t.Helper()

	return settings.New(settings.MustSchema("test",
		settings.Key{Name: "gain", Kind: settings.KindDouble, Default: 0.0, Min: -36, Max: 12},
		settings.Key{Name: "knee", Kind: settings.KindDouble, Default: 6.0, Min: 0, Max: 24},
		settings.Key{Name: "mode", Kind: settings.KindEnum, Default: "b", Choices: []string{"a", "b", "c"}},
		settings.Key{Name: "on", Kind: settings.KindBool, Default: true},
		settings.Key{Name: "time", Kind: settings.KindDouble, Default: 25.0, Min: 0, Max: 100},
	))
}

func TestBinderKinds(t *testing.T) {
	w := NewWrapper(testRegistry(t), testURI, zerolog.Nop())
	s := testStore(t)
	b := NewBinder(w, s, zerolog.Nop())

	err := b.BindTable([]Binding{
		{Kind: BindDoubleDB, Key: "gain", Port: "g"},
		{Kind: BindDoubleDB, Key: "knee", Port: "kn"},
		{Kind: BindEnum, Key: "mode", Port: "mode"},
		{Kind: BindBool, Key: "on", Port: "on"},
		{Kind: BindDouble, Key: "time", Port: "ms"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]float64{"g": 1, "kn": 6, "mode": 1, "on": 1, "ms": 25}
	for port, v := range want {
		if got := w.ControlPortValue(port); got != v {
			t.Errorf("initial %s = %g, want %g", port, got, v)
		}
	}

	if !b.Converts("gain") || b.Converts("knee") {
		t.Fatal("conversion flags wrong: gain must convert, knee must not")
	}

	_ = s.SetDouble("gain", -20)
	_ = s.SetDouble("knee", 12)
	_ = s.SetEnum("mode", "c")
	_ = s.SetBool("on", false)
	_ = s.SetDouble("time", 50)

	if got := w.ControlPortValue("g"); math.Abs(got-0.1) > 1e-12 {
		t.Errorf("g = %g, want 0.1", got)
	}

	want = map[string]float64{"kn": 12, "mode": 2, "on": 0, "ms": 50}
	for port, v := range want {
		if got := w.ControlPortValue(port); got != v {
			t.Errorf("%s = %g, want %g", port, got, v)
		}
	}

	b.Close()
	_ = s.SetDouble("time", 75)

	if got := w.ControlPortValue("ms"); got != 50 {
		t.Fatalf("ms = %g after Close, want 50", got)
	}
}

func TestBinderErrors(t *testing.T) {
	w := NewWrapper(testRegistry(t), testURI, zerolog.Nop())
	b := NewBinder(w, testStore(t), zerolog.Nop())

	if err := b.BindKeyDouble("time", "missing"); !errors.Is(err, ErrUnknownPort) {
		t.Fatalf("BindKeyDouble() error = %v, want ErrUnknownPort", err)
	}

	if err := b.BindKeyDouble("time", "peak"); !errors.Is(err, ErrUnknownPort) {
		t.Fatalf("binding an output port: error = %v, want ErrUnknownPort", err)
	}

	if err := b.BindKeyDouble("missing", "ms"); !errors.Is(err, settings.ErrUnknownKey) {
		t.Fatalf("BindKeyDouble() error = %v, want ErrUnknownKey", err)
	}

	if err := b.BindKeyDouble("on", "ms"); !errors.Is(err, settings.ErrTypeMismatch) {
		t.Fatalf("BindKeyDouble() error = %v, want ErrTypeMismatch", err)
	}

	missing := NewBinder(NewWrapper(NewRegistry(), testURI, zerolog.Nop()), testStore(t), zerolog.Nop())
	if err := missing.BindKeyDouble("time", "ms"); err != nil {
		t.Fatalf("binding on an unavailable plugin must be a no-op, got %v", err)
	}
}
