//nolint:funcorder
package dynamics

import (
	"fmt"
	"math"
)

const (
	// log2Of10Div20 converts decibels to the log2 domain: log2(10) / 20.
	log2Of10Div20 = 0.166096404744

	minRatio        = 1.0
	maxRatio        = 100.0
	minAttackMs     = 0.0
	maxAttackMs     = 2000.0
	minReleaseMs    = 0.0
	maxReleaseMs    = 5000.0
	minKneeDB       = 0.0
	maxKneeDB       = 24.0
	minReactivityMs = 0.0
	maxReactivityMs = 250.0
	maxLookaheadMs  = 20.0
	maxFilterOrder  = 3
	minFilterHz     = 10.0
)

// Mode selects the direction of gain change.
type Mode int

const (
	// ModeDownward attenuates signal above the threshold.
	ModeDownward Mode = iota
	// ModeUpward amplifies signal below the threshold, never below the boost threshold.
	ModeUpward
	// ModeBoosting amplifies signal below the threshold up to a fixed maximum boost.
	ModeBoosting
)

// Topology selects where the detector listens.
type Topology int

const (
	// TopologyFeedforward detects from the (pre-gain) sidechain signal.
	TopologyFeedforward Topology = iota
	// TopologyFeedback detects from the previous output sample.
	TopologyFeedback
)

// DetectorMode controls how the rectified sidechain becomes a level.
type DetectorMode int

const (
	DetectorPeak DetectorMode = iota
	DetectorRMS
	DetectorLowPass
	DetectorUniform
)

// Source selects which stereo combination feeds the sidechain.
type Source int

const (
	SourceMiddle Source = iota
	SourceSide
	SourceLeft
	SourceRight
)

func (s Source) mix(l, r float64) float64 {
	switch s {
	case SourceSide:
		return 0.5 * (l - r)
	case SourceLeft:
		return l
	case SourceRight:
		return r
	default:
		return 0.5 * (l + r)
	}
}

// detector turns a rectified signal into a level using the reactivity window.
type detector struct {
	mode DetectorMode

	window []float64
	index  int
	filled int
	sum    float64

	alpha float64
	state float64
}

func (d *detector) configure(mode DetectorMode, reactivityMs, sampleRate float64) error {
	if mode < DetectorPeak || mode > DetectorUniform {
		return fmt.Errorf("invalid detector mode: %d", mode)
	}

	d.mode = mode

	samples := max(int(math.Round(reactivityMs*0.001*sampleRate)), 1)
	if len(d.window) != samples {
		d.window = make([]float64, samples)
		d.index = 0
		d.filled = 0
		d.sum = 0
	}

	d.alpha = 1.0
	if reactivityMs > 0 {
		d.alpha = 1.0 - math.Exp(-1.0/(reactivityMs*0.001*sampleRate))
	}

	return nil
}

func (d *detector) process(x float64) float64 {
	switch d.mode {
	case DetectorRMS:
		mean := d.push(x * x)
		if mean <= 0 {
			return 0
		}

		return math.Sqrt(mean)
	case DetectorUniform:
		return d.push(x)
	case DetectorLowPass:
		d.state += d.alpha * (x - d.state)
		return d.state
	default:
		return x
	}
}

// push adds v to the moving window and returns the window mean.
func (d *detector) push(v float64) float64 {
	if d.filled == len(d.window) {
		d.sum -= d.window[d.index]
	} else {
		d.filled++
	}

	d.window[d.index] = v
	d.sum += v

	d.index++
	if d.index >= len(d.window) {
		d.index = 0
	}

	return d.sum / float64(len(d.window))
}

func (d *detector) reset() {
	for i := range d.window {
		d.window[i] = 0
	}

	d.index = 0
	d.filled = 0
	d.sum = 0
	d.state = 0
}

// envelope is a peak follower with separate attack and release.
// Below releaseLevel the follower falls with the attack coefficient.
type envelope struct {
	value        float64
	attackCoeff  float64
	releaseCoeff float64
	releaseLevel float64
}

func (e *envelope) configure(attackMs, releaseMs, sampleRate float64) {
	e.attackCoeff = 1.0
	if attackMs > 0 {
		e.attackCoeff = 1.0 - math.Exp(-math.Ln2/(attackMs*0.001*sampleRate))
	}

	e.releaseCoeff = 0
	if releaseMs > 0 {
		e.releaseCoeff = math.Exp(-math.Ln2 / (releaseMs * 0.001 * sampleRate))
	}
}

func (e *envelope) process(x float64) float64 {
	switch {
	case x > e.value:
		e.value += (x - e.value) * e.attackCoeff
	case e.value > e.releaseLevel:
		e.value = x + (e.value-x)*e.releaseCoeff
	default:
		e.value += (x - e.value) * e.attackCoeff
	}

	return e.value
}

// gainComputer maps a detector level to a linear gain using a log2-domain
// soft knee around the threshold.
type gainComputer struct {
	mode             Mode
	ratio            float64
	kneeDB           float64
	thresholdLog2    float64
	kneeWidthLog2    float64
	invKneeWidthLog2 float64
	boostFloorLog2   float64
	maxBoostLog2     float64
}

func (g *gainComputer) configure(mode Mode, thresholdDB, kneeDB, ratio, boost float64) {
	g.mode = mode
	g.ratio = ratio
	g.kneeDB = kneeDB
	g.thresholdLog2 = thresholdDB * log2Of10Div20
	g.kneeWidthLog2 = kneeDB * log2Of10Div20

	g.invKneeWidthLog2 = 0
	if kneeDB > 0 {
		g.invKneeWidthLog2 = 1.0 / g.kneeWidthLog2
	}

	boost = math.Max(boost, 1e-10)
	g.boostFloorLog2 = mathLog2(boost)
	g.maxBoostLog2 = mathLog2(math.Max(boost, 1))
}

// soften applies the quadratic knee to a signed distance from the threshold.
func (g *gainComputer) soften(distance float64) float64 {
	if g.kneeDB <= 0 {
		return math.Max(distance, 0)
	}

	halfWidth := g.kneeWidthLog2 * 0.5
	if distance < -halfWidth {
		return 0
	}

	if distance > halfWidth {
		return distance
	}

	scratch := distance + halfWidth

	return scratch * scratch * 0.5 * g.invKneeWidthLog2
}

func (g *gainComputer) gain(level float64) float64 {
	factor := 1.0 - 1.0/g.ratio

	switch g.mode {
	case ModeUpward:
		levelLog2 := g.boostFloorLog2
		if level > 0 {
			levelLog2 = math.Max(mathLog2(level), g.boostFloorLog2)
		}

		return mathPower2(g.soften(g.thresholdLog2-levelLog2) * factor)
	case ModeBoosting:
		if level <= 0 {
			return mathPower2(g.maxBoostLog2)
		}

		gainLog2 := g.soften(g.thresholdLog2-mathLog2(level)) * factor

		return mathPower2(math.Min(gainLog2, g.maxBoostLog2))
	default:
		if level <= 0 {
			return 1.0
		}

		return mathPower2(-g.soften(mathLog2(level)-g.thresholdLog2) * factor)
	}
}

// lookahead delays the program path of a stereo pair by a fixed number of samples.
type lookahead struct {
	left  []float64
	right []float64
	pos   int
}

func (la *lookahead) configure(samples int) {
	if samples == len(la.left) {
		return
	}

	la.left = make([]float64, samples)
	la.right = make([]float64, samples)
	la.pos = 0
}

func (la *lookahead) latency() int { return len(la.left) }

func (la *lookahead) process(l, r float64) (float64, float64) {
	if len(la.left) == 0 {
		return l, r
	}

	dl, dr := la.left[la.pos], la.right[la.pos]
	la.left[la.pos], la.right[la.pos] = l, r

	la.pos++
	if la.pos >= len(la.left) {
		la.pos = 0
	}

	return dl, dr
}

func (la *lookahead) reset() {
	for i := range la.left {
		la.left[i] = 0
		la.right[i] = 0
	}

	la.pos = 0
}

type onePoleLowPass struct {
	alpha float64
	state float64
}

func (f *onePoleLowPass) configure(cutoffHz, sampleRate float64) {
	f.alpha = 1.0 - math.Exp(-2.0*math.Pi*cutoffHz/sampleRate)
}

func (f *onePoleLowPass) process(x float64) float64 {
	f.state += f.alpha * (x - f.state)
	return f.state
}

// sidechainFilter is a cascade of up to maxFilterOrder one-pole sections.
// Each section adds 6 dB/octave of slope.
type sidechainFilter struct {
	highPass bool
	order    int
	stages   [maxFilterOrder]onePoleLowPass
}

func (f *sidechainFilter) configure(order int, cutoffHz, sampleRate float64) error {
	if order < 0 || order > maxFilterOrder {
		return fmt.Errorf("sidechain filter order must be in [0, %d]: %d", maxFilterOrder, order)
	}

	if order > 0 && (cutoffHz < minFilterHz || cutoffHz >= sampleRate*0.5 || !isFinite(cutoffHz)) {
		return fmt.Errorf("sidechain filter cutoff must be in [%f, nyquist): %f", minFilterHz, cutoffHz)
	}

	f.order = order
	for i := range f.stages {
		f.stages[i].configure(math.Max(cutoffHz, minFilterHz), sampleRate)
	}

	return nil
}

func (f *sidechainFilter) process(x float64) float64 {
	for i := range f.order {
		lp := f.stages[i].process(x)
		if f.highPass {
			x -= lp
		} else {
			x = lp
		}
	}

	return x
}

func (f *sidechainFilter) reset() {
	for i := range f.stages {
		f.stages[i].state = 0
	}
}

func validateSampleRate(sampleRate float64) error {
	if sampleRate <= 0 || !isFinite(sampleRate) {
		return fmt.Errorf("sample rate must be positive and finite: %f", sampleRate)
	}

	return nil
}

func validateRange(name string, v, lo, hi float64) error {
	if v < lo || v > hi || !isFinite(v) {
		return fmt.Errorf("%s must be in [%f, %f]: %f", name, lo, hi, v)
	}

	return nil
}

func isFinite(v float64) bool {
	return !(math.IsNaN(v) || math.IsInf(v, 0))
}
