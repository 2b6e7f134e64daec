package dynamics

import (
	"fmt"
	"math"
)

const (
	defaultThresholdDB  = -12.0
	defaultRatio        = 4.0
	defaultKneeDB       = 9.0
	defaultAttackMs     = 20.0
	defaultReleaseMs    = 100.0
	defaultReactivityMs = 10.0
	defaultHPFHz        = 10.0
	defaultLPFHz        = 20000.0
)

// Meters holds per-block metering values. They are reset at the start of
// every ProcessStereo call.
type Meters struct {
	// Reduction is the smallest linear gain applied during the block
	// (greatest gain for upward modes).
	Reduction float64
	// Sidechain is the highest detector envelope during the block.
	Sidechain float64
	// Curve is the steady-state curve output for Sidechain.
	Curve float64
}

// Compressor is a stereo-linked compressor: one detector drives a common
// gain for both channels.
//
// Parameter setters must not be called concurrently with ProcessStereo.
type Compressor struct {
	sampleRate float64

	mode         Mode
	topology     Topology
	detectorMode DetectorMode
	source       Source
	listen       bool

	thresholdDB      float64
	kneeDB           float64
	ratio            float64
	attackMs         float64
	releaseMs        float64
	releaseThreshold float64
	boostThreshold   float64
	reactivityMs     float64
	lookaheadMs      float64
	makeupDB         float64
	preampDB         float64
	hpfOrder         int
	hpfHz            float64
	lpfOrder         int
	lpfHz            float64

	makeupLin float64
	preampLin float64

	det detector
	env envelope
	gc  gainComputer
	hpf sidechainFilter
	lpf sidechainFilter
	la  lookahead

	prevLeft  float64
	prevRight float64

	meters Meters
}

// NewCompressor creates a downward feed-forward compressor with defaults:
// threshold -12 dB, ratio 4:1, knee 9 dB, attack 20 ms, release 100 ms,
// RMS detector with 10 ms reactivity, no lookahead, no sidechain filters.
func NewCompressor(sampleRate float64) (*Compressor, error) {
	if err := validateSampleRate(sampleRate); err != nil {
		return nil, fmt.Errorf("compressor %w", err)
	}

	c := &Compressor{
		sampleRate:       sampleRate,
		detectorMode:     DetectorRMS,
		thresholdDB:      defaultThresholdDB,
		kneeDB:           defaultKneeDB,
		ratio:            defaultRatio,
		attackMs:         defaultAttackMs,
		releaseMs:        defaultReleaseMs,
		reactivityMs:     defaultReactivityMs,
		boostThreshold:   math.Pow(10, -72.0/20),
		hpfHz:            defaultHPFHz,
		lpfHz:            defaultLPFHz,
		makeupLin:        1,
		preampLin:        1,
		releaseThreshold: 0,
	}
	c.hpf.highPass = true

	if err := c.recalculate(); err != nil {
		return nil, err
	}

	c.Reset()

	return c, nil
}

// SetSampleRate updates the sample rate and every time-dependent coefficient.
func (c *Compressor) SetSampleRate(sampleRate float64) error {
	if err := validateSampleRate(sampleRate); err != nil {
		return fmt.Errorf("compressor %w", err)
	}

	c.sampleRate = sampleRate

	return c.recalculate()
}

// SetMode selects downward, upward or boosting operation.
func (c *Compressor) SetMode(mode Mode) error {
	if mode < ModeDownward || mode > ModeBoosting {
		return fmt.Errorf("invalid compressor mode: %d", mode)
	}

	c.mode = mode
	c.updateGainComputer()

	return nil
}

// SetTopology selects feed-forward or feed-back detection.
func (c *Compressor) SetTopology(topology Topology) error {
	if topology != TopologyFeedforward && topology != TopologyFeedback {
		return fmt.Errorf("invalid compressor topology: %d", topology)
	}

	c.topology = topology

	return nil
}

// SetDetectorMode selects the sidechain level detector.
func (c *Compressor) SetDetectorMode(mode DetectorMode) error {
	if err := c.det.configure(mode, c.reactivityMs, c.sampleRate); err != nil {
		return fmt.Errorf("compressor %w", err)
	}

	c.detectorMode = mode

	return nil
}

// SetSource selects the stereo combination used as the sidechain.
func (c *Compressor) SetSource(source Source) error {
	if source < SourceMiddle || source > SourceRight {
		return fmt.Errorf("invalid compressor sidechain source: %d", source)
	}

	c.source = source

	return nil
}

// SetListen routes the filtered sidechain to both outputs when enabled.
func (c *Compressor) SetListen(listen bool) {
	c.listen = listen
}

// SetThreshold sets the threshold in dB.
func (c *Compressor) SetThreshold(dB float64) error {
	if !isFinite(dB) {
		return fmt.Errorf("compressor threshold must be finite: %f", dB)
	}

	c.thresholdDB = dB
	c.updateGainComputer()
	c.updateReleaseLevel()

	return nil
}

// SetRatio sets the compression ratio in [1, 100].
func (c *Compressor) SetRatio(ratio float64) error {
	if err := validateRange("compressor ratio", ratio, minRatio, maxRatio); err != nil {
		return err
	}

	c.ratio = ratio
	c.updateGainComputer()

	return nil
}

// SetKnee sets the soft-knee width in dB, 0 for a hard knee.
func (c *Compressor) SetKnee(kneeDB float64) error {
	if err := validateRange("compressor knee", kneeDB, minKneeDB, maxKneeDB); err != nil {
		return err
	}

	c.kneeDB = kneeDB
	c.updateGainComputer()

	return nil
}

// SetAttack sets the attack time in milliseconds. 0 means instantaneous.
func (c *Compressor) SetAttack(ms float64) error {
	if err := validateRange("compressor attack", ms, minAttackMs, maxAttackMs); err != nil {
		return err
	}

	c.attackMs = ms
	c.env.configure(c.attackMs, c.releaseMs, c.sampleRate)

	return nil
}

// SetRelease sets the release time in milliseconds. 0 means instantaneous.
func (c *Compressor) SetRelease(ms float64) error {
	if err := validateRange("compressor release", ms, minReleaseMs, maxReleaseMs); err != nil {
		return err
	}

	c.releaseMs = ms
	c.env.configure(c.attackMs, c.releaseMs, c.sampleRate)

	return nil
}

// SetReleaseThreshold sets the release threshold as a linear fraction of the
// threshold. While the envelope is below it the follower falls at attack speed.
func (c *Compressor) SetReleaseThreshold(linear float64) error {
	if err := validateRange("compressor release threshold", linear, 0, 1); err != nil {
		return err
	}

	c.releaseThreshold = linear
	c.updateReleaseLevel()

	return nil
}

// SetBoostThreshold sets the linear level used by the upward modes: the
// detector floor for ModeUpward and the maximum boost for ModeBoosting.
func (c *Compressor) SetBoostThreshold(linear float64) error {
	if linear <= 0 || !isFinite(linear) {
		return fmt.Errorf("compressor boost threshold must be positive and finite: %f", linear)
	}

	c.boostThreshold = linear
	c.updateGainComputer()

	return nil
}

// SetReactivity sets the detector window in milliseconds.
func (c *Compressor) SetReactivity(ms float64) error {
	if err := validateRange("compressor reactivity", ms, minReactivityMs, maxReactivityMs); err != nil {
		return err
	}

	c.reactivityMs = ms

	return c.det.configure(c.detectorMode, c.reactivityMs, c.sampleRate)
}

// SetLookahead delays the program path so the detector reacts ahead of it.
func (c *Compressor) SetLookahead(ms float64) error {
	if err := validateRange("compressor lookahead", ms, 0, maxLookaheadMs); err != nil {
		return err
	}

	c.lookaheadMs = ms
	c.la.configure(int(math.Round(ms * 0.001 * c.sampleRate)))

	return nil
}

// SetMakeup sets the output makeup gain in dB.
func (c *Compressor) SetMakeup(dB float64) error {
	if !isFinite(dB) {
		return fmt.Errorf("compressor makeup must be finite: %f", dB)
	}

	c.makeupDB = dB
	c.makeupLin = math.Pow(10, dB/20)

	return nil
}

// SetPreamp sets the sidechain gain in dB.
func (c *Compressor) SetPreamp(dB float64) error {
	if !isFinite(dB) {
		return fmt.Errorf("compressor sidechain preamp must be finite: %f", dB)
	}

	c.preampDB = dB
	c.preampLin = math.Pow(10, dB/20)

	return nil
}

// SetHighPass configures the sidechain high-pass. order 0 disables it.
func (c *Compressor) SetHighPass(order int, hz float64) error {
	if err := c.hpf.configure(order, hz, c.sampleRate); err != nil {
		return fmt.Errorf("compressor high-pass: %w", err)
	}

	c.hpfOrder, c.hpfHz = order, hz

	return nil
}

// SetLowPass configures the sidechain low-pass. order 0 disables it.
func (c *Compressor) SetLowPass(order int, hz float64) error {
	if err := c.lpf.configure(order, hz, c.sampleRate); err != nil {
		return fmt.Errorf("compressor low-pass: %w", err)
	}

	c.lpfOrder, c.lpfHz = order, hz

	return nil
}

// Threshold returns the threshold in dB.
func (c *Compressor) Threshold() float64 { return c.thresholdDB }

// Ratio returns the compression ratio.
func (c *Compressor) Ratio() float64 { return c.ratio }

// Knee returns the knee width in dB.
func (c *Compressor) Knee() float64 { return c.kneeDB }

// Mode returns the gain direction.
func (c *Compressor) Mode() Mode { return c.mode }

// SampleRate returns the sample rate in Hz.
func (c *Compressor) SampleRate() float64 { return c.sampleRate }

// Latency returns the lookahead delay in samples.
func (c *Compressor) Latency() int { return c.la.latency() }

// Meters returns the metering values of the last processed block.
func (c *Compressor) Meters() Meters { return c.meters }

// CurveLevel returns the steady-state output level for a constant input level,
// including makeup gain. It is the value plotted on a transfer curve.
func (c *Compressor) CurveLevel(level float64) float64 {
	level = math.Abs(level)
	return level * c.gc.gain(level) * c.makeupLin
}

// Reset clears detector, envelope, filter, lookahead and meter state.
func (c *Compressor) Reset() {
	c.det.reset()
	c.env.value = 0
	c.hpf.reset()
	c.lpf.reset()
	c.la.reset()
	c.prevLeft, c.prevRight = 0, 0
	c.meters = Meters{Reduction: 1}
}

// ProcessStereo compresses leftIn/rightIn into leftOut/rightOut.
// All four slices must have the same length; inputs are not modified.
func (c *Compressor) ProcessStereo(leftIn, rightIn, leftOut, rightOut []float64) {
	n := min(len(leftIn), len(rightIn), len(leftOut), len(rightOut))

	reduction := 1.0
	if c.mode != ModeDownward {
		reduction = 0
	}

	peakLevel := 0.0

	for i := range n {
		l, r := leftIn[i], rightIn[i]

		var sc float64
		if c.topology == TopologyFeedback {
			sc = c.source.mix(c.prevLeft, c.prevRight)
		} else {
			sc = c.source.mix(l, r)
		}

		sc = c.lpf.process(c.hpf.process(sc * c.preampLin))

		level := c.env.process(c.det.process(math.Abs(sc)))
		gain := c.gc.gain(level)

		dl, dr := c.la.process(l, r)

		var ol, or float64
		if c.listen {
			ol, or = sc, sc
		} else {
			g := gain * c.makeupLin
			ol, or = dl*g, dr*g
		}

		leftOut[i], rightOut[i] = ol, or
		c.prevLeft, c.prevRight = ol, or

		if c.mode == ModeDownward {
			reduction = math.Min(reduction, gain)
		} else {
			reduction = math.Max(reduction, gain)
		}

		peakLevel = math.Max(peakLevel, level)
	}

	if n == 0 {
		reduction = 1
	}

	c.meters = Meters{
		Reduction: reduction,
		Sidechain: peakLevel,
		Curve:     c.CurveLevel(peakLevel),
	}
}

func (c *Compressor) recalculate() error {
	c.env.configure(c.attackMs, c.releaseMs, c.sampleRate)
	c.updateGainComputer()
	c.updateReleaseLevel()
	c.la.configure(int(math.Round(c.lookaheadMs * 0.001 * c.sampleRate)))

	if err := c.det.configure(c.detectorMode, c.reactivityMs, c.sampleRate); err != nil {
		return fmt.Errorf("compressor %w", err)
	}

	if err := c.hpf.configure(c.hpfOrder, c.hpfHz, c.sampleRate); err != nil {
		return fmt.Errorf("compressor high-pass: %w", err)
	}

	if err := c.lpf.configure(c.lpfOrder, c.lpfHz, c.sampleRate); err != nil {
		return fmt.Errorf("compressor low-pass: %w", err)
	}

	return nil
}

func (c *Compressor) updateGainComputer() {
	c.gc.configure(c.mode, c.thresholdDB, c.kneeDB, c.ratio, c.boostThreshold)
}

func (c *Compressor) updateReleaseLevel() {
	c.env.releaseLevel = c.releaseThreshold * math.Pow(10, c.thresholdDB/20)
}
