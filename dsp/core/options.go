package core

import "time"

// ProcessorConfig defines common block processing settings.
type ProcessorConfig struct {
	SampleRate float64
	BlockSize  int
}

// ProcessorOption mutates a ProcessorConfig.
type ProcessorOption func(*ProcessorConfig)

// DefaultProcessorConfig returns the defaults used by the live pipeline.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		SampleRate: 48000,
		BlockSize:  512,
	}
}

// WithSampleRate sets the processing sample rate.
func WithSampleRate(sampleRate float64) ProcessorOption {
	return func(cfg *ProcessorConfig) {
		if sampleRate > 0 {
			cfg.SampleRate = sampleRate
		}
	}
}

// WithBlockSize sets the processing block size.
func WithBlockSize(blockSize int) ProcessorOption {
	return func(cfg *ProcessorConfig) {
		if blockSize > 0 {
			cfg.BlockSize = blockSize
		}
	}
}

// ApplyProcessorOptions applies zero or more options to the default config.
func ApplyProcessorOptions(opts ...ProcessorOption) ProcessorConfig {
	cfg := DefaultProcessorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// BlockDuration returns the wall-clock length of n samples at this sample rate.
func (c ProcessorConfig) BlockDuration(n int) time.Duration {
	if c.SampleRate <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(float64(n) / c.SampleRate * float64(time.Second))
}

// Samples returns how many samples of audio span d at this sample rate.
// The result is fractional so short windows at odd rates do not drift.
func (c ProcessorConfig) Samples(d time.Duration) float64 {
	if c.SampleRate <= 0 || d <= 0 {
		return 0
	}

	return d.Seconds() * c.SampleRate
}
