// Package config loads process configuration from FXGRAPH_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix.
const Prefix = "FXGRAPH"

// Config is the process configuration.
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`

	SampleRate float64 `envconfig:"SAMPLE_RATE" default:"48000"`
	BlockSize  int     `envconfig:"BLOCK_SIZE" default:"512"`

	// NotificationWindow is the metering notification interval.
	NotificationWindow time.Duration `envconfig:"NOTIFICATION_WINDOW" default:"100ms"`
	PostMessages       bool          `envconfig:"POST_MESSAGES" default:"true"`

	SettingsFile string `envconfig:"SETTINGS_FILE"`

	RedisURL    string        `envconfig:"REDIS_URL"`
	RedisPrefix string        `envconfig:"REDIS_PREFIX" default:"fxgraph"`
	RedisWait   time.Duration `envconfig:"REDIS_WAIT" default:"5s"`

	Duration time.Duration `envconfig:"DURATION" default:"5s"`
}

// Load reads the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("error processing environment configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.SampleRate < 8000 || c.SampleRate > 384000:
		return fmt.Errorf("config: sample rate out of range: %f", c.SampleRate)
	case c.BlockSize < 16 || c.BlockSize > 8192:
		return fmt.Errorf("config: block size out of range: %d", c.BlockSize)
	case c.NotificationWindow <= 0:
		return fmt.Errorf("config: notification window must be > 0: %s", c.NotificationWindow)
	case c.Duration < 0:
		return fmt.Errorf("config: duration must be >= 0: %s", c.Duration)
	}

	return nil
}

// Quantum returns the realtime period of one block.
func (c Config) Quantum() time.Duration {
	return time.Duration(float64(time.Duration(c.BlockSize)*time.Second) / c.SampleRate)
}
