// File: internal/config/humanoid_config.go
// This file defines the HumanoidConfig struct, which tunes the input synthesis
// used when the executor drives the pointer and keyboard. The defaults keep
// motion quick but continuous so that applications relying on hover and drag
// events see a realistic stream of intermediate positions.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// HumanoidConfig tunes pointer trajectories and keyboard pacing.
type HumanoidConfig struct {
	// StepsPerSecond is the sampling rate of intermediate pointer positions.
	StepsPerSecond int `mapstructure:"steps_per_second" yaml:"steps_per_second"`
	// DriftAmplitude is the peak Perlin drift, in pixels, applied away from the ideal path.
	DriftAmplitude float64 `mapstructure:"drift_amplitude" yaml:"drift_amplitude"`
	// CurveSpread scales how far Bezier control points stray from the straight line.
	CurveSpread float64 `mapstructure:"curve_spread" yaml:"curve_spread"`
	// KeyInterval is the pause between typed characters.
	KeyInterval time.Duration `mapstructure:"key_interval" yaml:"key_interval"`
	// ClickHold is how long a button stays down during a drag before moving.
	ClickHold time.Duration `mapstructure:"click_hold" yaml:"click_hold"`
	// Seed fixes the noise source; zero derives one from the clock.
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("humanoid.steps_per_second", 60)
	v.SetDefault("humanoid.drift_amplitude", 1.5)
	v.SetDefault("humanoid.curve_spread", 0.15)
	v.SetDefault("humanoid.key_interval", "10ms")
	v.SetDefault("humanoid.click_hold", "50ms")
	v.SetDefault("humanoid.seed", 0)
}

// Validate checks the humanoid tuning values.
func (h *HumanoidConfig) Validate() error {
	if h.StepsPerSecond <= 0 {
		return errors.New("humanoid.steps_per_second must be positive")
	}
	if h.DriftAmplitude < 0 || h.CurveSpread < 0 {
		return errors.New("humanoid.drift_amplitude and humanoid.curve_spread must not be negative")
	}
	if h.KeyInterval < 0 || h.ClickHold < 0 {
		return errors.New("humanoid.key_interval and humanoid.click_hold must not be negative")
	}
	return nil
}
