package humanoid

import "math/rand"

// Config holds the motor-model parameters for simulated pointer input.
type Config struct {
	// Spring-damper parameters for the movement simulation.
	Omega float64 `mapstructure:"omega" yaml:"omega"`
	Zeta  float64 `mapstructure:"zeta" yaml:"zeta"`

	// Noise applied on top of the ideal trajectory.
	PerlinAmplitude  float64 `mapstructure:"perlin_amplitude" yaml:"perlin_amplitude"`
	GaussianStrength float64 `mapstructure:"gaussian_strength" yaml:"gaussian_strength"`
	ClickNoise       float64 `mapstructure:"click_noise" yaml:"click_noise"`

	// Bounds for how long the primary button stays down.
	ClickHoldMinMs int `mapstructure:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs int `mapstructure:"click_hold_max_ms" yaml:"click_hold_max_ms"`

	// Movements longer than this may be split into a primary move plus a correction.
	MicroCorrectionThreshold float64 `mapstructure:"micro_correction_threshold" yaml:"micro_correction_threshold"`

	// Rng overrides the random source. Tests use it for determinism.
	Rng *rand.Rand `mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns parameters that produce a quick, slightly noisy approach.
func DefaultConfig() Config {
	return Config{
		Omega:                    28.0,
		Zeta:                     0.85,
		PerlinAmplitude:          1.5,
		GaussianStrength:         0.4,
		ClickNoise:               1.2,
		ClickHoldMinMs:           55,
		ClickHoldMaxMs:           140,
		MicroCorrectionThreshold: 200.0,
	}
}

// withDefaults fills zero-valued fields, so a partially specified config from
// viper still yields a stable simulation.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Omega <= 0 {
		c.Omega = d.Omega
	}
	if c.Zeta <= 0 {
		c.Zeta = d.Zeta
	}
	if c.ClickHoldMinMs <= 0 {
		c.ClickHoldMinMs = d.ClickHoldMinMs
	}
	if c.ClickHoldMaxMs < c.ClickHoldMinMs {
		c.ClickHoldMaxMs = c.ClickHoldMinMs
	}
	if c.MicroCorrectionThreshold <= 0 {
		c.MicroCorrectionThreshold = d.MicroCorrectionThreshold
	}
	return c
}
