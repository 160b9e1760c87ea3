package projector

import (
	"fmt"

	"pose-projector/internal/latent"
)

// DefaultFeatureLayers are the perceptual-network layers compared by the
// optional multi-layer feature loss.
var DefaultFeatureLayers = []string{"conv1", "conv2", "conv6", "conv9"}

// Config holds the projection hyperparameters.
type Config struct {
	NumSteps              int     `mapstructure:"num_steps" json:"num_steps"`
	WAvgSamples           int     `mapstructure:"w_avg_samples" json:"w_avg_samples"`
	InitialLearningRate   float64 `mapstructure:"initial_learning_rate" json:"initial_learning_rate"`
	InitialNoiseFactor    float64 `mapstructure:"initial_noise_factor" json:"initial_noise_factor"`
	LRRampdownLength      float64 `mapstructure:"lr_rampdown_length" json:"lr_rampdown_length"`
	LRRampupLength        float64 `mapstructure:"lr_rampup_length" json:"lr_rampup_length"`
	NoiseRampLength       float64 `mapstructure:"noise_ramp_length" json:"noise_ramp_length"`
	RegularizeNoiseWeight float64 `mapstructure:"regularize_noise_weight" json:"regularize_noise_weight"`
	Beta1                 float64 `mapstructure:"beta1" json:"beta1"`
	Beta2                 float64 `mapstructure:"beta2" json:"beta2"`

	// Seed drives noise-buffer initialization and the per-step latent
	// perturbation. StatsSeed drives latent statistics sampling.
	Seed      int64 `mapstructure:"seed" json:"seed"`
	StatsSeed int64 `mapstructure:"stats_seed" json:"stats_seed"`

	// FeatureLoss adds multi-layer feature and pixel MSE terms.
	FeatureLoss   bool     `mapstructure:"feature_loss" json:"feature_loss"`
	FeatureLayers []string `mapstructure:"feature_layers" json:"feature_layers"`
	// LegacyFeatureLoss compares the target's features against themselves.
	// The terms then add a constant and no gradient.
	LegacyFeatureLoss bool `mapstructure:"legacy_feature_loss" json:"legacy_feature_loss"`

	Verbose bool `mapstructure:"verbose" json:"verbose"`
}

// DefaultConfig returns the standard projection settings.
func DefaultConfig() Config {
	return Config{
		NumSteps:              1000,
		WAvgSamples:           latent.DefaultSamples,
		InitialLearningRate:   0.1,
		InitialNoiseFactor:    0.05,
		LRRampdownLength:      0.25,
		LRRampupLength:        0.05,
		NoiseRampLength:       0.75,
		RegularizeNoiseWeight: 1e5,
		Beta1:                 0.9,
		Beta2:                 0.999,
		Seed:                  303,
		StatsSeed:             latent.DefaultSeed,
		FeatureLayers:         append([]string(nil), DefaultFeatureLayers...),
	}
}

// WithSteps returns a copy of c running n optimization steps.
func (c Config) WithSteps(n int) Config {
	c.NumSteps = n
	return c
}

// WithSeed returns a copy of c using seed for noise initialization and
// latent perturbation.
func (c Config) WithSeed(seed int64) Config {
	c.Seed = seed
	return c
}

// WithFeatureLoss returns a copy of c with the multi-layer feature and
// pixel terms enabled or disabled.
func (c Config) WithFeatureLoss(enabled bool) Config {
	c.FeatureLoss = enabled
	return c
}

// Validate rejects settings the schedules cannot run with.
func (c Config) Validate() error {
	switch {
	case c.NumSteps <= 0:
		return fmt.Errorf("num_steps must be positive, got %d", c.NumSteps)
	case c.LRRampdownLength <= 0 || c.LRRampupLength <= 0 || c.NoiseRampLength <= 0:
		return fmt.Errorf("ramp lengths must be positive")
	case c.Beta1 < 0 || c.Beta1 >= 1 || c.Beta2 < 0 || c.Beta2 >= 1:
		return fmt.Errorf("adam betas must lie in [0, 1)")
	case c.FeatureLoss && len(c.FeatureLayers) == 0:
		return fmt.Errorf("feature loss enabled without feature layers")
	}
	return nil
}
