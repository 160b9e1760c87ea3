// Package config loads run settings from defaults, an optional config file,
// PROJECTOR_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"strings"

	"pose-projector/internal/projector"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides (PROJECTOR_NUM_STEPS, ...).
const EnvPrefix = "PROJECTOR"

// Options are the settings of one projection run.
type Options struct {
	Target          string `mapstructure:"target"`
	OutDir          string `mapstructure:"outdir"`
	Generator       string `mapstructure:"generator"`
	FeatureNet      string `mapstructure:"feature_net"`
	PoseFile        string `mapstructure:"posefile"`
	Keypoints       string `mapstructure:"keypoints"`
	SaveVideo       bool   `mapstructure:"save_video"`
	OutputName      string `mapstructure:"output_name"`
	CheckpointW     string `mapstructure:"checkpoint_w"`
	SaveCheckpointW string `mapstructure:"save_checkpoint_w"`
	Ledger          string `mapstructure:"ledger"`
	LedgerPath      string `mapstructure:"ledger_path"`

	Projector projector.Config `mapstructure:",squash"`
}

// DefaultOptions returns the built-in settings.
func DefaultOptions() Options {
	cfg := projector.DefaultConfig()
	cfg.Verbose = true
	return Options{
		OutDir:     "out",
		SaveVideo:  true,
		Ledger:     "sqlite",
		LedgerPath: "runs.db",
		Projector:  cfg,
	}
}

// Key converts a flag name such as "num-steps" to its settings key.
func Key(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// New returns a viper instance with defaults and environment overrides
// installed. A non-empty configFile is read as well.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}
	return v, nil
}

// SetDefaults registers every option with its default so environment
// variables and config files can override it.
func SetDefaults(v *viper.Viper) {
	d := DefaultOptions()
	p := d.Projector
	defaults := map[string]interface{}{
		"target":                  d.Target,
		"outdir":                  d.OutDir,
		"generator":               d.Generator,
		"feature_net":             d.FeatureNet,
		"posefile":                d.PoseFile,
		"keypoints":               d.Keypoints,
		"save_video":              d.SaveVideo,
		"output_name":             d.OutputName,
		"checkpoint_w":            d.CheckpointW,
		"save_checkpoint_w":       d.SaveCheckpointW,
		"ledger":                  d.Ledger,
		"ledger_path":             d.LedgerPath,
		"num_steps":               p.NumSteps,
		"w_avg_samples":           p.WAvgSamples,
		"initial_learning_rate":   p.InitialLearningRate,
		"initial_noise_factor":    p.InitialNoiseFactor,
		"lr_rampdown_length":      p.LRRampdownLength,
		"lr_rampup_length":        p.LRRampupLength,
		"noise_ramp_length":       p.NoiseRampLength,
		"regularize_noise_weight": p.RegularizeNoiseWeight,
		"beta1":                   p.Beta1,
		"beta2":                   p.Beta2,
		"seed":                    p.Seed,
		"stats_seed":              p.StatsSeed,
		"feature_loss":            p.FeatureLoss,
		"feature_layers":          p.FeatureLayers,
		"legacy_feature_loss":     p.LegacyFeatureLoss,
		"verbose":                 p.Verbose,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load decodes the merged settings and validates them.
func Load(v *viper.Viper) (Options, error) {
	var o Options
	if err := v.Unmarshal(&o); err != nil {
		return Options{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := o.Projector.Validate(); err != nil {
		return Options{}, err
	}
	if o.Projector.WAvgSamples <= 0 && o.CheckpointW == "" {
		return Options{}, fmt.Errorf("w_avg_samples must be positive, got %d", o.Projector.WAvgSamples)
	}
	return o, nil
}
