package projector

import "math"

// LearningRate returns the step size for step: a linear ramp-up over the
// first LRRampupLength of the run multiplied by a cosine ramp-down over the
// last LRRampdownLength, scaled by InitialLearningRate.
func LearningRate(step, numSteps int, cfg Config) float64 {
	t := float64(step) / float64(numSteps)
	ramp := math.Min(1, (1-t)/cfg.LRRampdownLength)
	ramp = 0.5 - 0.5*math.Cos(ramp*math.Pi)
	ramp *= math.Min(1, t/cfg.LRRampupLength)
	return cfg.InitialLearningRate * ramp
}

// NoiseScale returns the standard deviation of the latent perturbation at
// step. It decays quadratically and is zero from NoiseRampLength onward.
func NoiseScale(step, numSteps int, std float64, cfg Config) float64 {
	t := float64(step) / float64(numSteps)
	r := math.Max(0, 1-t/cfg.NoiseRampLength)
	return std * cfg.InitialNoiseFactor * r * r
}
